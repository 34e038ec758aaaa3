package main

import (
	"github.com/spf13/cobra"

	"github.com/seantiz/matk/internal/sampleset"
)

var corrKind string

var corrCmd = &cobra.Command{
	Use:   "corr RESULTS_FILE",
	Short: "Print parameter/response correlation coefficients of a results file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := sampleset.ParseCorrKind(corrKind)
		if err != nil {
			return err
		}
		set, err := sampleset.ReadFile(args[0], args[0])
		if err != nil {
			return err
		}
		c, err := set.Corr(kind)
		if err != nil {
			return err
		}
		return c.Format(cmd.OutOrStdout())
	},
}

func init() {
	corrCmd.Flags().StringVar(&corrKind, "kind", string(sampleset.Pearson), "Correlation coefficient: pearson or spearman")
}
