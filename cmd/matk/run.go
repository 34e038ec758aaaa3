package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/backend/builtin"
	"github.com/seantiz/matk/internal/config"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/sampleset"
	"github.com/seantiz/matk/internal/sweepfile"
)

var runOpts struct {
	workers    int
	results    string
	logFile    string
	noProgress bool
}

var runCmd = &cobra.Command{
	Use:   "run SWEEP_FILE",
	Short: "Run the sweep defined in an HCL file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSweep,
}

func init() {
	runCmd.Flags().IntVar(&runOpts.workers, "workers", 0, "Worker count (overrides the sweep file and MATK_WORKERS)")
	runCmd.Flags().StringVar(&runOpts.results, "results", "", "Results file (overrides results_file)")
	runCmd.Flags().StringVar(&runOpts.logFile, "log", "", "Log file for result rows and failures (overrides log_file)")
	runCmd.Flags().BoolVar(&runOpts.noProgress, "no-progress", false, "Disable the progress bar")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	sw, err := sweepfile.Load(args[0])
	if err != nil {
		return err
	}
	if runOpts.workers > 0 {
		sw.Workers = model.Workers(runOpts.workers)
	}
	if runOpts.results != "" {
		sw.ResultsFile = runOpts.results
	}
	if runOpts.logFile != "" {
		sw.LogFile = runOpts.logFile
	}

	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	set, err := sw.SampleSet(name)
	if err != nil {
		return err
	}
	req, err := sw.Request(cfg.Workers, logger)
	if err != nil {
		return err
	}

	if sw.LogFile != "" {
		f, err := os.Create(sw.LogFile)
		if err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		req.LogSink = w
	}

	if !runOpts.noProgress {
		bar := progressbar.Default(int64(set.Len()), "Running "+name)
		req.OnSample = func(model.SampleRecord) { _ = bar.Add(1) }
		defer bar.Finish()
	}

	reg := backend.NewRegistry()
	builtin.Register(reg)
	eng := engine.NewEngine(nil, reg, logger, engine.WithWorkdirRoot(cfg.WorkdirRoot))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := set.Run(ctx, eng, req)
	if res == nil {
		return runErr
	}

	if sw.ResultsFile != "" {
		if err := set.WriteFile(sw.ResultsFile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s: %d samples on %d workers, %d failed\n", name, set.Len(), res.Workers, len(res.Failures))
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s\n", f.Error())
	}
	if sw.Observed != nil {
		printBestFit(out, set, sw.Observed)
	}
	if sw.ResultsFile != "" {
		fmt.Fprintf(out, "results written to %s\n", sw.ResultsFile)
	}
	return runErr
}

// printBestFit reports the sample closest to the observations. Failed
// samples have a NaN sum of squares and are skipped.
func printBestFit(w io.Writer, set *sampleset.SampleSet, observed []float64) {
	sse, err := set.CalcSSE(observed)
	if err != nil {
		return
	}
	best := -1
	for i, v := range sse {
		if !math.IsNaN(v) && (best < 0 || v < sse[best]) {
			best = i
		}
	}
	if best < 0 {
		return
	}
	fmt.Fprintf(w, "best fit: sample %s, sse %g\n", set.Indices[best], sse[best])
}
