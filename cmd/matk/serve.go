package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/matk/internal/api"
	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/backend/builtin"
	"github.com/seantiz/matk/internal/config"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sweep API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := config.NewLogger(os.Stdout, cfg.LogLevel)

		logger.Info("matk: starting",
			"listen_addr", cfg.ListenAddr,
			"db_path", cfg.DBPath,
			"workdir_root", cfg.WorkdirRoot,
			"workers", cfg.Workers,
		)

		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		reg := backend.NewRegistry()
		builtin.Register(reg)

		eng := engine.NewEngine(db, reg, logger, engine.WithWorkdirRoot(cfg.WorkdirRoot))
		srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger, api.WithDefaultWorkers(cfg.Workers))

		if err := srv.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}
