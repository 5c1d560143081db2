package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/heretate/fbpscheduler/internal/config"
	"github.com/heretate/fbpscheduler/internal/logger"
	"github.com/heretate/fbpscheduler/internal/scheduler"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long:  `fbpscheduler start [--read-dir=<processes dir>] [--state-dir=<snapshots dir>]`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				log.Fatalf("Configuration load failed: %v", err)
			}
			if readDir, _ := cmd.Flags().GetString("read-dir"); readDir != "" {
				cfg.ReadDir = readDir
			}
			if stateDir, _ := cmd.Flags().GetString("state-dir"); stateDir != "" {
				cfg.StateDir = stateDir
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
			}

			appLogger := buildLogger(cfg)
			appLogger.Info("Scheduler initialization",
				"readDir", cfg.ReadDir,
				"stateDir", cfg.StateDir,
				"logFormat", cfg.LogFormat)

			sc, err := scheduler.New(cfg, appLogger, scheduler.Options{})
			if err != nil {
				appLogger.Fatal("Scheduler initialization failed", "err", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := sc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringP("read-dir", "r", "", "directory of process definition files")
	cmd.Flags().StringP("state-dir", "s", "", "directory for scheduler snapshots")
	cmd.Flags().Bool("debug", false, "debug-level logging")
	_ = viper.BindPFlag("readDir", cmd.Flags().Lookup("read-dir"))
	_ = viper.BindPFlag("stateDir", cmd.Flags().Lookup("state-dir"))
	_ = viper.BindPFlag("debug", cmd.Flags().Lookup("debug"))

	return cmd
}

func buildLogger(cfg *config.Config) logger.Logger {
	var opts []logger.Option
	if cfg.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.LogFormat))
	}
	return logger.NewLogger(opts...)
}
