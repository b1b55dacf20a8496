package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"video_reposter/internal/scheduler"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run passes on the configured schedule",
	Long:  "run performs one pass immediately and then one per schedule.interval until interrupted. With --once it performs a single pass, bounded by schedule.pass_timeout, and prints its summary.",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single pass and exit")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	logger := setupLogger("info")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger = setupLogger(cfg.LogLevel)

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	logger.Info("starting video reposter",
		"sources", len(cfg.Sources),
		"destinations", len(cfg.Destinations),
		"ledger", cfg.Ledger.Backend,
		"lock", cfg.Lock.Backend,
		"once", runOnce,
	)

	if runOnce {
		if cfg.Schedule.PassTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Schedule.PassTimeout)
			defer cancel()
		}
		summary, err := a.pipeline.RunPass(ctx)
		if err != nil {
			return fmt.Errorf("run pass: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	sched := scheduler.NewScheduler(a.pipeline, cfg.Schedule.Interval, cfg.Schedule.PassTimeout, logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
