// Command rollcall-sim exercises a running rollcall server with synthetic
// identities and reports whether recognition and attendance held up.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rollcall/internal/simulate"
	"github.com/okian/rollcall/pkg/logger"
)

// defaultWorkers is a multiplier for runtime.NumCPU().
const defaultWorkers = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg := &simulate.Config{}
	var (
		logFormat string
		deadline  time.Duration
	)

	cmd := &cobra.Command{
		Use:           "rollcall-sim",
		Short:         "Enroll synthetic faces and verify recognition and attendance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.InitWithFormat(logFormat)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), deadline)
			defer cancel()

			if _, err := simulate.Run(ctx, cfg); err != nil {
				logger.Get().Error(ctx, "simulation failed", logger.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.BaseURL, "url", "u", "http://localhost:9080", "base URL of the rollcall server")
	f.IntVarP(&cfg.Identities, "identities", "n", simulate.DefaultIdentities, "number of identities to enroll")
	f.IntVarP(&cfg.Probes, "probes", "p", simulate.DefaultProbes, "number of recognition probes")
	f.IntVar(&cfg.Dimension, "dim", simulate.DefaultDimension, "descriptor length")
	f.Float64Var(&cfg.Noise, "noise", simulate.DefaultNoise, "expected norm of per-sample noise")
	f.IntVarP(&cfg.Workers, "workers", "w", runtime.NumCPU()*defaultWorkers, "concurrent probe workers")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", simulate.DefaultSettle, "how long queue mode waits for attendance")
	f.StringVarP(&cfg.Mode, "mode", "m", simulate.ModeSync, "probe mode: sync (/recognize) or queue (/frames)")
	f.StringVar(&cfg.Location, "location", simulate.DefaultLocation, "frame source recorded as the location")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "descriptor generator seed")
	f.BoolVar(&cfg.Cleanup, "cleanup", false, "remove enrolled identities and their records afterwards")
	f.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	f.DurationVar(&deadline, "deadline", 10*time.Minute, "overall run deadline")

	return cmd
}
