package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tastythames/dmon-worker/internal/scheduler"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the next push time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			sched, err := scheduler.ParseSchedule(cfg.Schedule)
			if err != nil {
				return err
			}
			next := scheduler.NextFire(sched, time.Now())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "worker:   %s\n", cfg.WorkerID)
			fmt.Fprintf(out, "server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "modules:  %d\n", len(cfg.Modules))
			for _, m := range cfg.Modules {
				fmt.Fprintf(out, "  - %s: %s\n", m.Name, m.Command)
			}
			fmt.Fprintf(out, "schedule: %s\n", cfg.Schedule)
			fmt.Fprintf(out, "next:     %s\n", next.UTC().Format(time.RFC3339))
			return nil
		},
	}
}
