package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tastythames/dmon-worker/internal/cache"
	"github.com/tastythames/dmon-worker/internal/config"
	"github.com/tastythames/dmon-worker/internal/delivery"
	"github.com/tastythames/dmon-worker/internal/metrics"
	"github.com/tastythames/dmon-worker/internal/modules"
	"github.com/tastythames/dmon-worker/internal/push"
	"github.com/tastythames/dmon-worker/internal/scheduler"
	"github.com/tastythames/dmon-worker/internal/shutdown"
	"github.com/tastythames/dmon-worker/internal/sshclient"
)

func runWorker(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(cfg.WorkerID)
	status := cache.NewMemCache()
	if opts.metricsListen != "" {
		srv := metrics.NewServer(opts.metricsListen, m, log)
		srv.Handle("/status", cache.Handler(status))
		srv.Start()
		defer srv.Shutdown()
	}

	cycle := push.New(cfg, push.Deps{
		Runner:    runner,
		Deliverer: delivery.NewClient("dmon-worker/" + Version),
		Logger:    log,
		Metrics:   m,
		Status:    status,
	})

	// a bad schedule is fatal even when only running once
	task, err := scheduler.NewTask(cfg.WorkerID, cfg.Schedule, cycle)
	if err != nil {
		return err
	}

	token := shutdown.NewToken()
	stop := shutdown.Watch(token, cmd.OutOrStdout(), stopSignals...)
	defer stop()

	log.Info().
		Str("worker", cfg.WorkerID).
		Str("collector", cycle.Endpoint().URL()).
		Int("modules", len(cfg.Modules)).
		Bool("run_now", opts.runNow).
		Msg("worker starting")

	if opts.runNow {
		return cycle.Run(context.Background())
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Waiting for time to push... Press Ctrl+C to stop")
	sched := scheduler.New(task, scheduler.Options{Logger: log})
	if err := sched.Run(token); err != nil {
		return err
	}
	fired, failed := sched.Stats()
	log.Info().Uint64("cycles", fired).Uint64("failed", failed).Msg("exiting")
	return nil
}

func newRunner(cfg *config.WorkerConfig) (modules.Runner, error) {
	if cfg.SSH == nil {
		return modules.ShellRunner{Shell: cfg.Shell}, nil
	}
	sc, err := sshclient.LoadConfig(cfg.SSH)
	if err != nil {
		return nil, fmt.Errorf("ssh runner: %w", err)
	}
	return sshclient.New(sc)
}
