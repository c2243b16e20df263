package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tastythames/dmon-worker/internal/config"
	"github.com/tastythames/dmon-worker/internal/logging"
)

type rootOptions struct {
	configPath    string
	envFile       string
	runNow        bool
	logLevel      string
	logFormat     string
	metricsListen string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dmon-worker",
		Short: "Push encrypted module output to the dmon collector on a schedule",
		Long: `dmon-worker runs the configured modules, aggregates their JSON output,
encrypts it with the worker's pre-shared key and pushes it to the collector,
either on the configured cron schedule or once with --run-now.`,
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "YAML configuration file path")
	pf.StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format override (console, json)")

	f := cmd.Flags()
	f.BoolVarP(&opts.runNow, "run-now", "r", false, "run one push cycle immediately and exit")
	f.StringVar(&opts.metricsListen, "metrics-listen", "", "serve /metrics and /health on this address (disabled when empty)")

	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newDecryptCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig reads the dotenv file (if any), the YAML configuration and the
// environment overrides, in that order.
func loadConfig(opts *rootOptions) (*config.WorkerConfig, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.envFile, err)
		}
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	return cfg, nil
}

func newLogger(cfg *config.WorkerConfig, opts *rootOptions, out, errOut io.Writer) (zerolog.Logger, error) {
	lo := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: out, Err: errOut}
	if opts.logLevel != "" {
		lo.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		lo.Format = opts.logFormat
	}
	return logging.New(lo)
}

var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
