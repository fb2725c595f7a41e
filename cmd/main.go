package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/mastery/internal/config"
	"github.com/okian/mastery/pkg/logger"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("mastery: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// cli holds state shared by every subcommand.
type cli struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "mastery",
		Short: "Vehicle mastery harvester",
		Long: `mastery harvests per-vehicle mastery thresholds from the ranking
service, merges them with the regional catalogs and a reference catalog,
keeps a bucketed history, and serves the result over HTTP.

Without a subcommand it behaves like "mastery serve".`,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE:              c.runServe,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file (overrides "+config.EnvPrefix+"CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")

	root.AddCommand(
		c.newServeCommand(),
		c.newRunCommand(),
		c.newMigrateCommand(),
	)
	return root
}

// setup initializes logging and loads configuration (defaults -> optional file -> env).
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(); err != nil {
		return err
	}
	c.log = logger.Get()

	if c.configFile != "" {
		if err := os.Setenv(config.EnvPrefix+"CONFIG", c.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}
