package main

import (
	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/config"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

// loadConfig reads the configuration and configures logging from it. The
// --log-level flag takes precedence over the file and environment.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		config.ApplyDefaults(cfg)
	}
	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded: backend=%s index=%s", cfg.Storage.Backend, cfg.Index.Path)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "blossom",
		Short:         "Content-addressed blob storage with retention",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/blossom/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log level (DEBUG, INFO, WARN, ERROR)")
	cmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newServeCmd(g),
		newPruneCmd(g),
		newBlobsCmd(g),
		newOwnersCmd(g),
		newConfigCmd(g),
		newMigrateCmd(g),
	)

	return cmd
}
