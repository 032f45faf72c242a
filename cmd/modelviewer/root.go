package main

import (
	"github.com/signalsfoundry/modelviewer/internal/config"
	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "modelviewer",
		Short:         "Viewer token relay and headless model loading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "modelviewer.yaml", "YAML configuration file (optional)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before environment overrides")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log.format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newLoadCommand(opts))
	return cmd
}

// load reads configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(o.configPath).
		WithDotenv(o.envFiles...).
		Load()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	lc := cfg.LoggingOptions()
	lc.Output = cmd.ErrOrStderr()
	return logging.New(lc)
}
