package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/agentrt/pkg/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agentrt",
		Short:         "Run local message-driven agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", getEnv("AGENTRT_CONFIG", ""), "configuration file (YAML or TOML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newRunCmd(opts), newReplCmd(opts), newBenchCmd(), newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentrt %s\n", Version)
		},
	}
}

// loadConfig reads the configured file, or builds the defaults when none is
// given.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.configFile != "" {
		loaded, err := config.LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnv(os.Getenv)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
