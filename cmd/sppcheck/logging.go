package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/pkg/config"
)

// configureLogger creates a logger for cfg, honoring --log-level and --verbose.
// --log-level takes precedence over the configuration file, which takes
// precedence over --verbose.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if flagChanged(cmd, "log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		if _, err := config.ParseLogLevel(level); err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	} else if cfg.LogLevel == "" {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.LogLevel = "debug"
		}
	}

	return cfg.NewLogger(), nil
}
