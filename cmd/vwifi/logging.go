package main

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/vwifi/pkg/config"
)

// flagLevels are the values accepted by --log-level.
var flagLevels = []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}

// configureLogger derives the command logger from cfg and writes to stderr.
// --log-level wins over --verbose. Without either, one-shot commands are
// silent and a daemon keeps the configured level.
func configureLogger(cmd *cobra.Command, cfg *config.Config, daemon bool) (*logrus.Logger, error) {
	level, set, err := flagLogLevel(cmd)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	switch {
	case set:
		logger.SetLevel(level)
	case !daemon:
		logger.SetLevel(logrus.PanicLevel)
	}
	return logger, nil
}

func flagLogLevel(cmd *cobra.Command) (logrus.Level, bool, error) {
	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		level, err := logrus.ParseLevel(name)
		if err != nil || !slices.Contains(flagLevels, level) {
			return 0, false, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		return level, true, nil
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return logrus.DebugLevel, true, nil
	}
	return 0, false, nil
}
