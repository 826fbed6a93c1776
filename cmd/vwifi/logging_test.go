package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/vwifi/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		daemon bool
		want   logrus.Level
	}{
		{"one-shot is silent", nil, false, logrus.PanicLevel},
		{"daemon keeps config level", nil, true, logrus.WarnLevel},
		{"verbose", []string{"--verbose"}, false, logrus.DebugLevel},
		{"log level wins over verbose", []string{"--verbose", "--log-level", "error"}, true, logrus.ErrorLevel},
		{"warning alias", []string{"--log-level", "warning"}, false, logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := loggerTestCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg := config.DefaultConfig()
			cfg.LogLevel = logrus.WarnLevel

			logger, err := configureLogger(cmd, cfg, tt.daemon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestConfigureLogger_RejectsUnknownLevel(t *testing.T) {
	for _, level := range []string{"loud", "trace", "fatal"} {
		cmd := loggerTestCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--log-level", level}))

		_, err := configureLogger(cmd, config.DefaultConfig(), false)
		require.Error(t, err, "level %q MUST be rejected", level)
		assert.Contains(t, err.Error(), "invalid log level: "+level)
	}
}

func TestConfigureLogger_WritesToStderr(t *testing.T) {
	cmd := loggerTestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "info"}))
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	logger, err := configureLogger(cmd, config.DefaultConfig(), false)
	require.NoError(t, err)
	logger.Info("hello")

	assert.Contains(t, stderr.String(), "hello")
}

func loggerTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}
