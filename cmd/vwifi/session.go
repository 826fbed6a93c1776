package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
)

// waitTimeout bounds how long a command waits for a terminal notification.
const waitTimeout = 10 * time.Second

// session is one device wired to an in-process host stack for the lifetime
// of a command.
type session struct {
	cfg    *config.Config
	logger *logrus.Logger
	rec    *hoststack.Recorder
	dev    *wifi.Device
	out    *eventPrinter
}

// loadConfig reads --config or falls back to defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newSession validates the output format, configures logging and creates the
// device. tune may adjust the configuration before the device is built.
func newSession(cmd *cobra.Command, tune func(*config.Config)) (*session, error) {
	format, _ := cmd.Flags().GetString("format")
	printer, err := newEventPrinter(cmd.OutOrStdout(), format)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg, false)
	if err != nil {
		return nil, err
	}
	if tune != nil {
		tune(cfg)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	rec := hoststack.NewRecorder(hoststack.Options{
		EventBuffer: cfg.EventBuffer,
		JournalSize: cfg.JournalSize,
	}, logger)

	dev, err := wifi.New(cfg, rec, logger)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, rec: rec, dev: dev, out: printer}, nil
}

// await waits for the first event matching match, bounded by waitTimeout.
func (s *session) await(ctx context.Context, match func(hoststack.Event) bool) (hoststack.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	ev, err := s.rec.WaitFor(ctx, match)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ev, fmt.Errorf("%w: %w", ErrNoNotification, err)
		}
		return ev, err
	}
	return ev, nil
}

// close releases the device and prints every notification it caused, in order.
func (s *session) close() error {
	s.dev.Close()

	events, err := s.rec.DrainJournal()
	if err != nil {
		return err
	}
	if lost := s.rec.JournalOverwritten(); lost > 0 {
		s.logger.WithField("lost", lost).Warn("Journal overflowed, oldest notifications not shown")
	}
	return s.out.Events(events)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
