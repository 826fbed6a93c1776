package lua

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/groutine"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
)

// RunOptions describes one script execution.
type RunOptions struct {
	Script string
	Name   string
	Args   map[string]string
	Stdout io.Writer
	Stderr io.Writer

	// WaitTimeout bounds each blocking binding; zero uses DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// Run executes a script against dev, streaming printed lines to the writers
// while it runs. Nil writers discard output.
func Run(ctx context.Context, dev *wifi.Device, rec *hoststack.Recorder, logger *logrus.Logger, opts RunOptions) error {
	if logger == nil {
		logger = logrus.New()
	}
	api := NewWiFiAPI(ctx, dev, rec, logger)
	defer api.Close()

	if opts.WaitTimeout > 0 {
		api.SetWaitTimeout(opts.WaitTimeout)
	}
	if err := api.Engine.SetArgs(opts.Args); err != nil {
		return err
	}

	log := logger.WithFields(logrus.Fields{"script": opts.Name, "size": len(opts.Script)})
	log.Debug("Starting Lua script")

	stop := make(chan struct{})
	drained := groutine.Go(ctx, "lua-output", func(context.Context) {
		write := func(r OutputRecord) {
			w := opts.Stdout
			if r.Source == "stderr" {
				w = opts.Stderr
			}
			if w == nil {
				return
			}
			if _, err := fmt.Fprintln(w, r.Content); err != nil {
				log.WithError(err).Debug("Failed to write script output")
			}
		}
		for {
			select {
			case r := <-api.Engine.Output():
				write(r)
			case <-stop:
				for {
					select {
					case r := <-api.Engine.Output():
						write(r)
					default:
						return
					}
				}
			}
		}
	})

	err := api.Engine.Execute(opts.Script, opts.Name)
	close(stop)
	<-drained

	log.WithError(err).Debug("Lua script finished")
	if err != nil {
		return fmt.Errorf("script %s failed: %w", opts.Name, err)
	}
	return nil
}
