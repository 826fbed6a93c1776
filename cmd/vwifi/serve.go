package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/dbusapi"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/metrics"
	"github.com/srg/vwifi/internal/tapbridge"
	"github.com/srg/vwifi/internal/wifi"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a device alive on D-Bus and expose metrics",
		Long: `Create one device and keep it running until interrupted.

The device is exported on the session bus (or the system bus with --system)
under the configured bus name and object path. Requests arrive as method
calls, completions leave as signals. Prometheus metrics are served on
--metrics-addr. Each --tap-pty interface gets a PTY that carries its
transmitted frames; bytes written to that PTY are transmitted as frames.

Example:
  vwifi serve &
  busctl --user call org.vwifi.Device /org/vwifi/Device org.vwifi.Device Connect ss "" WiFi`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().Bool("system", false, "Use the system bus instead of the session bus")
	cmd.Flags().Bool("no-dbus", false, "Do not connect to D-Bus")
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics (default from config, \"off\" disables)")
	cmd.Flags().StringSlice("tap-pty", nil, "Expose the transmit path of these interfaces on PTYs")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	systemBus, _ := cmd.Flags().GetBool("system")
	noDBus, _ := cmd.Flags().GetBool("no-dbus")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	taps, _ := cmd.Flags().GetStringSlice("tap-pty")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg, true)
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rec := hoststack.NewRecorder(hoststack.Options{
		EventBuffer: cfg.EventBuffer,
		JournalSize: cfg.JournalSize,
	}, logger)
	counted := metrics.NewHost(rec)
	signals := dbusapi.NewSignalHost(counted, cfg.DBus.BusName, dbus.ObjectPath(cfg.DBus.ObjectPath), logger)

	var conn *dbus.Conn
	if !noDBus {
		if conn, err = connectBus(systemBus); err != nil {
			return err
		}
		defer conn.Close()
		signals.Attach(conn)
	}

	dev, err := wifi.New(cfg, signals, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	if conn != nil {
		unpublish, err := dbusapi.Publish(conn, dbusapi.NewService(dev, cfg.DBus.BusName, logger), cfg.DBus)
		if err != nil {
			return err
		}
		defer unpublish()
	}

	if metricsAddr != "off" {
		stop, err := serveMetrics(metricsAddr, counted, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	for _, name := range taps {
		vif, ok := dev.Interface(name)
		if !ok {
			return &wifi.Error{State: wifi.StateNotFound, Op: "tap-pty", Msg: fmt.Sprintf("no interface %q", name)}
		}
		bridge, err := tapbridge.New(vif, tapbridge.Options{}, logger)
		if err != nil {
			return err
		}
		defer bridge.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "%s transmit tap on %s\n", name, bridge.TTYName())
	}

	logger.WithFields(logrus.Fields{
		"phy":   cfg.PhyName,
		"iface": dev.Primary().Name(),
	}).Info("Device ready")
	fmt.Fprintf(cmd.OutOrStdout(), "vwifi serving %s (Ctrl+C to stop)\n", dev.Primary().Name())

	logEvents(ctx, rec, logger)
	return nil
}

func connectBus(system bool) (*dbus.Conn, error) {
	connect, which := dbus.ConnectSessionBus, "session"
	if system {
		connect, which = dbus.ConnectSystemBus, "system"
	}
	conn, err := connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", which, err)
	}
	return conn, nil
}

// serveMetrics starts the metrics listener and returns a shutdown function.
func serveMetrics(addr string, host *metrics.Host, logger *logrus.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", host.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// logEvents logs notifications until ctx is done.
func logEvents(ctx context.Context, rec *hoststack.Recorder, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-rec.Events():
			logger.WithFields(logrus.Fields{
				"seq":    e.Seq,
				"type":   e.Type,
				"iface":  e.Iface,
				"ssid":   e.SSID,
				"status": e.Status,
			}).Info("Notification")
		}
	}
}
