package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through every device operation",
		Long: `Run a fixed sequence against one device and print every host
notification it caused:

  1. scan
  2. connect to "WiFi" (succeeds)
  3. connect to "Office" (times out at the scan phase)
  4. disconnect with reason 3
  5. add an AP interface, transmit one frame, delete the interface`,
		Args: cobra.NoArgs,
		RunE: runDemo,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().Duration("latency", 10*time.Millisecond, "Simulated scan latency")
	return cmd
}

// demoStep issues one request and names the notification that completes it.
type demoStep struct {
	name string
	run  func(ctx context.Context, dev *wifi.Device) error
	done hoststack.EventType
}

func demoSteps() []demoStep {
	return []demoStep{
		{
			name: "scan",
			run: func(ctx context.Context, dev *wifi.Device) error {
				return dev.Scan(ctx, wifi.NewScanRequest())
			},
			done: hoststack.EventScanDone,
		},
		{
			name: "connect WiFi",
			run: func(ctx context.Context, dev *wifi.Device) error {
				return dev.Connect(ctx, nil, wifi.ConnectParams{SSID: []byte(wifi.DummySSID)})
			},
			done: hoststack.EventConnectResult,
		},
		{
			name: "connect Office",
			run: func(ctx context.Context, dev *wifi.Device) error {
				return dev.Connect(ctx, nil, wifi.ConnectParams{SSID: []byte("Office")})
			},
			done: hoststack.EventConnectResult,
		},
		{
			name: "disconnect",
			run: func(ctx context.Context, dev *wifi.Device) error {
				return dev.Disconnect(ctx, nil, 3)
			},
			done: hoststack.EventDisconnected,
		},
		{
			name: "access point",
			run: func(ctx context.Context, dev *wifi.Device) error {
				vif, err := dev.AddInterface(ctx, wifi.IfTypeAP, "")
				if err != nil {
					return err
				}
				vif.Transmit([]byte{0x80, 0x00})
				return dev.DeleteInterface(ctx, vif)
			},
			done: hoststack.EventBSSUnregistered,
		},
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	latency, _ := cmd.Flags().GetDuration("latency")

	s, err := newSession(cmd, func(cfg *config.Config) {
		cfg.ScanLatency = min(max(latency, 0), config.MaxScanLatency)
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	for _, step := range demoSteps() {
		log := s.logger.WithField("step", step.name)
		log.Info("Demo step")

		if err := step.run(ctx, s.dev); err != nil {
			return firstErr(err, s.close())
		}
		if _, err := s.await(ctx, hoststack.OfType(step.done)); err != nil {
			return firstErr(err, s.close())
		}
	}

	return s.close()
}
