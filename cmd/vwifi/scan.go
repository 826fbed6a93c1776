package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for networks",
		Long: `Run one scan and print the notifications it produced.

The device always finds the same synthetic network. With --abort the scan
is cancelled before its latency elapses and completes as aborted without
announcing anything.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceP("ssid", "s", nil, "SSIDs to probe for")
	cmd.Flags().Duration("latency", 0, "Override the simulated scan latency")
	cmd.Flags().Bool("abort", false, "Abort the scan right after it was accepted")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	latency, _ := cmd.Flags().GetDuration("latency")
	if latency < 0 || latency > config.MaxScanLatency {
		return fmt.Errorf("invalid latency %s: must be within [0, %s]", latency, config.MaxScanLatency)
	}
	ssids, _ := cmd.Flags().GetStringSlice("ssid")
	abort, _ := cmd.Flags().GetBool("abort")

	s, err := newSession(cmd, func(cfg *config.Config) {
		if cmd.Flags().Changed("latency") {
			cfg.ScanLatency = latency
		}
		if abort && cfg.ScanLatency < 100*time.Millisecond {
			// leave the abort a window to land before completion
			cfg.ScanLatency = 100 * time.Millisecond
		}
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	req := wifi.NewScanRequest(ssids...)
	if err := s.dev.Scan(ctx, req); err != nil {
		return firstErr(err, s.close())
	}
	if abort {
		if err := s.dev.AbortScan(ctx); err != nil {
			return firstErr(err, s.close())
		}
	}

	_, err = s.await(ctx, func(e hoststack.Event) bool {
		return e.Type == hoststack.EventScanDone && e.ScanID == req.ID.String()
	})
	return firstErr(err, s.close())
}

// firstErr keeps the operation error over the cleanup error.
func firstErr(err, cleanup error) error {
	if err != nil {
		return err
	}
	return cleanup
}
