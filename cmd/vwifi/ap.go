package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
)

func newAPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ap",
		Short: "Run an access point",
		Long: `Start beaconing, keep the access point up for --duration (or until
Ctrl+C when the duration is negative), then stop it.

Without --iface the primary interface is switched to AP mode. With --iface
a new interface of that name is created first.`,
		Args: cobra.NoArgs,
		RunE: runAP,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringP("iface", "i", "", "Create this interface for the AP")
	cmd.Flags().String("ssid", wifi.DummySSID, "Network name to beacon")
	cmd.Flags().Int("channel", 0, "Channel hw value (default: first configured channel)")
	cmd.Flags().Uint16("beacon-interval", 0, "Beacon interval in TU (default 100)")
	cmd.Flags().Duration("duration", 0, "How long to keep the AP up; negative waits for Ctrl+C")
	return cmd
}

func runAP(cmd *cobra.Command, _ []string) error {
	ifname, _ := cmd.Flags().GetString("iface")
	ssid, _ := cmd.Flags().GetString("ssid")
	channel, _ := cmd.Flags().GetInt("channel")
	interval, _ := cmd.Flags().GetUint16("beacon-interval")
	duration, _ := cmd.Flags().GetDuration("duration")

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	vif := s.dev.Primary()
	if ifname != "" {
		if vif, err = s.dev.AddInterface(ctx, wifi.IfTypeStation, ifname); err != nil {
			return firstErr(err, s.close())
		}
	}

	params := wifi.APParams{SSID: ssid, Channel: channel, BeaconInterval: interval}
	if err := s.dev.StartAP(ctx, vif, params); err != nil {
		return firstErr(err, s.close())
	}
	if _, err := s.await(ctx, hoststack.OfType(hoststack.EventAPStarted)); err != nil {
		return firstErr(err, s.close())
	}

	s.logger.WithField("iface", vif.Name()).Info("Access point up")
	switch {
	case duration < 0:
		<-ctx.Done()
	case duration > 0:
		select {
		case <-time.After(duration):
		case <-ctx.Done():
		}
	}

	s.dev.StopAP(vif)
	return s.close()
}
