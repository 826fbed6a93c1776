package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <ssid>",
		Short: "Connect to a network",
		Long: `Ask the device to join a network and print the result.

Only "WiFi" succeeds. Any other SSID times out at the scan phase and the
command exits with an error. SSIDs longer than 15 bytes are truncated
before they are compared.`,
		Args: cobra.ExactArgs(1),
		RunE: runConnect,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringP("iface", "i", "", "Interface to connect (default: primary)")
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	ifname, _ := cmd.Flags().GetString("iface")

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	vif, err := s.lookup(ifname)
	if err != nil {
		return firstErr(err, s.close())
	}
	if err := s.dev.Connect(ctx, vif, wifi.ConnectParams{SSID: []byte(args[0])}); err != nil {
		return firstErr(err, s.close())
	}

	ev, err := s.await(ctx, hoststack.OfType(hoststack.EventConnectResult))
	if err == nil && ev.Status != wifi.ConnectSuccess.String() {
		err = fmt.Errorf("%w: %s timed out (%s)", ErrConnectFailed, ev.SSID, ev.Reason)
	}
	return firstErr(err, s.close())
}

// lookup resolves an interface name; "" means the primary interface.
func (s *session) lookup(name string) (*wifi.Interface, error) {
	if name == "" {
		return s.dev.Primary(), nil
	}
	vif, ok := s.dev.Interface(name)
	if !ok {
		return nil, &wifi.Error{State: wifi.StateNotFound, Op: "lookup", Msg: fmt.Sprintf("no interface %q", name)}
	}
	return vif, nil
}
