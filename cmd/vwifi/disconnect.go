package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/hoststack"
)

func newDisconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect with a reason code",
		Args:  cobra.NoArgs,
		RunE:  runDisconnect,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringP("iface", "i", "", "Interface to disconnect (default: primary)")
	cmd.Flags().Uint16P("reason", "r", 3, "IEEE 802.11 reason code")
	return cmd
}

func runDisconnect(cmd *cobra.Command, _ []string) error {
	ifname, _ := cmd.Flags().GetString("iface")
	reason, _ := cmd.Flags().GetUint16("reason")

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
	if err := s.dev.Disconnect(ctx, vif, reason); err != nil {
		return firstErr(err, s.close())
	}

	_, err = s.await(ctx, hoststack.OfType(hoststack.EventDisconnected))
	return firstErr(err, s.close())
}
