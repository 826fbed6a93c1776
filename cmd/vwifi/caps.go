package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Print the device capability table",
		Args:  cobra.NoArgs,
		RunE:  runCaps,
	}
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func runCaps(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.dev.Close()

	caps := s.dev.Capabilities()
	if s.out.format == "json" {
		return s.out.JSON(caps)
	}

	w := tabwriter.NewWriter(s.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PHY\t%s\n", caps.PhyName)
	fmt.Fprintf(w, "MODES\t%s\n", strings.Join(caps.InterfaceModes, ","))
	fmt.Fprintf(w, "MAX SCAN SSIDS\t%d\n", caps.MaxScanSSIDs)
	fmt.Fprintf(w, "MAX INTERFACES\t%d\n", caps.MaxInterfaces)
	fmt.Fprintf(w, "BAND\t%s (HT=%t SGI20=%t SGI40=%t)\n",
		caps.Band.Name, caps.Band.HTSupported, caps.Band.SGI20, caps.Band.SGI40)
	for _, ch := range caps.Band.Channels {
		fmt.Fprintf(w, "CHANNEL\t%d\t%d MHz\tno-ibss=%t\n", ch.HWValue, ch.CenterFreq, ch.NoIBSS)
	}
	for _, br := range caps.Band.Bitrates {
		fmt.Fprintf(w, "BITRATE\t%d.%d Mbps\thw=0x%02x\n", br.Bitrate/10, br.Bitrate%10, br.HWValue)
	}
	return w.Flush()
}
