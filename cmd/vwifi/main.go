package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Tests build a fresh tree per run so
// flag values never leak between executions.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vwifi",
		Short: "Simulated wireless NIC",
		Long: `Simulated wireless network interface controller.

The device fakes scanning and association but follows the real
request/completion protocol toward the host networking stack:

- Scan finds exactly one network, "WiFi" (aa:bb:cc:dd:ee:ff)
- Connect succeeds for "WiFi" and times out for anything else
- Disconnect reports the requested reason code
- Virtual interfaces can be added as station or access point

Every command creates a device, performs its operation, prints the host
notifications it caused and releases the device. Use "serve" to keep a
device alive on D-Bus.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newDemoCmd(),
		newScanCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newAPCmd(),
		newIfaceCmd(),
		newCapsCmd(),
		newRunCmd(),
		newServeCmd(),
	)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML device configuration")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
