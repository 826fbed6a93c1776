package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/lua"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script.lua>",
		Short: "Run a Lua script against a device",
		Long: `Run a Lua script with the global table "wifi" bound to a fresh device.

Bindings block until the device reports completion:

  wifi.scan([ssid, ...])           -> {id, aborted}
  wifi.bss()                       -> {{bssid, ssid, freq, signal, refs}, ...}
  wifi.connect(ssid [, iface])     -> status, reason
  wifi.disconnect([reason [, iface]]) -> reason, locally_generated
  wifi.interfaces()                -> {{name, index, type, address, primary}, ...}
  wifi.add_interface(type [, name]) -> name
  wifi.change_interface(name, type)
  wifi.delete_interface(name)
  wifi.start_ap({iface, ssid, channel, beacon_interval, dtim_period})
  wifi.stop_ap([iface])
  wifi.transmit(frame [, iface])   -> {packets, bytes, tap_dropped}
  wifi.capabilities()              -> {phy_name, max_scan_ssids, max_interfaces, modes}
  wifi.sleep(ms)

Values passed with --arg are available in the table "arg".

Example:
  vwifi run join.lua --arg ssid=WiFi`,
		Args: cobra.ExactArgs(1),
		RunE: runScript,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format for --events (table, json)")
	cmd.Flags().StringArray("arg", nil, "Script argument KEY=VALUE")
	cmd.Flags().Bool("events", false, "Print host notifications after the script")
	return cmd
}

func runScript(cmd *cobra.Command, args []string) error {
	rawArgs, _ := cmd.Flags().GetStringArray("arg")
	showEvents, _ := cmd.Flags().GetBool("events")

	scriptArgs := make(map[string]string, len(rawArgs))
	for _, kv := range rawArgs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --arg %q: want KEY=VALUE", kv)
		}
		scriptArgs[key] = value
	}

	script, err := lua.LoadFile(args[0])
	if err != nil {
		return err
	}

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	err = lua.Run(ctx, s.dev, s.rec, s.logger, lua.RunOptions{
		Script:      script,
		Name:        args[0],
		Args:        scriptArgs,
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
		WaitTimeout: waitTimeout,
	})

	if !showEvents {
		s.dev.Close()
		return err
	}
	return firstErr(err, s.close())
}
