package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/vwifi/internal/testutils"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/stretchr/testify/suite"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func (s *CommandsTestSuite) TestScan() {
	// GOAL: Verify scan prints the announced BSS and an unaborted completion
	//
	// TEST SCENARIO: vwifi scan -f json → registered, bss_informed, scan_done, unregistered

	out, err := s.ExecuteCommand("scan", "--format", "json", "--latency", "1ms")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"seq": 1, "type": "interface_registered", "iface": "vwifi0", "iftype": "station"},
		{"seq": 2, "type": "bss_informed", "ssid": "WiFi", "bssid": "aa:bb:cc:dd:ee:ff", "freq": 2437, "signal": 1337},
		{"seq": 3, "type": "scan_done", "scan_id": "<<PRESENCE>>"},
		{"seq": 4, "type": "interface_unregistered", "iface": "vwifi0"}
	]`)
}

func (s *CommandsTestSuite) TestScanAbort() {
	out, err := s.ExecuteCommand("scan", "-f", "json", "--abort")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"type": "interface_registered"},
		{"type": "scan_done", "aborted": true},
		{"type": "interface_unregistered"}
	]`)
}

func (s *CommandsTestSuite) TestScanRejectsBadLatency() {
	_, err := s.ExecuteCommand("scan", "--latency", "1h")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid latency")
}

func (s *CommandsTestSuite) TestConnectSuccess() {
	out, err := s.ExecuteCommand("connect", "WiFi", "-f", "json")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"type": "interface_registered"},
		{"type": "bss_informed", "ssid": "WiFi"},
		{"type": "connect_result", "iface": "vwifi0", "status": "success", "ssid": "WiFi", "bssid": "aa:bb:cc:dd:ee:ff"},
		{"type": "interface_unregistered"}
	]`)
}

func (s *CommandsTestSuite) TestConnectTimeout() {
	// GOAL: Verify an unknown SSID prints the timeout and fails the command

	out, err := s.ExecuteCommand("connect", "Office", "-f", "json")
	s.Require().Error(err)
	s.True(errors.Is(err, ErrConnectFailed), "error MUST be ErrConnectFailed, got %v", err)
	s.Contains(err.Error(), "Office timed out (scan)")

	s.JSON.Assert(out, `[
		{"type": "interface_registered"},
		{"type": "connect_result", "status": "timeout", "reason": "scan", "ssid": "Office"},
		{"type": "interface_unregistered"}
	]`)
}

func (s *CommandsTestSuite) TestConnectUnknownInterface() {
	_, err := s.ExecuteCommand("connect", "WiFi", "--iface", "wlan7")
	s.Require().Error(err)
	s.True(wifi.IsState(err, wifi.StateNotFound))
	s.Equal(`lookup: no interface "wlan7"`, FormatUserError(err))
}

func (s *CommandsTestSuite) TestDisconnectTable() {
	out, err := s.ExecuteCommand("disconnect", "--reason", "7")
	s.Require().NoError(err, out)

	s.Text.Assert(out, `
SEQ  EVENT                   IFACE   DETAILS
1    interface_registered    vwifi0  type=station
2    disconnected            vwifi0  reason=7 local=true
3    interface_unregistered  vwifi0  -
`)
}

func (s *CommandsTestSuite) TestAccessPoint() {
	out, err := s.ExecuteCommand("ap", "--ssid", "Lab", "--channel", "11", "-f", "json")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"type": "interface_registered", "iface": "vwifi0"},
		{"type": "ap_started", "iface": "vwifi0", "ssid": "Lab", "channel": 11},
		{"type": "bss_unregistered", "iface": "vwifi0"},
		{"type": "interface_unregistered", "iface": "vwifi0"}
	]`)
}

func (s *CommandsTestSuite) TestAccessPointOnNewInterface() {
	out, err := s.ExecuteCommand("ap", "--iface", "lab0", "-f", "json")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"type": "interface_registered", "iface": "vwifi0"},
		{"type": "interface_registered", "iface": "lab0", "iftype": "station"},
		{"type": "ap_started", "iface": "lab0", "ssid": "WiFi", "channel": 6},
		{"type": "bss_unregistered", "iface": "lab0"},
		{"type": "interface_unregistered", "iface": "lab0"},
		{"type": "interface_unregistered", "iface": "vwifi0"}
	]`)
}

func (s *CommandsTestSuite) TestIfaceTable() {
	// GOAL: Verify interface changes apply in order and the final table is printed
	//
	// TEST SCENARIO: add AP ap0 + auto-named station → table lists three interfaces in creation order

	out, err := s.ExecuteCommand("iface", "--add", "ap:ap0", "--add", "station")
	s.Require().NoError(err, out)

	s.Text.Assert(out, `
NAME    INDEX  TYPE     ADDRESS            PRIMARY
vwifi0  0      station  02:00:00:00:00:00  true
ap0     1      ap       02:00:00:00:00:01  false
vwifi1  2      station  02:00:00:00:00:02  false
`)
}

func (s *CommandsTestSuite) TestIfaceChangeAndDelete() {
	out, err := s.ExecuteCommand("iface", "-f", "json", "--add", "station:lab0", "--change", "lab0=ap", "--add", "sta:lab1", "--del", "lab1")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `[
		{"name": "vwifi0", "type": "station", "primary": true},
		{"name": "lab0", "type": "ap", "primary": false, "tx": {"packets": 0, "bytes": 0, "tap_dropped": 0}}
	]`)
}

func (s *CommandsTestSuite) TestIfaceErrors() {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad add type", []string{"iface", "--add", "mesh"}, `invalid --add "mesh"`},
		{"bad change", []string{"iface", "--change", "vwifi0"}, "want NAME=TYPE"},
		{"unsupported type", []string{"iface", "--add", "monitor"}, "invalid add_interface request"},
		{"primary delete", []string{"iface", "--del", "vwifi0"}, "invalid delete_interface request"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ExecuteCommand(tt.args...)
			s.Require().Error(err)
			s.Contains(FormatUserError(err), tt.want)
		})
	}
}

func (s *CommandsTestSuite) TestCapsWithConfig() {
	path := s.WriteConfig(`
phy_name: lab_phy
max_scan_ssids: 4
band:
  channels:
    - {hw_value: 1, center_freq: 2412}
`)

	out, err := s.ExecuteCommand("caps", "--config", path, "-f", "json")
	s.Require().NoError(err, out)

	s.JSON.Assert(out, `{
		"phy_name": "lab_phy",
		"interface_modes": ["station", "ap"],
		"max_scan_ssids": 4,
		"max_interfaces": 8,
		"band": {"name": "2.4GHz", "channels": [{"hw_value": 1, "center_freq": 2412, "no_ibss": false}]}
	}`)
}

func (s *CommandsTestSuite) TestCapsTable() {
	out, err := s.ExecuteCommand("caps")
	s.Require().NoError(err, out)

	s.Contains(out, "vwifi_phy")
	s.Contains(out, "2437 MHz")
	s.Contains(out, "5.5 Mbps")
	s.Regexp(`(?m)^MAX INTERFACES\s+8$`, out)
}

func (s *CommandsTestSuite) TestDemo() {
	// GOAL: Verify the demo walks every operation and prints the full notification log

	out, err := s.ExecuteCommand("demo", "-f", "json", "--latency", "1ms")
	s.Require().NoError(err, out)

	s.JSON.WithOptions(testutils.WithIgnoredFields("seq", "time", "scan_id", "freq", "signal", "channel", "code", "local"))
	s.JSON.Assert(out, `[
		{"type": "interface_registered", "iface": "vwifi0"},
		{"type": "bss_informed"},
		{"type": "scan_done"},
		{"type": "bss_informed"},
		{"type": "connect_result", "status": "success"},
		{"type": "connect_result", "status": "timeout", "reason": "scan"},
		{"type": "disconnected", "iface": "vwifi0"},
		{"type": "interface_registered", "iface": "vwifi1", "iftype": "ap"},
		{"type": "ap_started", "iface": "vwifi1"},
		{"type": "bss_unregistered", "iface": "vwifi1"},
		{"type": "interface_unregistered", "iface": "vwifi1"},
		{"type": "interface_unregistered", "iface": "vwifi0"}
	]`)
}

func (s *CommandsTestSuite) TestInvalidFlags() {
	_, err := s.ExecuteCommand("scan", "--format", "yaml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format 'yaml'")

	_, err = s.ExecuteCommand("caps", "--log-level", "loud")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid log level: loud")

	_, err = s.ExecuteCommand("caps", "--config", "/nonexistent/vwifi.yaml")
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to load config")
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}

func (s *CommandsTestSuite) TestRunScript() {
	// GOAL: Verify run executes a Lua script with arguments against a fresh device

	path := filepath.Join(s.T().TempDir(), "join.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`
local status, reason = wifi.connect(arg.ssid)
print(arg.ssid, status, reason)
`), 0o600))

	out, err := s.ExecuteCommand("run", path, "--arg", "ssid=WiFi")
	s.Require().NoError(err, out)
	s.Text.Assert(out, "WiFi\tsuccess\tnil")

	out, err = s.ExecuteCommand("run", path, "--arg", "ssid=Office", "--events", "-f", "json")
	s.Require().NoError(err, out)
	s.Contains(out, "Office\ttimeout\tscan")
	s.Contains(out, `"type": "connect_result"`)
}

func (s *CommandsTestSuite) TestRunScriptErrors() {
	_, err := s.ExecuteCommand("run", "/nonexistent/x.lua")
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to read script")

	_, err = s.ExecuteCommand("run", "x.lua", "--arg", "novalue")
	s.Require().Error(err)
	s.Contains(err.Error(), "want KEY=VALUE")
}
