package wifi_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
	"github.com/stretchr/testify/suite"
)

// DeviceTestSuite drives a Device against the in-process host stack.
type DeviceTestSuite struct {
	suite.Suite

	cfg    *config.Config
	rec    *hoststack.Recorder
	device *wifi.Device
	ctx    context.Context
	cancel context.CancelFunc
}

func (suite *DeviceTestSuite) SetupTest() {
	suite.cfg = config.DefaultConfig()
	suite.cfg.ScanLatency = 5 * time.Millisecond
	suite.cfg.MaxInterfaces = 3
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	suite.newDevice()
}

func (suite *DeviceTestSuite) TearDownTest() {
	if suite.device != nil {
		suite.device.Close()
	}
	suite.cancel()
}

func (suite *DeviceTestSuite) newDevice() {
	if suite.device != nil {
		suite.device.Close()
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	suite.rec = hoststack.NewRecorder(hoststack.Options{}, logger)
	dev, err := wifi.New(suite.cfg, suite.rec, logger)
	suite.Require().NoError(err, "device creation MUST succeed")
	suite.device = dev

	_, err = suite.rec.WaitFor(suite.ctx, hoststack.OfType(hoststack.EventInterfaceRegistered))
	suite.Require().NoError(err)
}

func (suite *DeviceTestSuite) waitFor(t hoststack.EventType) hoststack.Event {
	ev, err := suite.rec.WaitFor(suite.ctx, hoststack.OfType(t))
	suite.Require().NoError(err, "%s notification MUST arrive", t)
	return ev
}

// terminal collects n terminal notifications in arrival order.
func (suite *DeviceTestSuite) terminal(n int) []hoststack.Event {
	var out []hoststack.Event
	for len(out) < n {
		ev, err := suite.rec.WaitFor(suite.ctx, hoststack.Event.IsTerminal)
		suite.Require().NoError(err, "terminal notification MUST arrive")
		out = append(out, ev)
	}
	return out
}

func (suite *DeviceTestSuite) assertState(err error, state wifi.State) {
	suite.Require().Error(err)
	suite.True(wifi.IsState(err, state), "error MUST be %s, got %v", state, err)
}

// =============================================================================
// Scan
// =============================================================================

func (suite *DeviceTestSuite) TestScanReportsDummyBSS() {
	// GOAL: Verify a scan announces the dummy network and completes unaborted
	//
	// TEST SCENARIO: Scan → bss_informed for "WiFi" → scan_done(aborted=false) for the same request

	req := wifi.NewScanRequest()
	suite.Require().NoError(suite.device.Scan(suite.ctx, req))

	bss := suite.waitFor(hoststack.EventBSSInformed)
	suite.Equal(wifi.DummySSID, bss.SSID)
	suite.Equal("aa:bb:cc:dd:ee:ff", bss.BSSID)
	suite.Equal(2437, bss.Freq, "BSS MUST be on the first configured channel")
	suite.EqualValues(1337, bss.Signal)

	done := suite.waitFor(hoststack.EventScanDone)
	suite.Equal(req.ID.String(), done.ScanID)
	suite.False(done.Aborted, "completed scan MUST NOT be aborted")
	suite.Greater(done.Seq, bss.Seq, "BSS MUST be announced before completion")

	suite.Eventually(func() bool { return suite.device.PendingScan() == nil },
		time.Second, time.Millisecond, "scan slot MUST be cleared")
	suite.EqualValues(1, suite.rec.InformCount())
}

func (suite *DeviceTestSuite) TestScanBusyWhilePending() {
	// GOAL: Verify only one scan can be outstanding
	//
	// TEST SCENARIO: Slow scan → second scan fails Busy → first completes → third scan accepted

	suite.cfg.ScanLatency = 100 * time.Millisecond
	suite.newDevice()

	first := wifi.NewScanRequest()
	suite.Require().NoError(suite.device.Scan(suite.ctx, first))

	err := suite.device.Scan(suite.ctx, wifi.NewScanRequest())
	suite.assertState(err, wifi.StateBusy)
	suite.ErrorIs(err, wifi.ErrBusy)
	suite.Same(first, suite.device.PendingScan(), "rejected scan MUST NOT replace the pending one")

	done := suite.waitFor(hoststack.EventScanDone)
	suite.Equal(first.ID.String(), done.ScanID)

	suite.Eventually(func() bool {
		return suite.device.Scan(suite.ctx, wifi.NewScanRequest()) == nil
	}, time.Second, 5*time.Millisecond, "scan MUST be accepted once the slot is free")
}

func (suite *DeviceTestSuite) TestScanInvalidArguments() {
	// GOAL: Verify malformed scan requests are refused before touching state

	suite.assertState(suite.device.Scan(suite.ctx, nil), wifi.StateInvalidArgument)

	ssids := make([]string, suite.cfg.MaxScanSSIDs+1)
	suite.assertState(suite.device.Scan(suite.ctx, wifi.NewScanRequest(ssids...)), wifi.StateInvalidArgument)
	suite.Nil(suite.device.PendingScan())
}

func (suite *DeviceTestSuite) TestAbortScan() {
	// GOAL: Verify an aborted scan reports aborted=true and announces nothing
	//
	// TEST SCENARIO: Slow scan → AbortScan → scan_done(aborted=true) → no BSS informed

	suite.cfg.ScanLatency = 50 * time.Millisecond
	suite.newDevice()

	suite.assertState(suite.device.AbortScan(suite.ctx), wifi.StateNotFound)

	suite.Require().NoError(suite.device.Scan(suite.ctx, wifi.NewScanRequest()))
	suite.Require().NoError(suite.device.AbortScan(suite.ctx))

	done := suite.waitFor(hoststack.EventScanDone)
	suite.True(done.Aborted, "aborted scan MUST be reported as aborted")
	suite.Zero(suite.rec.InformCount(), "aborted scan MUST NOT announce a BSS")
}

// =============================================================================
// Connect / Disconnect
// =============================================================================

func (suite *DeviceTestSuite) TestConnectKnownSSID() {
	// GOAL: Verify connecting to the dummy network succeeds with its BSSID
	//
	// TEST SCENARIO: Connect("WiFi") → bss_informed → connect_result(success, status 0)

	suite.Require().NoError(suite.device.Connect(suite.ctx, nil, wifi.ConnectParams{SSID: []byte("WiFi")}))

	bss := suite.waitFor(hoststack.EventBSSInformed)
	res := suite.waitFor(hoststack.EventConnectResult)

	suite.Equal("success", res.Status)
	suite.Empty(res.Reason, "success MUST NOT carry a timeout reason")
	suite.EqualValues(wifi.StatusSuccess, res.Code)
	suite.Equal("aa:bb:cc:dd:ee:ff", res.BSSID)
	suite.Equal("WiFi", res.SSID)
	suite.Equal("vwifi0", res.Iface, "nil interface MUST select the primary")
	suite.Greater(res.Seq, bss.Seq, "BSS MUST be known before association is reported")
	suite.EqualValues(1, suite.rec.InformCount(), "successful connect MUST announce exactly one BSS")

	suite.Eventually(func() bool { return suite.device.ConnectingSSID() == "" },
		time.Second, time.Millisecond, "connect target MUST be cleared")
}

func (suite *DeviceTestSuite) TestConnectUnknownSSID() {
	// GOAL: Verify connecting to any other SSID times out at the scan phase

	suite.Require().NoError(suite.device.Connect(suite.ctx, nil, wifi.ConnectParams{SSID: []byte("Office")}))

	res := suite.waitFor(hoststack.EventConnectResult)
	suite.Equal("timeout", res.Status)
	suite.Equal("scan", res.Reason)
	suite.Equal("Office", res.SSID)
	suite.Empty(res.BSSID)
	suite.Zero(suite.rec.InformCount(), "failed connect MUST NOT announce a BSS")
}

func (suite *DeviceTestSuite) TestConnectTruncatesSSID() {
	// GOAL: Verify the recorded target keeps at most 15 bytes
	//
	// TEST SCENARIO: Connect with a 20-byte SSID starting with "WiFi" → result carries 15 bytes → timeout

	suite.Require().NoError(suite.device.Connect(suite.ctx, nil, wifi.ConnectParams{SSID: []byte("WiFiABCDEFGHIJKLMNOP")}))

	res := suite.waitFor(hoststack.EventConnectResult)
	suite.Equal("WiFiABCDEFGHIJK", res.SSID)
	suite.Len(res.SSID, 15)
	suite.Equal("timeout", res.Status, "truncated SSID MUST NOT match the dummy network")
}

func (suite *DeviceTestSuite) TestConnectUnknownInterface() {
	// GOAL: Verify requests for a deleted interface are refused

	vif, err := suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "sta1")
	suite.Require().NoError(err)
	suite.Require().NoError(suite.device.DeleteInterface(suite.ctx, vif))

	suite.assertState(suite.device.Connect(suite.ctx, vif, wifi.ConnectParams{SSID: []byte("WiFi")}), wifi.StateNotFound)
	suite.assertState(suite.device.Disconnect(suite.ctx, vif, 3), wifi.StateNotFound)
}

func (suite *DeviceTestSuite) TestDisconnectReportsReason() {
	// GOAL: Verify the disconnect reason is reported once and then reset
	//
	// TEST SCENARIO: Disconnect(3) → disconnected(reason 3, local) → reason back to 0 → Disconnect(4) accepted

	suite.Require().NoError(suite.device.Disconnect(suite.ctx, nil, 3))

	ev := suite.waitFor(hoststack.EventDisconnected)
	suite.EqualValues(3, ev.Code)
	suite.True(ev.Local, "device-initiated disconnect MUST be locally generated")
	suite.Equal("vwifi0", ev.Iface)

	suite.Eventually(func() bool { return suite.device.DisconnectReason() == 0 },
		time.Second, time.Millisecond, "reason MUST be reset after reporting")

	suite.Require().NoError(suite.device.Disconnect(suite.ctx, nil, 4),
		"a disconnect MUST be accepted right after the previous one completed")
	ev = suite.waitFor(hoststack.EventDisconnected)
	suite.EqualValues(4, ev.Code)
}

func (suite *DeviceTestSuite) TestConnectAndDisconnectAreIndependent() {
	// GOAL: Verify a connect and a disconnect issued together both complete
	//
	// TEST SCENARIO: Connect("WiFi") + Disconnect(8) → exactly one connect_result and one disconnected

	suite.Require().NoError(suite.device.Connect(suite.ctx, nil, wifi.ConnectParams{SSID: []byte("WiFi")}))
	suite.Require().NoError(suite.device.Disconnect(suite.ctx, nil, 8))

	counts := map[hoststack.EventType]int{}
	for _, ev := range suite.terminal(2) {
		counts[ev.Type]++
	}
	suite.Equal(1, counts[hoststack.EventConnectResult])
	suite.Equal(1, counts[hoststack.EventDisconnected])
}

func (suite *DeviceTestSuite) TestRequestsRetryOnCancelledContext() {
	// GOAL: Verify a caller whose context is already done is told to retry

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, err := range map[string]error{
		"scan":       suite.device.Scan(ctx, wifi.NewScanRequest()),
		"connect":    suite.device.Connect(ctx, nil, wifi.ConnectParams{SSID: []byte("WiFi")}),
		"disconnect": suite.device.Disconnect(ctx, nil, 1),
	} {
		suite.Require().Error(err, name)
		suite.ErrorIs(err, wifi.ErrRetry, "%s MUST fail with retry", name)
		suite.ErrorIs(err, context.Canceled, "%s MUST wrap the context error", name)
	}
	suite.Nil(suite.device.PendingScan(), "refused scan MUST NOT leave state behind")
}

// =============================================================================
// Close
// =============================================================================

func (suite *DeviceTestSuite) TestCloseAbortsPendingScan() {
	// GOAL: Verify shutdown still delivers the terminal notification of a pending scan
	//
	// TEST SCENARIO: Slow scan → Close → scan_done(aborted=true) → interfaces unregistered

	suite.cfg.ScanLatency = config.MaxScanLatency
	suite.newDevice()

	suite.Require().NoError(suite.device.Scan(suite.ctx, wifi.NewScanRequest()))

	start := time.Now()
	suite.device.Close()
	suite.Less(time.Since(start), time.Second, "Close MUST NOT wait out the scan latency")

	done := suite.waitFor(hoststack.EventScanDone)
	suite.True(done.Aborted)

	suite.waitFor(hoststack.EventInterfaceUnregistered)
	suite.Empty(suite.rec.Interfaces())
}

func (suite *DeviceTestSuite) TestCloseIsIdempotentAndRefusesWork() {
	// GOAL: Verify Close may be repeated and closed devices refuse requests

	suite.device.Close()
	suite.device.Close()

	suite.ErrorIs(suite.device.Scan(suite.ctx, wifi.NewScanRequest()), wifi.ErrClosed)
	suite.ErrorIs(suite.device.Connect(suite.ctx, nil, wifi.ConnectParams{SSID: []byte("WiFi")}), wifi.ErrClosed)
	suite.ErrorIs(suite.device.Disconnect(suite.ctx, nil, 1), wifi.ErrClosed)
	_, err := suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "")
	suite.ErrorIs(err, wifi.ErrClosed)
	suite.Nil(suite.device.Primary())
}

// =============================================================================
// Interfaces and AP
// =============================================================================

func (suite *DeviceTestSuite) TestInterfaceLifecycle() {
	// GOAL: Verify interfaces are named, limited, retyped and deleted correctly
	//
	// TEST SCENARIO: Add auto-named + named → limit reached → change type → delete → primary protected

	auto, err := suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "")
	suite.Require().NoError(err)
	suite.Equal("vwifi1", auto.Name())
	suite.Equal(1, auto.Index())
	suite.Equal("02:00:00:00:00:01", auto.HardwareAddr().String())
	suite.Same(suite.device, auto.Device())

	_, err = suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "vwifi1")
	suite.assertState(err, wifi.StateInvalidArgument)

	named, err := suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "mon0")
	suite.Require().NoError(err)

	_, err = suite.device.AddInterface(suite.ctx, wifi.IfTypeStation, "")
	suite.assertState(err, wifi.StateResourceExhausted)

	suite.Require().NoError(suite.device.ChangeInterface(suite.ctx, named, wifi.IfTypeAP))
	suite.Equal(wifi.IfTypeAP, named.Type())
	suite.assertState(suite.device.ChangeInterface(suite.ctx, named, wifi.IfTypeMonitor), wifi.StateInvalidArgument)

	var names []string
	for _, vif := range suite.device.Interfaces() {
		names = append(names, vif.Name())
	}
	suite.Equal([]string{"vwifi0", "vwifi1", "mon0"}, names, "interfaces MUST be listed in creation order")
	suite.Equal(names, suite.rec.Interfaces())

	suite.Require().NoError(suite.device.DeleteInterface(suite.ctx, named))
	_, ok := suite.device.Interface("mon0")
	suite.False(ok)
	suite.assertState(suite.device.DeleteInterface(suite.ctx, named), wifi.StateNotFound)
	suite.assertState(suite.device.DeleteInterface(suite.ctx, suite.device.Primary()), wifi.StateInvalidArgument)

	_, err = suite.device.AddInterface(suite.ctx, wifi.IfTypeMonitor, "")
	suite.assertState(err, wifi.StateInvalidArgument)
}

func (suite *DeviceTestSuite) TestAddInterfaceHostRefusal() {
	// GOAL: Verify an interface the host refuses is rolled back

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	rec := hoststack.NewRecorder(hoststack.Options{
		RejectInterface: func(name string) error {
			if name == "bad0" {
				return errors.New("refused")
			}
			return nil
		},
	}, logger)
	dev, err := wifi.New(suite.cfg, rec, logger)
	suite.Require().NoError(err)
	defer dev.Close()

	_, err = dev.AddInterface(suite.ctx, wifi.IfTypeStation, "bad0")
	suite.Require().Error(err)
	_, ok := dev.Interface("bad0")
	suite.False(ok, "refused interface MUST be removed from the device")
}

func (suite *DeviceTestSuite) TestAccessPoint() {
	// GOAL: Verify AP interfaces beacon with defaults and only one beacons at a time
	//
	// TEST SCENARIO: Add AP → ap_started with defaults → second StartAP Busy → StopAP → station again

	ap, err := suite.device.AddInterface(suite.ctx, wifi.IfTypeAP, "ap0")
	suite.Require().NoError(err)

	started := suite.waitFor(hoststack.EventAPStarted)
	suite.Equal("ap0", started.Iface)
	suite.Equal(wifi.DummySSID, started.SSID)
	suite.Equal(6, started.Channel)
	suite.True(suite.device.APMode())

	params, ok := suite.rec.Beaconing("ap0")
	suite.Require().True(ok)
	suite.EqualValues(100, params.BeaconInterval)
	suite.EqualValues(1, params.DTIMPeriod)

	err = suite.device.StartAP(suite.ctx, suite.device.Primary(), wifi.APParams{SSID: "Other"})
	suite.assertState(err, wifi.StateBusy)

	suite.device.StopAP(ap)
	suite.waitFor(hoststack.EventBSSUnregistered)
	suite.False(suite.device.APMode())
	suite.Equal(wifi.IfTypeStation, ap.Type())

	suite.Require().NoError(suite.device.StartAP(suite.ctx, suite.device.Primary(), wifi.APParams{SSID: "Other", Channel: 11}))
	started = suite.waitFor(hoststack.EventAPStarted)
	suite.Equal("Other", started.SSID)
	suite.Equal(11, started.Channel)
}

func (suite *DeviceTestSuite) TestTransmitTap() {
	// GOAL: Verify frames are counted, mirrored to the tap when they fit, and dropped

	suite.cfg.TapSize = 8
	suite.newDevice()
	vif := suite.device.Primary()

	suite.Equal(wifi.TxOK, vif.Transmit([]byte("hello")))
	suite.Equal(wifi.TxOK, vif.Transmit([]byte("world")), "a frame that does not fit MUST still be accepted")

	stats := vif.TxStats()
	suite.EqualValues(2, stats.Packets)
	suite.EqualValues(10, stats.Bytes)
	suite.EqualValues(1, stats.TapDropped)

	buf := make([]byte, 16)
	n, err := vif.ReadTap(buf)
	suite.Require().NoError(err)
	suite.Equal("hello", string(buf[:n]))

	n, err = vif.ReadTap(buf)
	suite.Require().NoError(err)
	suite.Zero(n, "empty tap MUST read nothing")
}

func (suite *DeviceTestSuite) TestCapabilities() {
	caps := suite.device.Capabilities()

	suite.Equal("vwifi_phy", caps.PhyName)
	suite.Equal([]string{"station", "ap"}, caps.InterfaceModes)
	suite.Equal(69, caps.MaxScanSSIDs)
	suite.Len(caps.Band.Channels, 3)
	suite.Len(caps.Band.Bitrates, 8)

	caps.InterfaceModes[0] = "mutated"
	suite.Equal("station", suite.device.Capabilities().InterfaceModes[0], "capabilities MUST be returned by copy")
}

func TestDeviceTestSuite(t *testing.T) {
	suite.Run(t, new(DeviceTestSuite))
}
