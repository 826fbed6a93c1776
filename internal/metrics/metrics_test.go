package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts hoststack.Options) (*wifi.Device, *hoststack.Recorder, *Host) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.DefaultConfig()
	cfg.ScanLatency = time.Millisecond

	rec := hoststack.NewRecorder(opts, logger)
	host := NewHost(rec)
	dev, err := wifi.New(cfg, host, logger)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev, rec, host
}

func waitFor(t *testing.T, rec *hoststack.Recorder, typ hoststack.EventType) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := rec.WaitFor(ctx, hoststack.OfType(typ))
	require.NoError(t, err)
}

func TestHost_CountsCompletions(t *testing.T) {
	dev, rec, host := setup(t, hoststack.Options{})
	ctx := context.Background()

	require.NoError(t, dev.Scan(ctx, wifi.NewScanRequest()))
	waitFor(t, rec, hoststack.EventScanDone)

	require.NoError(t, dev.Connect(ctx, nil, wifi.ConnectParams{SSID: []byte("Office")}))
	waitFor(t, rec, hoststack.EventConnectResult)

	require.NoError(t, dev.Disconnect(ctx, nil, 3))
	waitFor(t, rec, hoststack.EventDisconnected)

	expected := `
# HELP vwifi_connect_results_total Connect results by status and timeout reason.
# TYPE vwifi_connect_results_total counter
vwifi_connect_results_total{reason="scan",status="timeout"} 1
# HELP vwifi_disconnects_total Disconnect notifications by reason code.
# TYPE vwifi_disconnects_total counter
vwifi_disconnects_total{reason="3"} 1
# HELP vwifi_scans_total Completed scan requests.
# TYPE vwifi_scans_total counter
vwifi_scans_total{aborted="false"} 1
`
	err := testutil.GatherAndCompare(host.Registry(), strings.NewReader(expected),
		"vwifi_scans_total", "vwifi_connect_results_total", "vwifi_disconnects_total")
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(host.informs), "scan MUST announce one BSS")
	assert.Equal(t, 1.0, testutil.ToFloat64(host.interfaces), "primary interface MUST be counted")
}

func TestHost_InformErrors(t *testing.T) {
	dev, rec, host := setup(t, hoststack.Options{RejectInform: errors.New("table full")})

	require.NoError(t, dev.Connect(context.Background(), nil, wifi.ConnectParams{SSID: []byte("WiFi")}))
	waitFor(t, rec, hoststack.EventConnectResult)

	assert.Equal(t, 1.0, testutil.ToFloat64(host.informErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(host.informs))
	assert.Equal(t, 1.0, testutil.ToFloat64(host.connects.WithLabelValues("success", "")),
		"inform failure MUST NOT change the connect outcome")
}

func TestHost_InterfaceGaugeAndAP(t *testing.T) {
	dev, rec, host := setup(t, hoststack.Options{})

	vif, err := dev.AddInterface(context.Background(), wifi.IfTypeAP, "ap0")
	require.NoError(t, err)
	waitFor(t, rec, hoststack.EventAPStarted)
	assert.Equal(t, 2.0, testutil.ToFloat64(host.interfaces))
	assert.Equal(t, 1.0, testutil.ToFloat64(host.apStarts))

	require.NoError(t, dev.DeleteInterface(context.Background(), vif))
	assert.Equal(t, 1.0, testutil.ToFloat64(host.interfaces))
	assert.Equal(t, 1.0, testutil.ToFloat64(host.bssRemovals))
}

func TestHost_Handler(t *testing.T) {
	_, _, host := setup(t, hoststack.Options{})

	srv := httptest.NewServer(host.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vwifi_interfaces 1")
}
