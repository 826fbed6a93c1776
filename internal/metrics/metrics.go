// Package metrics counts device completions for Prometheus.
//
// Host wraps any wifi.Host and forwards every call unchanged after updating
// its collectors, so it can sit between a Device and the real host stack.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/srg/vwifi/internal/wifi"
)

const namespace = "vwifi"

// check Host compliance to its interface during compile time
var _ wifi.Host = (*Host)(nil)

// Host is a counting wifi.Host decorator.
type Host struct {
	next     wifi.Host
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	connects     *prometheus.CounterVec
	disconnects  *prometheus.CounterVec
	informs      prometheus.Counter
	informErrors prometheus.Counter
	apStarts     prometheus.Counter
	bssRemovals  prometheus.Counter
	interfaces   prometheus.Gauge
}

// NewHost wraps next and registers its collectors on a private registry.
func NewHost(next wifi.Host) *Host {
	h := &Host{
		next:     next,
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Completed scan requests.",
			},
			[]string{"aborted"},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_results_total",
				Help:      "Connect results by status and timeout reason.",
			},
			[]string{"status", "reason"},
		),
		disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Disconnect notifications by reason code.",
			},
			[]string{"reason"},
		),
		informs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bss_informed_total",
			Help:      "BSS announcements accepted by the host.",
		}),
		informErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bss_inform_errors_total",
			Help:      "BSS announcements rejected by the host.",
		}),
		apStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ap_started_total",
			Help:      "Access point start notifications.",
		}),
		bssRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bss_unregistered_total",
			Help:      "Access point announcements withdrawn.",
		}),
		interfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interfaces",
			Help:      "Interfaces currently registered with the host.",
		}),
	}

	h.registry.MustRegister(
		h.scans, h.connects, h.disconnects,
		h.informs, h.informErrors, h.apStarts, h.bssRemovals, h.interfaces,
	)
	return h
}

// Registry exposes the collectors, e.g. for additional process metrics.
func (h *Host) Registry() *prometheus.Registry {
	return h.registry
}

// Handler serves the registry in the Prometheus text format.
func (h *Host) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

func (h *Host) RegisterInterface(vif *wifi.Interface) error {
	if err := h.next.RegisterInterface(vif); err != nil {
		return err
	}
	h.interfaces.Inc()
	return nil
}

func (h *Host) UnregisterInterface(vif *wifi.Interface) {
	h.next.UnregisterInterface(vif)
	h.interfaces.Dec()
}

func (h *Host) ScanDone(req *wifi.ScanRequest, info wifi.ScanInfo) {
	h.scans.WithLabelValues(strconv.FormatBool(info.Aborted)).Inc()
	h.next.ScanDone(req, info)
}

func (h *Host) ConnectResult(vif *wifi.Interface, result wifi.ConnectResult) {
	reason := ""
	if result.Status == wifi.ConnectTimeout {
		reason = result.Reason.String()
	}
	h.connects.WithLabelValues(result.Status.String(), reason).Inc()
	h.next.ConnectResult(vif, result)
}

func (h *Host) Disconnected(vif *wifi.Interface, reason uint16, locallyGenerated bool) {
	h.disconnects.WithLabelValues(strconv.Itoa(int(reason))).Inc()
	h.next.Disconnected(vif, reason, locallyGenerated)
}

func (h *Host) APStarted(vif *wifi.Interface, params wifi.APParams) {
	h.apStarts.Inc()
	h.next.APStarted(vif, params)
}

func (h *Host) UnregisterBSS(vif *wifi.Interface) {
	h.bssRemovals.Inc()
	h.next.UnregisterBSS(vif)
}

func (h *Host) InformBSS(bss wifi.BSS) (wifi.BSSHandle, error) {
	handle, err := h.next.InformBSS(bss)
	if err != nil {
		h.informErrors.Inc()
		return nil, err
	}
	h.informs.Inc()
	return handle, nil
}
