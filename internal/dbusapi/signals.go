package dbusapi

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/wifi"
)

// Emitter sends a signal; *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// check SignalHost compliance to its interface during compile time
var _ wifi.Host = (*SignalHost)(nil)

// SignalHost forwards to another wifi.Host and re-emits each completion as
// a D-Bus signal on the device object.
type SignalHost struct {
	next   wifi.Host
	emit   Emitter
	path   dbus.ObjectPath
	iface  string
	logger *logrus.Logger
}

// NewSignalHost wraps next. A nil emitter disables signals until Attach.
func NewSignalHost(next wifi.Host, iface string, path dbus.ObjectPath, logger *logrus.Logger) *SignalHost {
	if logger == nil {
		logger = logrus.New()
	}
	return &SignalHost{next: next, iface: iface, path: path, logger: logger}
}

// Attach sets the emitter; it must be called before the device is shared.
func (h *SignalHost) Attach(emit Emitter) {
	h.emit = emit
}

func (h *SignalHost) signal(member string, values ...interface{}) {
	if h.emit == nil {
		return
	}
	if err := h.emit.Emit(h.path, h.iface+"."+member, values...); err != nil {
		h.logger.WithError(err).WithField("signal", member).Warn("Failed to emit D-Bus signal")
	}
}

func (h *SignalHost) RegisterInterface(vif *wifi.Interface) error {
	if err := h.next.RegisterInterface(vif); err != nil {
		return err
	}
	h.signal("InterfaceAdded", vif.Name())
	return nil
}

func (h *SignalHost) UnregisterInterface(vif *wifi.Interface) {
	h.next.UnregisterInterface(vif)
	h.signal("InterfaceRemoved", vif.Name())
}

func (h *SignalHost) ScanDone(req *wifi.ScanRequest, info wifi.ScanInfo) {
	h.next.ScanDone(req, info)
	h.signal("ScanDone", req.ID.String(), info.Aborted)
}

func (h *SignalHost) ConnectResult(vif *wifi.Interface, result wifi.ConnectResult) {
	h.next.ConnectResult(vif, result)

	reason := ""
	if result.Status == wifi.ConnectTimeout {
		reason = result.Reason.String()
	}
	bssid := ""
	if result.BSSID != nil {
		bssid = result.BSSID.String()
	}
	h.signal("ConnectResult", vif.Name(), result.Status.String(), reason, result.SSID, bssid)
}

func (h *SignalHost) Disconnected(vif *wifi.Interface, reason uint16, locallyGenerated bool) {
	h.next.Disconnected(vif, reason, locallyGenerated)
	h.signal("Disconnected", vif.Name(), reason, locallyGenerated)
}

func (h *SignalHost) APStarted(vif *wifi.Interface, params wifi.APParams) {
	h.next.APStarted(vif, params)
	h.signal("APStarted", vif.Name(), params.SSID, int32(params.Channel))
}

func (h *SignalHost) UnregisterBSS(vif *wifi.Interface) {
	h.next.UnregisterBSS(vif)
	h.signal("APStopped", vif.Name())
}

func (h *SignalHost) InformBSS(bss wifi.BSS) (wifi.BSSHandle, error) {
	handle, err := h.next.InformBSS(bss)
	if err != nil {
		return nil, err
	}
	ssid, _ := bss.SSID()
	h.signal("BSSInformed", bss.BSSID.String(), ssid, int32(bss.Channel.CenterFreq), bss.Signal)
	return handle, nil
}
