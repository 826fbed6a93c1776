package wifi

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/dispatch"
	"github.com/srg/vwifi/internal/gate"
	"github.com/srg/vwifi/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ssidBufLen holds at most 15 SSID bytes plus a NUL terminator.
const ssidBufLen = 16

// Capabilities is the static description of the device.
type Capabilities struct {
	PhyName        string      `json:"phy_name"`
	InterfaceModes []string    `json:"interface_modes"`
	MaxScanSSIDs   int         `json:"max_scan_ssids"`
	MaxInterfaces  int         `json:"max_interfaces"`
	Band           config.Band `json:"band"`
}

// Device is the explicitly owned context of one simulated controller.
type Device struct {
	cfg    *config.Config
	host   Host
	logger *logrus.Logger
	gate   *gate.Gate
	work   *dispatch.Dispatcher

	closeOnce sync.Once

	// Everything below is guarded by gate.
	closed bool

	scanRequest *ScanRequest
	scanAborted bool

	connectPending bool
	connectingSSID [ssidBufLen]byte
	connectIface   *Interface

	disconnectPending bool
	disconnectReason  uint16
	disconnectIface   *Interface

	apMode  bool
	apIface *Interface

	ifaces    *orderedmap.OrderedMap[string, *Interface]
	primary   *Interface
	nextIndex int
	ifIndex   int
}

// New creates a device, starts its workers and registers the primary
// station interface with host. A nil cfg uses config.DefaultConfig().
func New(cfg *config.Config, host Host, logger *logrus.Logger) (*Device, error) {
	if host == nil {
		return nil, fmt.Errorf("host stack is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	d := &Device{
		cfg:    cfg,
		host:   host,
		logger: logger,
		gate:   gate.New(),
		work:   dispatch.New(logger),
		ifaces: orderedmap.New[string, *Interface](),
	}

	primary := d.newInterface(d.autoName(), IfTypeStation)
	if err := host.RegisterInterface(primary); err != nil {
		d.work.Close()
		return nil, fmt.Errorf("failed to register %s: %w", primary.name, err)
	}
	d.ifaces.Set(primary.name, primary)
	d.primary = primary

	logger.WithFields(logrus.Fields{
		"phy":   cfg.PhyName,
		"iface": primary.name,
	}).Info("Wireless device created")

	return d, nil
}

// Close cancels all deferred work, waits for it, then unregisters every
// interface. Each accepted request still receives its terminal notification.
// Calling Close more than once is safe.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.gate.Lock()
		d.closed = true
		d.gate.Release()

		// Routines need the gate, so it must not be held here.
		d.work.Close()

		d.gate.Lock()
		ap := d.apIface
		d.apMode = false
		d.apIface = nil
		var ifaces []*Interface
		for pair := d.ifaces.Newest(); pair != nil; pair = pair.Prev() {
			ifaces = append(ifaces, pair.Value)
		}
		d.ifaces = orderedmap.New[string, *Interface]()
		d.primary = nil
		if ap != nil {
			d.host.UnregisterBSS(ap)
		}
		d.gate.Release()

		for _, vif := range ifaces {
			d.host.UnregisterInterface(vif)
		}

		d.logger.WithField("phy", d.cfg.PhyName).Info("Wireless device released")
	})
}

// Capabilities returns the static band and mode tables.
func (d *Device) Capabilities() Capabilities {
	return Capabilities{
		PhyName:        d.cfg.PhyName,
		InterfaceModes: append([]string(nil), d.cfg.InterfaceModes...),
		MaxScanSSIDs:   d.cfg.MaxScanSSIDs,
		MaxInterfaces:  d.cfg.MaxInterfaces,
		Band:           d.cfg.Band,
	}
}

// acquire takes the gate for a request method; interruption maps to ErrRetry.
func (d *Device) acquire(ctx context.Context, op string) error {
	if err := d.gate.Acquire(ctx); err != nil {
		return &Error{State: StateRetry, Op: op, Err: err}
	}
	if d.closed {
		d.gate.Release()
		return newError(op, StateClosed, "device closed")
	}
	return nil
}

// lockForCompletion takes the gate for a routine. If ctx is cancelled while
// waiting it still takes the gate, and reports cancelled=true so the routine
// can take its abort path.
func (d *Device) lockForCompletion(ctx context.Context) (cancelled bool) {
	if err := d.gate.Acquire(ctx); err != nil {
		d.gate.Lock()
		return true
	}
	return false
}

// PendingScan returns the scan request currently in flight, if any.
func (d *Device) PendingScan() *ScanRequest {
	d.gate.Lock()
	defer d.gate.Release()
	return d.scanRequest
}

// ConnectingSSID returns the recorded connect target, "" when none.
func (d *Device) ConnectingSSID() string {
	d.gate.Lock()
	defer d.gate.Release()
	return d.connectingSSIDLocked()
}

// DisconnectReason returns the recorded disconnect reason code.
func (d *Device) DisconnectReason() uint16 {
	d.gate.Lock()
	defer d.gate.Release()
	return d.disconnectReason
}

// APMode reports whether an interface is beaconing.
func (d *Device) APMode() bool {
	d.gate.Lock()
	defer d.gate.Release()
	return d.apMode
}

func (d *Device) connectingSSIDLocked() string {
	for i, b := range d.connectingSSID {
		if b == 0 {
			return string(d.connectingSSID[:i])
		}
	}
	return string(d.connectingSSID[:])
}
