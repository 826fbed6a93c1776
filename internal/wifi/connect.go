package wifi

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/dispatch"
	"github.com/srg/vwifi/internal/groutine"
)

// Connect records the target SSID, truncated to 15 bytes, and schedules the
// connect routine. A nil vif selects the primary interface.
func (d *Device) Connect(ctx context.Context, vif *Interface, params ConnectParams) error {
	const op = "connect"

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	if vif == nil {
		vif = d.primary
	}
	if !d.registeredLocked(vif) {
		d.gate.Release()
		return newError(op, StateNotFound, "interface not registered")
	}
	if d.connectPending {
		d.gate.Release()
		return newError(op, StateBusy, "connect to %q already pending", d.connectingSSIDLocked())
	}

	n := copy(d.connectingSSID[:ssidBufLen-1], params.SSID)
	d.connectingSSID[n] = 0
	d.connectPending = true
	d.connectIface = vif
	ssid := d.connectingSSIDLocked()
	d.gate.Release()

	if err := d.work.Schedule(dispatch.KindConnect, d.connectRoutine); err != nil {
		d.gate.Lock()
		d.clearConnectLocked()
		d.gate.Release()

		d.logger.WithError(err).WithField("op", op).Warn("Connect rolled back")
		return scheduleError(op, err)
	}

	d.logger.WithFields(logrus.Fields{
		"op":    op,
		"ssid":  ssid,
		"iface": vif.name,
	}).Debug("Connect accepted")

	return nil
}

// connectRoutine resolves the pending connect with exactly one ConnectResult.
func (d *Device) connectRoutine(ctx context.Context) {
	log := d.logger.WithFields(logrus.Fields{
		"op":     "connect",
		"worker": groutine.Name(ctx),
	})

	cancelled := d.lockForCompletion(ctx)
	defer d.gate.Release()

	if !d.connectPending {
		return
	}

	ssid := d.connectingSSIDLocked()
	vif := d.connectIface
	result := ConnectResult{SSID: ssid}

	switch {
	case cancelled:
		result.Status = ConnectTimeout
		result.Reason = TimeoutUnspecified
	case ssid != DummySSID:
		result.Status = ConnectTimeout
		result.Reason = TimeoutScan
	default:
		// The host only accepts association with a BSS it already knows.
		d.informDummyBSS(log)
		result.Status = ConnectSuccess
		result.StatusCode = StatusSuccess
		result.BSSID = append(net.HardwareAddr(nil), DummyBSSID...)
	}

	d.host.ConnectResult(vif, result)
	d.clearConnectLocked()

	log.WithFields(logrus.Fields{
		"ssid":   ssid,
		"status": result.Status,
		"reason": result.Reason,
	}).Info("Connect finished")
}

func (d *Device) clearConnectLocked() {
	d.connectingSSID[0] = 0
	d.connectPending = false
	d.connectIface = nil
}
