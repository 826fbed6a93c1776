package wifi

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/dispatch"
	"github.com/srg/vwifi/internal/groutine"
)

// Disconnect records reason and schedules the disconnect routine.
// A nil vif selects the primary interface. A pending connect is not
// affected: both operations keep independent slots.
func (d *Device) Disconnect(ctx context.Context, vif *Interface, reason uint16) error {
	const op = "disconnect"

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
	if d.disconnectPending {
		d.gate.Release()
		return newError(op, StateBusy, "disconnect already pending")
	}
	d.disconnectReason = reason
	d.disconnectPending = true
	d.disconnectIface = vif
	d.gate.Release()

	if err := d.work.Schedule(dispatch.KindDisconnect, d.disconnectRoutine); err != nil {
		d.gate.Lock()
		d.clearDisconnectLocked()
		d.gate.Release()

		d.logger.WithError(err).WithField("op", op).Warn("Disconnect rolled back")
		return scheduleError(op, err)
	}

	d.logger.WithFields(logrus.Fields{
		"op":     op,
		"reason": reason,
		"iface":  vif.name,
	}).Debug("Disconnect accepted")

	return nil
}

// disconnectRoutine reports the recorded reason and resets it to zero.
// Cancellation does not change the outcome, only how the gate is taken.
func (d *Device) disconnectRoutine(ctx context.Context) {
	log := d.logger.WithFields(logrus.Fields{
		"op":     "disconnect",
		"worker": groutine.Name(ctx),
	})

	d.lockForCompletion(ctx)
	defer d.gate.Release()

	if !d.disconnectPending {
		return
	}

	reason := d.disconnectReason
	d.host.Disconnected(d.disconnectIface, reason, true)
	d.clearDisconnectLocked()

	log.WithField("reason", reason).Info("Disconnect finished")
}

func (d *Device) clearDisconnectLocked() {
	d.disconnectReason = 0
	d.disconnectPending = false
	d.disconnectIface = nil
}
