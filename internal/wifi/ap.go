package wifi

import (
	"context"

	"github.com/sirupsen/logrus"
)

// StartAP switches vif to access-point mode and tells the host that
// beaconing has started. Only one interface beacons at a time.
func (d *Device) StartAP(ctx context.Context, vif *Interface, params APParams) error {
	const op = "start_ap"

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	defer d.gate.Release()

	if !d.registeredLocked(vif) {
		return newError(op, StateNotFound, "interface not registered")
	}
	if d.apMode && d.apIface != vif {
		return newError(op, StateBusy, "%s is already beaconing", d.apIface.name)
	}

	if params.SSID == "" {
		params.SSID = DummySSID
	}
	if params.BeaconInterval == 0 {
		params.BeaconInterval = dummyBeaconInterval
	}
	if params.DTIMPeriod == 0 {
		params.DTIMPeriod = 1
	}
	if params.Channel == 0 {
		params.Channel = d.cfg.Band.Channels[0].HWValue
	}

	d.apMode = true
	d.apIface = vif
	vif.iftype = IfTypeAP
	d.host.APStarted(vif, params)

	d.logger.WithFields(logrus.Fields{
		"op":      op,
		"iface":   vif.name,
		"ssid":    params.SSID,
		"channel": params.Channel,
	}).Info("AP started")
	return nil
}

// StopAP returns vif to station. If vif is the beaconing interface it also
// clears AP mode and drops its announcement state.
func (d *Device) StopAP(vif *Interface) {
	if vif == nil {
		return
	}

	d.gate.Lock()
	defer d.gate.Release()

	vif.iftype = IfTypeStation
	if d.apIface != vif {
		d.logger.WithFields(logrus.Fields{"op": "stop_ap", "iface": vif.name}).Debug("Interface was not beaconing")
		return
	}
	d.stopBeaconingLocked(vif)

	d.logger.WithFields(logrus.Fields{
		"op":    "stop_ap",
		"iface": vif.name,
	}).Info("AP stopped")
}

// stopBeaconingLocked clears AP mode owned by vif. The gate must be held.
func (d *Device) stopBeaconingLocked(vif *Interface) {
	d.apMode = false
	d.apIface = nil
	d.host.UnregisterBSS(vif)
}
