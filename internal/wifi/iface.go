package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// TxStatus is the result of handing a frame to the transmit path.
type TxStatus int

// TxOK is the only status: the simulated link accepts every frame.
const TxOK TxStatus = 0

// TxStats counts frames accepted by Transmit.
type TxStats struct {
	Packets    uint64 `json:"packets"`
	Bytes      uint64 `json:"bytes"`
	TapDropped uint64 `json:"tap_dropped"`
}

// Interface is one virtual network endpoint of a Device.
type Interface struct {
	name   string
	index  int
	addr   net.HardwareAddr
	device *Device

	iftype IfType // guarded by device.gate

	txPackets  atomic.Uint64
	txBytes    atomic.Uint64
	tapDropped atomic.Uint64
	tapMu      sync.Mutex
	tap        *ringbuffer.RingBuffer
}

func (i *Interface) Name() string                   { return i.name }
func (i *Interface) Index() int                     { return i.index }
func (i *Interface) HardwareAddr() net.HardwareAddr { return i.addr }
func (i *Interface) Device() *Device                { return i.device }

// Type returns the current interface type.
func (i *Interface) Type() IfType {
	i.device.gate.Lock()
	defer i.device.gate.Release()
	return i.iftype
}

func (i *Interface) String() string {
	return i.name
}

// Transmit accepts an outbound frame. There is no transport: the frame is
// counted, copied into the capture tap when it fits whole, and dropped.
func (i *Interface) Transmit(frame []byte) TxStatus {
	i.txPackets.Add(1)
	i.txBytes.Add(uint64(len(frame)))

	if i.tap == nil || len(frame) == 0 {
		return TxOK
	}

	i.tapMu.Lock()
	defer i.tapMu.Unlock()

	if len(frame) > i.tap.Free() {
		i.tapDropped.Add(1)
		return TxOK
	}
	if _, err := i.tap.Write(frame); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		i.device.logger.WithError(err).WithField("iface", i.name).Debug("Capture tap write failed")
	}
	return TxOK
}

// ReadTap drains captured transmit bytes into p. It never blocks.
func (i *Interface) ReadTap(p []byte) (int, error) {
	if i.tap == nil {
		return 0, nil
	}

	i.tapMu.Lock()
	defer i.tapMu.Unlock()

	n, err := i.tap.TryRead(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return n, err
	}
	return n, nil
}

// TxStats returns a snapshot of transmit counters.
func (i *Interface) TxStats() TxStats {
	return TxStats{
		Packets:    i.txPackets.Load(),
		Bytes:      i.txBytes.Load(),
		TapDropped: i.tapDropped.Load(),
	}
}

// autoName returns the next pattern-derived name; called before the device
// is shared or with the gate held.
func (d *Device) autoName() string {
	for {
		name := fmt.Sprintf(d.cfg.InterfacePattern, d.nextIndex)
		d.nextIndex++
		if _, taken := d.ifaces.Get(name); !taken {
			return name
		}
	}
}

func (d *Device) newInterface(name string, typ IfType) *Interface {
	vif := &Interface{
		name:   name,
		index:  d.ifIndex,
		device: d,
		iftype: typ,
	}
	d.ifIndex++
	// locally administered unicast address derived from creation order
	vif.addr = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, byte(vif.index >> 8), byte(vif.index)}
	if d.cfg.TapSize > 0 {
		vif.tap = ringbuffer.New(d.cfg.TapSize)
	}
	return vif
}

func (d *Device) registeredLocked(vif *Interface) bool {
	if vif == nil {
		return false
	}
	cur, ok := d.ifaces.Get(vif.name)
	return ok && cur == vif
}

func (d *Device) modeSupported(typ IfType) bool {
	if typ != IfTypeStation && typ != IfTypeAP {
		return false
	}
	return slices.Contains(d.cfg.InterfaceModes, typ.String())
}

// AddInterface creates, registers and returns a new virtual interface. An
// empty name is derived from the configured pattern. AP interfaces start
// beaconing immediately; if that fails the interface is removed again.
func (d *Device) AddInterface(ctx context.Context, typ IfType, name string) (*Interface, error) {
	const op = "add_interface"

	if !d.modeSupported(typ) {
		return nil, newError(op, StateInvalidArgument, "unsupported interface type %s", typ)
	}

	if err := d.acquire(ctx, op); err != nil {
		return nil, err
	}
	if d.ifaces.Len() >= d.cfg.MaxInterfaces {
		d.gate.Release()
		return nil, newError(op, StateResourceExhausted, "limit of %d interfaces reached", d.cfg.MaxInterfaces)
	}
	if name == "" {
		name = d.autoName()
	} else if _, taken := d.ifaces.Get(name); taken {
		d.gate.Release()
		return nil, newError(op, StateInvalidArgument, "interface %q already exists", name)
	}
	vif := d.newInterface(name, typ)
	d.ifaces.Set(name, vif)
	d.gate.Release()

	log := d.logger.WithFields(logrus.Fields{"op": op, "iface": name, "type": typ})

	if err := d.host.RegisterInterface(vif); err != nil {
		d.removeInterface(vif)
		log.WithError(err).Warn("Host refused interface")
		return nil, fmt.Errorf("%s: register %s: %w", op, name, err)
	}

	if typ == IfTypeAP {
		if err := d.StartAP(ctx, vif, APParams{SSID: DummySSID}); err != nil {
			d.host.UnregisterInterface(vif)
			d.removeInterface(vif)
			log.WithError(err).Warn("AP start failed, interface rolled back")
			return nil, err
		}
	}

	log.Info("Interface added")
	return vif, nil
}

func (d *Device) removeInterface(vif *Interface) {
	d.gate.Lock()
	defer d.gate.Release()
	if d.registeredLocked(vif) {
		d.ifaces.Delete(vif.name)
	}
}

// ChangeInterface switches vif between station and AP in place.
func (d *Device) ChangeInterface(ctx context.Context, vif *Interface, typ IfType) error {
	const op = "change_interface"

	if typ != IfTypeStation && typ != IfTypeAP {
		return newError(op, StateInvalidArgument, "unsupported interface type %s", typ)
	}

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	defer d.gate.Release()

	if !d.registeredLocked(vif) {
		return newError(op, StateNotFound, "interface not registered")
	}

	prev := vif.iftype
	vif.iftype = typ
	if typ == IfTypeStation && d.apIface == vif {
		d.stopBeaconingLocked(vif)
	}

	d.logger.WithFields(logrus.Fields{
		"op":    op,
		"iface": vif.name,
		"from":  prev,
		"to":    typ,
	}).Info("Interface type changed")
	return nil
}

// DeleteInterface stops beaconing on vif if needed, unregisters and releases it.
// The primary interface lives until Close.
func (d *Device) DeleteInterface(ctx context.Context, vif *Interface) error {
	const op = "delete_interface"

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	if !d.registeredLocked(vif) {
		d.gate.Release()
		return newError(op, StateNotFound, "interface not registered")
	}
	if vif == d.primary {
		d.gate.Release()
		return newError(op, StateInvalidArgument, "primary interface %s is removed with the device", vif.name)
	}
	d.ifaces.Delete(vif.name)
	beaconing := d.apIface == vif
	d.gate.Release()

	if beaconing {
		d.StopAP(vif)
	}
	d.host.UnregisterInterface(vif)

	d.logger.WithFields(logrus.Fields{"op": op, "iface": vif.name}).Info("Interface deleted")
	return nil
}

// Primary returns the station interface created with the device.
func (d *Device) Primary() *Interface {
	d.gate.Lock()
	defer d.gate.Release()
	return d.primary
}

// Interface looks up a registered interface by name.
func (d *Device) Interface(name string) (*Interface, bool) {
	d.gate.Lock()
	defer d.gate.Release()
	return d.ifaces.Get(name)
}

// Interfaces returns registered interfaces in creation order.
func (d *Device) Interfaces() []*Interface {
	d.gate.Lock()
	defer d.gate.Release()

	out := make([]*Interface, 0, d.ifaces.Len())
	for pair := d.ifaces.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
