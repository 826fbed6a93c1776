package wifi

import (
	"net"

	"github.com/sirupsen/logrus"
)

// DummySSID is the only network the device can find or join.
const DummySSID = "WiFi"

const (
	// CapabilityESS marks an infrastructure network.
	CapabilityESS uint16 = 0x0001

	dummySignal         int32  = 1337
	dummyBeaconInterval uint16 = 100
	dummyWidthMHz              = 20
)

// DummyBSSID is the synthetic address of the announced network.
var DummyBSSID = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

// dummyBSS builds the announcement for DummySSID on the first configured channel.
func (d *Device) dummyBSS() BSS {
	ie, _ := EncodeSSIDElement(DummySSID) // constant, always fits

	return BSS{
		Channel:        d.cfg.Band.Channels[0],
		WidthMHz:       dummyWidthMHz,
		Signal:         dummySignal,
		BSSID:          append(net.HardwareAddr(nil), DummyBSSID...),
		Capability:     CapabilityESS,
		BeaconInterval: dummyBeaconInterval,
		IEs:            ie,
	}
}

// informDummyBSS reports the synthetic BSS and drops the returned handle at once.
func (d *Device) informDummyBSS(log *logrus.Entry) {
	bss := d.dummyBSS()

	handle, err := d.host.InformBSS(bss)
	if err != nil {
		log.WithError(err).Warn("Host rejected BSS announcement")
		return
	}
	if handle != nil {
		handle.Put()
	}

	log.WithFields(logrus.Fields{
		"bssid": bss.BSSID.String(),
		"freq":  bss.Channel.CenterFreq,
	}).Debug("Announced BSS")
}
