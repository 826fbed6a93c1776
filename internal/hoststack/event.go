package hoststack

import (
	"time"
)

// EventType names a notification received from the device.
type EventType string

const (
	EventInterfaceRegistered   EventType = "interface_registered"
	EventInterfaceUnregistered EventType = "interface_unregistered"
	EventScanDone              EventType = "scan_done"
	EventConnectResult         EventType = "connect_result"
	EventDisconnected          EventType = "disconnected"
	EventAPStarted             EventType = "ap_started"
	EventBSSInformed           EventType = "bss_informed"
	EventBSSUnregistered       EventType = "bss_unregistered"
)

// Event is one recorded notification. Only the fields relevant to Type are set.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Iface   string    `json:"iface,omitempty"`
	IfType  string    `json:"iftype,omitempty"`
	ScanID  string    `json:"scan_id,omitempty"`
	Aborted bool      `json:"aborted,omitempty"`
	Status  string    `json:"status,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Code    uint16    `json:"code,omitempty"`
	Local   bool      `json:"local,omitempty"`
	SSID    string    `json:"ssid,omitempty"`
	BSSID   string    `json:"bssid,omitempty"`
	Freq    int       `json:"freq,omitempty"`
	Signal  int32     `json:"signal,omitempty"`
	Channel int       `json:"channel,omitempty"`
}

// IsTerminal reports whether e completes a scan, connect or disconnect request.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventScanDone, EventConnectResult, EventDisconnected:
		return true
	default:
		return false
	}
}

// OfType matches events by type, for use with WaitFor.
func OfType(t EventType) func(Event) bool {
	return func(e Event) bool { return e.Type == t }
}

// OnInterface matches events of type t reported for iface.
func OnInterface(t EventType, iface string) func(Event) bool {
	return func(e Event) bool { return e.Type == t && e.Iface == iface }
}
