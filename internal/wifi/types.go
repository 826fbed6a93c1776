package wifi

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/srg/vwifi/pkg/config"
)

// IfType is the operating type of a virtual interface. Values follow nl80211.
type IfType int

const (
	IfTypeUnspecified IfType = 0
	IfTypeAdhoc       IfType = 1
	IfTypeStation     IfType = 2
	IfTypeAP          IfType = 3
	IfTypeMonitor     IfType = 6
)

func (t IfType) String() string {
	switch t {
	case IfTypeUnspecified:
		return "unspecified"
	case IfTypeAdhoc:
		return "adhoc"
	case IfTypeStation:
		return "station"
	case IfTypeAP:
		return "ap"
	case IfTypeMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("iftype(%d)", int(t))
	}
}

// ParseIfType accepts the names printed by String plus "sta" and "managed".
func ParseIfType(s string) (IfType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "station", "sta", "managed":
		return IfTypeStation, nil
	case "ap", "master":
		return IfTypeAP, nil
	case "adhoc", "ibss":
		return IfTypeAdhoc, nil
	case "monitor":
		return IfTypeMonitor, nil
	case "unspecified", "":
		return IfTypeUnspecified, nil
	default:
		return IfTypeUnspecified, fmt.Errorf("unknown interface type %q", s)
	}
}

// ScanRequest is the caller's scan handle. The device never interprets its
// parameters; it carries the pointer through to exactly one Host.ScanDone.
type ScanRequest struct {
	ID        uuid.UUID
	SSIDs     [][]byte
	Channels  []int // center frequencies in MHz, empty means all
	CreatedAt time.Time
}

// NewScanRequest creates a request probing for the given SSIDs.
func NewScanRequest(ssids ...string) *ScanRequest {
	req := &ScanRequest{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
	}
	for _, s := range ssids {
		req.SSIDs = append(req.SSIDs, []byte(s))
	}
	return req
}

// ScanInfo is delivered with ScanDone.
type ScanInfo struct {
	Aborted bool
}

// ConnectParams carries a connect request. Only SSID is interpreted.
type ConnectParams struct {
	SSID    []byte
	BSSID   net.HardwareAddr
	Channel int
}

// ConnectStatus is the terminal outcome of a connect request
type ConnectStatus int

const (
	ConnectSuccess ConnectStatus = iota
	ConnectTimeout
)

func (s ConnectStatus) String() string {
	switch s {
	case ConnectSuccess:
		return "success"
	case ConnectTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TimeoutReason tells which phase of a connect timed out. Values follow nl80211.
type TimeoutReason int

const (
	TimeoutUnspecified TimeoutReason = iota
	TimeoutScan
	TimeoutAuth
	TimeoutAssoc
)

func (r TimeoutReason) String() string {
	switch r {
	case TimeoutUnspecified:
		return "unspecified"
	case TimeoutScan:
		return "scan"
	case TimeoutAuth:
		return "auth"
	case TimeoutAssoc:
		return "assoc"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// StatusSuccess is the IEEE 802.11 status code reported on association.
const StatusSuccess uint16 = 0

// ConnectResult is reported once per accepted connect request.
type ConnectResult struct {
	Status     ConnectStatus
	Reason     TimeoutReason // meaningful only for ConnectTimeout
	StatusCode uint16
	SSID       string
	BSSID      net.HardwareAddr
}

// APParams configures beaconing for StartAP.
type APParams struct {
	SSID           string
	BeaconInterval uint16 // TU
	DTIMPeriod     uint8
	Channel        int // hw value, 0 selects the first configured channel
}

// BSS is one synthetic network announcement.
type BSS struct {
	Channel        config.Channel
	WidthMHz       int
	Signal         int32
	BSSID          net.HardwareAddr
	Capability     uint16
	BeaconInterval uint16
	IEs            []byte
}

// SSID decodes the SSID element from the information elements.
func (b BSS) SSID() (string, error) {
	elems, err := ParseElements(b.IEs)
	if err != nil {
		return "", err
	}
	el, ok := FindElement(elems, ElementSSID)
	if !ok {
		return "", fmt.Errorf("no SSID element")
	}
	return string(el.Data), nil
}

// BSSHandle is the reference the host keeps for an informed BSS.
// The device releases it with Put as soon as InformBSS returns.
type BSSHandle interface {
	Put()
}

// Host is the completion surface of the host networking stack.
//
// RegisterInterface and UnregisterInterface are called without the device
// gate held. The remaining methods run under the gate and MUST NOT call back
// into the Device or its interfaces.
type Host interface {
	RegisterInterface(vif *Interface) error
	UnregisterInterface(vif *Interface)

	ScanDone(req *ScanRequest, info ScanInfo)
	ConnectResult(vif *Interface, result ConnectResult)
	Disconnected(vif *Interface, reason uint16, locallyGenerated bool)

	APStarted(vif *Interface, params APParams)
	UnregisterBSS(vif *Interface)

	InformBSS(bss BSS) (BSSHandle, error)
}
