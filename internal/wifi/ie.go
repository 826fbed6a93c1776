package wifi

import "fmt"

// ElementID is an 802.11 information element tag
type ElementID uint8

const (
	ElementSSID           ElementID = 0
	ElementSupportedRates ElementID = 1
	ElementDSParams       ElementID = 3
)

// MaxSSIDLen is the 802.11 limit on SSID length.
const MaxSSIDLen = 32

// Element is one decoded information element.
type Element struct {
	ID   ElementID
	Data []byte
}

// EncodeElement returns the TLV encoding of a single element.
func EncodeElement(id ElementID, data []byte) ([]byte, error) {
	if len(data) > 255 {
		return nil, fmt.Errorf("element %d too long: %d bytes", id, len(data))
	}
	out := make([]byte, 0, 2+len(data))
	out = append(out, byte(id), byte(len(data)))
	return append(out, data...), nil
}

// EncodeSSIDElement encodes ssid as an SSID element.
func EncodeSSIDElement(ssid string) ([]byte, error) {
	if len(ssid) > MaxSSIDLen {
		return nil, fmt.Errorf("ssid too long: %d bytes", len(ssid))
	}
	return EncodeElement(ElementSSID, []byte(ssid))
}

// ParseElements walks a TLV blob. Truncated elements are an error.
func ParseElements(b []byte) ([]Element, error) {
	var elems []Element
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, fmt.Errorf("truncated element header")
		}
		id, n := ElementID(b[0]), int(b[1])
		if len(b) < 2+n {
			return nil, fmt.Errorf("element %d truncated: want %d bytes, have %d", id, n, len(b)-2)
		}
		elems = append(elems, Element{ID: id, Data: b[2 : 2+n]})
		b = b[2+n:]
	}
	return elems, nil
}

// FindElement returns the first element with the given id.
func FindElement(elems []Element, id ElementID) (Element, bool) {
	for _, el := range elems {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}
