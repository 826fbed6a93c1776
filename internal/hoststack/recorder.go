// Package hoststack is an in-process stand-in for the host networking stack.
//
// Recorder implements wifi.Host: it keeps a registry of interfaces, a
// reference-counted table of announced BSSs, and turns every completion into
// an Event that is published on a live stream and appended to a journal.
package hoststack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/wifi"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// check Recorder compliance to its interface during compile time
var _ wifi.Host = (*Recorder)(nil)

// Options configures a Recorder. Zero fields take their defaults.
type Options struct {
	EventBuffer int    `default:"64"`
	JournalSize uint32 `default:"256"`

	// RejectInterface, when set, is consulted by RegisterInterface.
	RejectInterface func(name string) error
	// RejectInform, when set, makes InformBSS fail with this error.
	RejectInform error
}

// BSSEntry is the host's view of one announced BSS. Entries are keyed by
// BSSID and refreshed in place by later announcements.
type BSSEntry struct {
	mu       sync.Mutex
	bss      wifi.BSS
	ssid     string
	lastSeen time.Time

	refs atomic.Int32
}

// Snapshot returns the latest announcement and its SSID.
func (e *BSSEntry) Snapshot() (wifi.BSS, string, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bss, e.ssid, e.lastSeen
}

// Refs returns the number of outstanding handles.
func (e *BSSEntry) Refs() int32 {
	return e.refs.Load()
}

type bssHandle struct {
	entry *BSSEntry
	once  sync.Once
}

func (h *bssHandle) Put() {
	h.once.Do(func() {
		h.entry.refs.Add(-1)
	})
}

// Recorder records everything the device reports.
type Recorder struct {
	opts   Options
	logger *logrus.Logger

	seq     atomic.Uint64
	events  *RingChannel[Event]
	journal mpmc.RichOverlappedRingBuffer[Event]

	journalOverwritten atomic.Int64
	informed           atomic.Uint64

	bss       *hashmap.Map[string, *BSSEntry]
	beaconing *hashmap.Map[string, wifi.APParams]

	mu     sync.Mutex
	ifaces *orderedmap.OrderedMap[string, wifi.IfType]
}

// NewRecorder creates a Recorder. A nil logger uses logrus.New().
func NewRecorder(opts Options, logger *logrus.Logger) *Recorder {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
	}

	return &Recorder{
		opts:      opts,
		logger:    logger,
		events:    NewRingChannel[Event](opts.EventBuffer),
		journal:   mpmc.NewOverlappedRingBuffer[Event](opts.JournalSize),
		bss:       hashmap.New[string, *BSSEntry](),
		beaconing: hashmap.New[string, wifi.APParams](),
		ifaces:    orderedmap.New[string, wifi.IfType](),
	}
}

func (r *Recorder) emit(e Event) {
	e.Seq = r.seq.Add(1)
	e.Time = time.Now()

	if r.events.Send(e) {
		r.logger.WithField("type", e.Type).Debug("Event stream full, oldest event dropped")
	}
	if overwrites, err := r.journal.EnqueueM(e); err != nil {
		r.logger.WithError(err).Warn("Journal enqueue failed")
	} else {
		r.journalOverwritten.Add(int64(overwrites))
	}

	r.logger.WithFields(logrus.Fields{
		"seq":   e.Seq,
		"type":  e.Type,
		"iface": e.Iface,
	}).Debug("Host notified")
}

// Events returns the live event stream.
func (r *Recorder) Events() <-chan Event {
	return r.events.C()
}

// WaitFor reads the live stream until match returns true or ctx ends.
// Events read while waiting are consumed.
func (r *Recorder) WaitFor(ctx context.Context, match func(Event) bool) (Event, error) {
	for {
		select {
		case e := <-r.events.C():
			if match(e) {
				return e, nil
			}
		case <-ctx.Done():
			return Event{}, fmt.Errorf("waiting for event: %w", ctx.Err())
		}
	}
}

// DrainJournal removes and returns every journaled event, oldest first.
func (r *Recorder) DrainJournal() ([]Event, error) {
	var out []Event
	for !r.journal.IsEmpty() {
		e, err := r.journal.Dequeue()
		if err != nil {
			return out, fmt.Errorf("journal dequeue error: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// JournalOverwritten returns how many journal entries were lost to overflow.
func (r *Recorder) JournalOverwritten() int64 {
	return r.journalOverwritten.Load()
}

// RegisterInterface implements wifi.Host.
func (r *Recorder) RegisterInterface(vif *wifi.Interface) error {
	if r.opts.RejectInterface != nil {
		if err := r.opts.RejectInterface(vif.Name()); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.ifaces.Get(vif.Name()); exists {
		r.mu.Unlock()
		return fmt.Errorf("interface %s already registered", vif.Name())
	}
	// Type takes the device gate, which is free during registration.
	typ := vif.Type()
	r.ifaces.Set(vif.Name(), typ)
	r.mu.Unlock()

	r.emit(Event{Type: EventInterfaceRegistered, Iface: vif.Name(), IfType: typ.String()})
	return nil
}

// UnregisterInterface implements wifi.Host.
func (r *Recorder) UnregisterInterface(vif *wifi.Interface) {
	r.mu.Lock()
	_, existed := r.ifaces.Delete(vif.Name())
	r.mu.Unlock()

	if existed {
		r.emit(Event{Type: EventInterfaceUnregistered, Iface: vif.Name()})
	}
}

// Interfaces returns registered interface names in registration order.
func (r *Recorder) Interfaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, r.ifaces.Len())
	for pair := r.ifaces.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// ScanDone implements wifi.Host.
func (r *Recorder) ScanDone(req *wifi.ScanRequest, info wifi.ScanInfo) {
	r.emit(Event{Type: EventScanDone, ScanID: req.ID.String(), Aborted: info.Aborted})
}

// ConnectResult implements wifi.Host.
func (r *Recorder) ConnectResult(vif *wifi.Interface, result wifi.ConnectResult) {
	e := Event{
		Type:   EventConnectResult,
		Iface:  vif.Name(),
		Status: result.Status.String(),
		SSID:   result.SSID,
		Code:   result.StatusCode,
	}
	if result.Status == wifi.ConnectTimeout {
		e.Reason = result.Reason.String()
	}
	if result.BSSID != nil {
		e.BSSID = result.BSSID.String()
	}
	r.emit(e)
}

// Disconnected implements wifi.Host.
func (r *Recorder) Disconnected(vif *wifi.Interface, reason uint16, locallyGenerated bool) {
	r.emit(Event{Type: EventDisconnected, Iface: vif.Name(), Code: reason, Local: locallyGenerated})
}

// APStarted implements wifi.Host.
func (r *Recorder) APStarted(vif *wifi.Interface, params wifi.APParams) {
	r.beaconing.Set(vif.Name(), params)
	r.emit(Event{Type: EventAPStarted, Iface: vif.Name(), SSID: params.SSID, Channel: params.Channel})
}

// UnregisterBSS implements wifi.Host.
func (r *Recorder) UnregisterBSS(vif *wifi.Interface) {
	r.beaconing.Del(vif.Name())
	r.emit(Event{Type: EventBSSUnregistered, Iface: vif.Name()})
}

// Beaconing returns the AP parameters of an interface that is beaconing.
func (r *Recorder) Beaconing(iface string) (wifi.APParams, bool) {
	return r.beaconing.Get(iface)
}

// InformBSS implements wifi.Host. The returned handle holds one reference.
func (r *Recorder) InformBSS(bss wifi.BSS) (wifi.BSSHandle, error) {
	if r.opts.RejectInform != nil {
		return nil, r.opts.RejectInform
	}

	ssid, err := bss.SSID()
	if err != nil {
		return nil, fmt.Errorf("malformed information elements: %w", err)
	}

	key := bss.BSSID.String()
	entry, _ := r.bss.GetOrInsert(key, &BSSEntry{})
	entry.mu.Lock()
	entry.bss = bss
	entry.ssid = ssid
	entry.lastSeen = time.Now()
	entry.mu.Unlock()
	entry.refs.Add(1)
	r.informed.Add(1)

	r.emit(Event{
		Type:   EventBSSInformed,
		SSID:   ssid,
		BSSID:  key,
		Freq:   bss.Channel.CenterFreq,
		Signal: bss.Signal,
	})

	return &bssHandle{entry: entry}, nil
}

// InformCount returns how many announcements were accepted.
func (r *Recorder) InformCount() uint64 {
	return r.informed.Load()
}

// BSS returns the table entry for bssid.
func (r *Recorder) BSS(bssid string) (*BSSEntry, bool) {
	return r.bss.Get(bssid)
}

// BSSs returns a snapshot of the BSS table.
func (r *Recorder) BSSs() []*BSSEntry {
	out := make([]*BSSEntry, 0, r.bss.Len())
	r.bss.Range(func(_ string, e *BSSEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}
