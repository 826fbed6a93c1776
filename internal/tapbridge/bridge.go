// Package tapbridge exposes the transmit path of one virtual interface on a
// pseudo-terminal.
//
// Bytes written to the slave are transmitted on the interface, one frame per
// read chunk. Everything the interface transmits, including those frames, is
// copied from its capture tap back to the slave.
package tapbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/groutine"
	"github.com/srg/vwifi/internal/ptyio"
	"github.com/srg/vwifi/internal/wifi"
)

// Options tunes a Bridge.
type Options struct {
	PollInterval time.Duration `default:"20ms"`
	BufferSize   int           `default:"4096"`
}

// Stats combines PTY counters with the frames injected from the slave.
type Stats struct {
	ptyio.Stats
	Injected uint64 `json:"injected"`
}

// Bridge pumps frames between an interface and a PTY.
type Bridge struct {
	vif    *wifi.Interface
	pty    *ptyio.PTY
	logger *logrus.Entry
	poll   time.Duration

	injected atomic.Uint64
	cancel   context.CancelFunc
	done     <-chan struct{}
	once     sync.Once
}

// New opens a PTY for vif and starts pumping. Close releases it.
func New(vif *wifi.Interface, opts Options, logger *logrus.Logger) (*Bridge, error) {
	if vif == nil {
		return nil, fmt.Errorf("tap bridge needs an interface")
	}
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)

	p, err := ptyio.New(ptyio.Options{ReadCap: opts.BufferSize, WriteCap: opts.BufferSize}, logger)
	if err != nil {
		return nil, fmt.Errorf("tap bridge for %s: %w", vif.Name(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		vif:    vif,
		pty:    p,
		logger: logger.WithFields(logrus.Fields{"iface": vif.Name(), "tty": p.TTYName()}),
		poll:   opts.PollInterval,
		cancel: cancel,
	}

	p.SetReadCallback(b.inject)
	b.done = groutine.Go(ctx, "tap-bridge-"+vif.Name(), b.pump)

	b.logger.Info("Tap bridge ready")
	return b, nil
}

// TTYName is the slave device path to hand to capture tools.
func (b *Bridge) TTYName() string { return b.pty.TTYName() }

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{Stats: b.pty.Stats(), Injected: b.injected.Load()}
}

// Close stops pumping and closes the PTY. It is safe to call twice.
func (b *Bridge) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		<-b.done
		err = b.pty.Close()
		b.logger.Debug("Tap bridge closed")
	})
	return err
}

func (b *Bridge) inject(chunk []byte) {
	if b.vif.Transmit(chunk) == wifi.TxOK {
		b.injected.Add(1)
	}
}

// pump drains the capture tap into the PTY until ctx is done.
func (b *Bridge) pump(ctx context.Context) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			n, err := b.vif.ReadTap(buf)
			if err != nil {
				b.logger.WithError(err).Warn("Capture tap read failed")
				break
			}
			if n == 0 {
				break
			}
			if w, _ := b.pty.Write(buf[:n]); w < n {
				b.logger.WithField("dropped", n-w).Debug("PTY queue full, capture bytes dropped")
			}
		}
	}
}
