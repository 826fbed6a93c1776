// Package dispatch runs deferred device work outside the request path.
//
// Every Kind owns one worker goroutine and a one-slot queue. A unit can be
// queued only while no other unit of the same kind is waiting, so units of a
// kind run strictly one at a time and in submission order, while different
// kinds run independently of each other.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/groutine"
)

// Kind identifies one class of deferred work.
type Kind int

const (
	KindScan Kind = iota
	KindConnect
	KindDisconnect

	numKinds
)

// Kinds lists every kind in shutdown order.
var Kinds = []Kind{KindConnect, KindDisconnect, KindScan}

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Unit is one piece of deferred work. It MUST return in bounded time once
// ctx is cancelled; a cancelled unit is still run so it can report an
// aborted outcome.
type Unit func(ctx context.Context)

var (
	// ErrBusy is returned when a unit of the same kind is already queued.
	ErrBusy = errors.New("work of this kind already queued")
	// ErrClosed is returned after the kind has been cancelled.
	ErrClosed = errors.New("dispatcher closed")
)

type worker struct {
	kind   Kind
	queue  chan Unit
	ctx    context.Context
	cancel context.CancelFunc
	done   <-chan struct{}
	logger *logrus.Logger

	mu      sync.Mutex // guards closed and sends on queue
	closed  bool
	running atomic.Bool
}

// Dispatcher owns one worker per Kind.
type Dispatcher struct {
	workers [numKinds]*worker
	logger  *logrus.Logger
}

// New starts a worker for every kind.
func New(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}

	d := &Dispatcher{logger: logger}
	for k := Kind(0); k < numKinds; k++ {
		ctx, cancel := context.WithCancel(context.Background())
		w := &worker{
			kind:   k,
			queue:  make(chan Unit, 1),
			ctx:    ctx,
			cancel: cancel,
			logger: logger,
		}
		w.done = groutine.Go(ctx, k.String()+"-worker", w.loop)
		d.workers[k] = w
	}

	return d
}

func (d *Dispatcher) worker(kind Kind) (*worker, error) {
	if kind < 0 || kind >= numKinds {
		return nil, fmt.Errorf("unknown work kind %d", int(kind))
	}
	return d.workers[kind], nil
}

// Schedule queues unit on the worker for kind without blocking.
func (d *Dispatcher) Schedule(kind Kind, unit Unit) error {
	w, err := d.worker(kind)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("schedule %s: %w", kind, ErrClosed)
	}

	select {
	case w.queue <- unit:
		w.logger.WithField("kind", kind).Debug("Work scheduled")
		return nil
	default:
		return fmt.Errorf("schedule %s: %w", kind, ErrBusy)
	}
}

// CancelSync cancels the worker for kind and blocks until it has exited.
// A unit still queued at that point runs once with the cancelled context.
// Calling it more than once is safe.
func (d *Dispatcher) CancelSync(kind Kind) {
	w, err := d.worker(kind)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	<-w.done
}

// Close cancels every kind and waits for all workers.
func (d *Dispatcher) Close() {
	for _, kind := range Kinds {
		d.CancelSync(kind)
	}
}

// Pending reports whether a unit of kind is queued and not yet started.
func (d *Dispatcher) Pending(kind Kind) bool {
	w, err := d.worker(kind)
	if err != nil {
		return false
	}
	return len(w.queue) > 0
}

// Idle reports whether kind has nothing queued and nothing running.
func (d *Dispatcher) Idle(kind Kind) bool {
	w, err := d.worker(kind)
	if err != nil {
		return true
	}
	return len(w.queue) == 0 && !w.running.Load()
}

func (w *worker) loop(ctx context.Context) {
	log := w.logger.WithField("worker", groutine.Name(ctx))
	log.Debug("Worker started")

	for {
		select {
		case unit := <-w.queue:
			w.run(ctx, unit)
		case <-ctx.Done():
			// closed is already set, nothing new can arrive
			for {
				select {
				case unit := <-w.queue:
					log.Debug("Running queued work with cancelled context")
					w.run(ctx, unit)
				default:
					log.Debug("Worker stopped")
					return
				}
			}
		}
	}
}

func (w *worker) run(ctx context.Context, unit Unit) {
	w.running.Store(true)
	defer w.running.Store(false)
	unit(ctx)
}
