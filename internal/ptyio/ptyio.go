// Package ptyio wraps a pseudo-terminal master in non-blocking ring buffers.
//
// The slave side (TTYName, e.g. /dev/pts/5) is handed to external tools.
// Bytes written with Write are queued and pumped to the slave by a
// background loop; bytes the slave writes are buffered and delivered to the
// read callback. Both directions drop data when their ring is full and count
// the loss in Stats.
//
//	p, err := ptyio.New(ptyio.Options{ReadCap: 4096, WriteCap: 4096}, logger)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	p.SetReadCallback(func(chunk []byte) { ... })
//	p.Write(frame)
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/vwifi/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DefaultPollTimeout bounds how long the I/O loops sleep before rechecking
// for shutdown.
const DefaultPollTimeout = 50 * time.Millisecond

// ReadCallback receives bytes written by the slave. It runs on a background
// goroutine and must not retain chunk.
type ReadCallback func(chunk []byte)

// Options configures New. Zero capacities use 4096 bytes.
type Options struct {
	ReadCap     int
	WriteCap    int
	PollTimeout time.Duration
}

// Stats are cumulative byte counters.
type Stats struct {
	Queued       int    `json:"queued"`
	DroppedWrite uint64 `json:"dropped_write"`
	DroppedRead  uint64 `json:"dropped_read"`
	BytesWritten uint64 `json:"bytes_written"`
	BytesRead    uint64 `json:"bytes_read"`
}

// PTY is a non-blocking pseudo-terminal master.
type PTY struct {
	logger  *logrus.Entry
	master  *os.File
	slave   *os.File
	fd      int // master, nonblocking
	ttyName string
	poll    int // ms

	writeBuf *ringbuffer.RingBuffer
	readBuf  *ringbuffer.RingBuffer
	notify   chan struct{}
	readCb   atomic.Pointer[ReadCallback]

	cancel context.CancelFunc
	loops  []<-chan struct{}
	closed atomic.Bool
	once   sync.Once

	droppedWrite atomic.Uint64
	droppedRead  atomic.Uint64
	bytesWritten atomic.Uint64
	bytesRead    atomic.Uint64
}

// New opens a PTY pair, puts the slave in raw mode and starts the I/O loops.
func New(opts Options, logger *logrus.Logger) (*PTY, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if opts.ReadCap <= 0 {
		opts.ReadCap = 4096
	}
	if opts.WriteCap <= 0 {
		opts.WriteCap = 4096
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}

	master, slave, fd, err := openRaw()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &PTY{
		logger:   logger.WithField("tty", slave.Name()),
		master:   master,
		slave:    slave,
		fd:       fd,
		ttyName:  slave.Name(),
		poll:     int(opts.PollTimeout / time.Millisecond),
		writeBuf: ringbuffer.New(opts.WriteCap),
		readBuf:  ringbuffer.New(opts.ReadCap),
		notify:   make(chan struct{}, 1),
		cancel:   cancel,
	}

	p.loops = append(p.loops,
		groutine.Go(ctx, "pty-read-loop", p.readLoop),
		groutine.Go(ctx, "pty-write-loop", p.writeLoop),
		groutine.Go(ctx, "pty-dispatch", p.dispatch),
	)
	return p, nil
}

// openRaw returns the master, the raw-mode slave and the master descriptor
// switched to nonblocking mode. The loops use the descriptor directly since
// (*os.File).Fd would put it back into blocking mode.
func openRaw() (*os.File, *os.File, int, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("failed to create PTY: %w", err)
	}

	fail := func(what string, err error) (*os.File, *os.File, int, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, -1, fmt.Errorf("failed to set %s %s: %w", name, what, err)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	fd := int(master.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		return fail("nonblocking mode", err)
	}
	return master, slave, fd, nil
}

// TTYName returns the slave device path.
func (p *PTY) TTYName() string { return p.ttyName }

// Write queues data for the slave without blocking. It returns how many
// bytes were queued; the rest was dropped.
func (p *PTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := writeAvail(p.writeBuf, data)
	if n < len(data) {
		p.droppedWrite.Add(uint64(len(data) - n))
	}
	return n, err
}

// SetReadCallback installs cb, or removes it when cb is nil. Bytes buffered
// while no callback was set are delivered right away.
func (p *PTY) SetReadCallback(cb ReadCallback) {
	if p.closed.Load() {
		return
	}
	if cb == nil {
		p.readCb.Store(nil)
		return
	}
	p.readCb.Store(&cb)
	p.wake()
}

// Stats returns a snapshot of the counters.
func (p *PTY) Stats() Stats {
	return Stats{
		Queued:       p.writeBuf.Length(),
		DroppedWrite: p.droppedWrite.Load(),
		DroppedRead:  p.droppedRead.Load(),
		BytesWritten: p.bytesWritten.Load(),
		BytesRead:    p.bytesRead.Load(),
	}
}

// Close stops the loops and closes both ends. It is safe to call twice.
func (p *PTY) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		p.cancel()
		if err := p.master.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close PTY master")
		}
		if err := p.slave.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close PTY slave")
		}

		deadline := time.After(time.Duration(p.poll)*time.Millisecond*3 + time.Second)
		for _, done := range p.loops {
			select {
			case <-done:
			case <-deadline:
				p.logger.Error("PTY loops did not stop in time")
				return
			}
		}
	})
	return nil
}

// writeAvail writes as much of data as fits in rb.
func writeAvail(rb *ringbuffer.RingBuffer, data []byte) (int, error) {
	free := rb.Free()
	if free == 0 {
		return 0, nil
	}
	n, err := rb.Write(data[:min(len(data), free)])
	if errors.Is(err, ringbuffer.ErrIsFull) {
		err = nil
	}
	return n, err
}

func (p *PTY) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *PTY) writeLoop(ctx context.Context) {
	pollFd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		if p.writeBuf.IsEmpty() {
			// nothing queued; sleep one poll period
			time.Sleep(time.Duration(p.poll) * time.Millisecond)
			continue
		}

		n, err := p.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			p.logger.WithError(err).Warn("PTY write queue read failed")
			continue
		}

		for off := 0; off < n && ctx.Err() == nil; {
			w, err := unix.Write(p.fd, buf[off:n])
			if w > 0 {
				off += w
				p.bytesWritten.Add(uint64(w))
			}
			switch {
			case err == nil, errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				_, _ = unix.Poll(pollFd, p.poll)
			default:
				if !p.closed.Load() {
					p.logger.WithError(err).Warn("PTY write loop stopped")
				}
				return
			}
		}
	}
}

func (p *PTY) readLoop(ctx context.Context) {
	pollFd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		ready, err := unix.Poll(pollFd, p.poll)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Debug("PTY poll failed")
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := unix.Read(p.fd, buf)
		if n > 0 {
			w, werr := writeAvail(p.readBuf, buf[:n])
			if werr != nil {
				p.logger.WithError(werr).Warn("PTY read queue write failed")
			}
			if w < n {
				p.droppedRead.Add(uint64(n - w))
			}
			p.bytesRead.Add(uint64(w))
			if w > 0 {
				p.wake()
			}
		}

		switch {
		case err == nil && n == 0, errors.Is(err, syscall.EIO):
			p.logger.Debug("PTY slave hung up")
			return
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		default:
			if !p.closed.Load() {
				p.logger.WithError(err).Warn("PTY read loop stopped")
			}
			return
		}
	}
}

func (p *PTY) dispatch(ctx context.Context) {
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		}

		for ctx.Err() == nil {
			cb := p.readCb.Load()
			if cb == nil {
				break
			}
			n, _ := p.readBuf.TryRead(buf)
			if n == 0 {
				break
			}
			p.deliver(*cb, buf[:n])
		}
	}
}

// deliver runs cb and drops it if it panics.
func (p *PTY) deliver(cb ReadCallback, chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("PTY read callback panicked: %v", r)
			p.readCb.Store(nil)
		}
	}()
	cb(chunk)
}
