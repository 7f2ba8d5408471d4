// Package debugbridge exposes a connected device's live sensor frames
// on a pseudo-terminal for oscilloscope-style external tooling. The PTY
// is one-way: the bridge only ever writes newline-delimited JSON out of
// the master side; nothing in the daemon reads from the slave.
package debugbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/lxb/internal/groutine"
)

// drainPollTimeoutMs bounds how long the pump blocks waiting for the
// slave side to become writable before re-checking for shutdown.
const drainPollTimeoutMs = 50

// closeGrace bounds how long Close waits for the pump goroutine to
// notice cancellation before giving up on the join.
const closeGrace = 5 * time.Second

// Options configures an AsyncPTY.
type Options struct {
	// WriteCap is the outbound queue capacity in bytes. Once full, the
	// oldest queued bytes are overwritten rather than blocking the
	// writer; an absent or slow external reader costs dropped frames,
	// never a stalled sensor callback.
	WriteCap int
	Logger   *logrus.Logger
}

// Stats is a point-in-time snapshot of the outbound queue.
type Stats struct {
	QueueLen     int32
	QueueCap     int32
	DroppedBytes uint64
	WrittenBytes uint64
}

// AsyncPTY is a write-only, non-blocking pseudo-terminal: Write queues
// bytes into a drop-oldest ring, and a single pump goroutine drains the
// ring into the PTY master as fast as the slave-side reader keeps up.
type AsyncPTY struct {
	logger *logrus.Logger
	master *os.File
	slave  *os.File
	name   string

	queue  *ringbuffer.RingBuffer
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	pumped chan struct{}

	closed  uint32
	dropped uint64
	written uint64
}

// NewAsyncPTY opens a raw-mode PTY pair and starts the pump goroutine.
func NewAsyncPTY(opts *Options) (*AsyncPTY, error) {
	if opts == nil || opts.WriteCap <= 0 {
		return nil, fmt.Errorf("debugbridge: WriteCap must be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("debugbridge: open pty: %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("debugbridge: set pty raw mode: %w", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("debugbridge: set pty nonblocking: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPTY{
		logger: logger,
		master: master,
		slave:  slave,
		name:   slave.Name(),
		queue:  ringbuffer.New(opts.WriteCap),
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		pumped: make(chan struct{}),
	}
	groutine.Go(ctx, "debugbridge-pump", func(ctx context.Context) { p.pump() })
	return p, nil
}

// Write queues data for transmission, overwriting the oldest queued
// bytes if the ring is full. It never blocks.
func (p *AsyncPTY) Write(data []byte) (int, error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	if capacity := p.queue.Capacity(); len(data) > capacity {
		atomic.AddUint64(&p.dropped, uint64(len(data)-capacity))
		data = data[len(data)-capacity:]
	}
	if over := len(data) - (p.queue.Capacity() - p.queue.Length()); over > 0 {
		discarded, _ := p.queue.TryRead(make([]byte, over))
		atomic.AddUint64(&p.dropped, uint64(discarded))
	}
	n, err := p.queue.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	if n < len(data) {
		atomic.AddUint64(&p.dropped, uint64(len(data)-n))
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return n, nil
}

// pump drains the queue into the PTY master until the context is
// cancelled or the master goes away.
func (p *AsyncPTY) pump() {
	defer close(p.pumped)

	buf := make([]byte, 4096)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}

		for {
			n, err := p.queue.TryRead(buf)
			if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
				break
			}
			if err != nil {
				p.logger.WithError(err).Warn("debugbridge: outbound queue read failed")
				break
			}
			if !p.flush(buf[:n]) {
				return
			}
		}
	}
}

// flush writes one chunk fully to the master, waiting out EAGAIN with a
// bounded poll so shutdown is never stalled by an idle reader. Returns
// false when the pump should exit.
func (p *AsyncPTY) flush(chunk []byte) bool {
	fd := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLOUT}}
	for len(chunk) > 0 {
		if p.ctx.Err() != nil {
			return false
		}
		n, err := p.master.Write(chunk)
		if n > 0 {
			atomic.AddUint64(&p.written, uint64(n))
			chunk = chunk[n:]
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EAGAIN):
			if _, perr := unix.Poll(fd, drainPollTimeoutMs); perr != nil && !errors.Is(perr, syscall.EINTR) {
				p.logger.WithError(perr).Warn("debugbridge: pty poll failed")
			}
		case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
			return false
		default:
			p.logger.WithError(err).Warn("debugbridge: pty write failed, stopping pump")
			return false
		}
	}
	return true
}

// Close stops the pump and closes both PTY file descriptors. Safe to
// call more than once.
func (p *AsyncPTY) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	p.cancel()
	select {
	case <-p.pumped:
	case <-time.After(closeGrace):
		p.logger.WithField("pty", p.name).Error("debugbridge: close timed out waiting for pump to exit")
	}
	p.master.Close()
	return p.slave.Close()
}

// Stats returns the outbound queue's depth and drop/throughput counters.
func (p *AsyncPTY) Stats() Stats {
	return Stats{
		QueueLen:     int32(p.queue.Length()),
		QueueCap:     int32(p.queue.Capacity()),
		DroppedBytes: atomic.LoadUint64(&p.dropped),
		WrittenBytes: atomic.LoadUint64(&p.written),
	}
}

// TTYName returns the slave device path (e.g. "/dev/pts/5").
func (p *AsyncPTY) TTYName() string { return p.name }
