//go:build !windows

// Package ptyio exposes a pseudo-terminal whose master side is driven by
// background poll loops, so that a serial-style client (screen, minicom,
// picocom) can talk to a remote RFCOMM stream through the slave path.
//
//	p, err := ptyio.New(&ptyio.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	p.SetReadCallback(func(line []byte) { conn.Write(line) }) // typed by the user
//	p.Write(received)                                          // shown to the user
//
// Writes are queued on a ring buffer and never block; when the queue is full
// the excess is dropped and counted in Stats.
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
	"github.com/srg/sppcheck/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Defaults
const (
	DefaultQueueSize   = 4096
	DefaultPollTimeout = 50 * time.Millisecond
)

// ReadCallback receives bytes written to the slave side. It runs on the read
// loop goroutine and must not retain data.
type ReadCallback func(data []byte)

// ErrorCallback is called at most once per loop when the loop stops on an
// unexpected error.
type ErrorCallback func(err error)

// Options configures a PTY. Zero values use the defaults.
type Options struct {
	ReadCap     int // bytes buffered from the slave while no callback is set
	WriteCap    int // bytes queued towards the slave
	Logger      *logrus.Logger
	OnError     ErrorCallback
	PollTimeout time.Duration
}

// PTY is a non-blocking pseudo-terminal master.
type PTY interface {
	io.ReadWriteCloser
	Stats() Stats
	TTYName() string
	SetReadCallback(cb ReadCallback)
}

// Stats are runtime counters of a PTY.
type Stats struct {
	WriteQueueLen  int
	WriteQueueCap  int
	ReadQueueLen   int
	DroppedWrite   uint64
	DroppedRead    uint64
	BytesToSlave   uint64
	BytesFromSlave uint64
}

type ringPTY struct {
	logger      *logrus.Logger
	master      *os.File
	slave       *os.File
	ttyName     string
	pollTimeout int
	onError     ErrorCallback
	errOnce     sync.Once

	writeBuf   *ringbuffer.RingBuffer
	readBuf    *ringbuffer.RingBuffer
	writeReady chan struct{}

	readCb atomic.Pointer[ReadCallback]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedWrite   atomic.Uint64
	droppedRead    atomic.Uint64
	bytesToSlave   atomic.Uint64
	bytesFromSlave atomic.Uint64
}

// New opens a PTY pair, puts the slave in raw mode and starts the loops.
func New(opts *Options) (PTY, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	readCap, writeCap := opts.ReadCap, opts.WriteCap
	if readCap <= 0 {
		readCap = DefaultQueueSize
	}
	if writeCap <= 0 {
		writeCap = DefaultQueueSize
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	master, slave, err := openRaw()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &ringPTY{
		logger:      logger,
		master:      master,
		slave:       slave,
		ttyName:     slave.Name(),
		pollTimeout: int(pollTimeout / time.Millisecond),
		onError:     opts.OnError,
		writeBuf:    ringbuffer.New(writeCap),
		readBuf:     ringbuffer.New(readCap),
		writeReady:  make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	p.wg.Add(2)
	groutine.Go(ctx, "pty-read-loop", p.readLoop)
	groutine.Go(ctx, "pty-write-loop", p.writeLoop)

	logger.WithField("tty", p.ttyName).Debug("PTY opened")
	return p, nil
}

func openRaw() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	fail := func(what string, err error) (*os.File, *os.File, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("failed to set %s %s: %w", name, what, err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("non-blocking mode", err)
	}
	return master, slave, nil
}

func (p *ringPTY) reportError(err error) {
	p.logger.WithError(err).Warn("PTY loop stopped")
	if p.onError != nil {
		p.errOnce.Do(func() { p.onError(err) })
	}
}

// readLoop moves bytes typed into the slave to the callback, or to readBuf
// while no callback is set.
func (p *ringPTY) readLoop(ctx context.Context) {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		n, err := unix.Poll(fds, p.pollTimeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.reportError(fmt.Errorf("read poll: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = p.master.Read(buf)
		if n > 0 {
			p.bytesFromSlave.Add(uint64(n))
			p.deliver(buf[:n])
		}

		switch {
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF), errors.Is(err, io.EOF):
			return
		case errors.Is(err, syscall.EIO):
			// No process has the slave open; keep waiting for one.
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(p.pollTimeout) * time.Millisecond):
			}
		default:
			p.reportError(fmt.Errorf("read: %w", err))
			return
		}
	}
}

func (p *ringPTY) deliver(data []byte) {
	if cb := p.readCb.Load(); cb != nil {
		(*cb)(data)
		return
	}
	written, _ := p.readBuf.Write(data)
	if dropped := len(data) - written; dropped > 0 {
		p.droppedRead.Add(uint64(dropped))
		p.logger.Warnf("PTY read buffer overflow: dropped %d bytes", dropped)
	}
}

// writeLoop drains writeBuf into the master.
func (p *ringPTY) writeLoop(ctx context.Context) {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for {
		n, err := p.writeBuf.TryRead(buf)
		if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			select {
			case <-ctx.Done():
				return
			case <-p.writeReady:
			}
			continue
		}

		for off := 0; off < n; {
			w, err := p.master.Write(buf[off:n])
			off += w
			p.bytesToSlave.Add(uint64(w))

			switch {
			case err == nil, errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if ctx.Err() != nil {
					return
				}
				_, _ = unix.Poll(fds, p.pollTimeout)
			case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF):
				return
			default:
				p.reportError(fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

// Write queues data for the slave. It returns the number of bytes queued,
// which is less than len(data) when the queue is full.
func (p *ringPTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	written, err := p.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return written, err
	}
	if dropped := len(data) - written; dropped > 0 {
		p.droppedWrite.Add(uint64(dropped))
		p.logger.Warnf("PTY write buffer overflow: dropped %d bytes", dropped)
	}

	select {
	case p.writeReady <- struct{}{}:
	default:
	}
	return written, nil
}

// Read returns bytes buffered from the slave without blocking; it returns
// syscall.EAGAIN when nothing is pending.
func (p *ringPTY) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.readBuf.TryRead(b)
	if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, syscall.EAGAIN
	}
	return n, nil
}

// SetReadCallback routes slave input to cb; nil buffers it for Read again.
// Bytes already buffered are handed to the new callback first.
func (p *ringPTY) SetReadCallback(cb ReadCallback) {
	if cb == nil {
		p.readCb.Store(nil)
		return
	}

	buf := make([]byte, 4096)
	for {
		n, _ := p.readBuf.TryRead(buf)
		if n == 0 {
			break
		}
		cb(buf[:n])
	}
	p.readCb.Store(&cb)
}

// Close stops the loops and closes both ends. It is idempotent.
func (p *ringPTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	var errs []error
	if err := p.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close master: %w", err))
	}
	if err := p.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close slave: %w", err))
	}

	done := make(chan struct{})
	groutine.Go(context.Background(), "pty-wait-close", func(context.Context) {
		p.wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		p.logger.WithField("tty", p.ttyName).Error("PTY loops did not stop within 5s")
	}

	return errors.Join(errs...)
}

func (p *ringPTY) Stats() Stats {
	return Stats{
		WriteQueueLen:  p.writeBuf.Length(),
		WriteQueueCap:  p.writeBuf.Capacity(),
		ReadQueueLen:   p.readBuf.Length(),
		DroppedWrite:   p.droppedWrite.Load(),
		DroppedRead:    p.droppedRead.Load(),
		BytesToSlave:   p.bytesToSlave.Load(),
		BytesFromSlave: p.bytesFromSlave.Load(),
	}
}

// TTYName returns the slave path, e.g. "/dev/pts/5".
func (p *ringPTY) TTYName() string {
	return p.ttyName
}
