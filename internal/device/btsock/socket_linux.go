//go:build linux

// Package btsock wraps AF_BLUETOOTH sockets in a small poll-driven file
// descriptor type shared by the RFCOMM dialer and the SDP browser.
//
// The descriptor is always non-blocking at the OS level. Blocking reads and
// writes are emulated with unix.Poll in short slices, so Close from another
// goroutine and read deadlines take effect within one poll interval.
package btsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// PollInterval bounds how long a single poll waits before re-checking the
// context, the deadline and the closed flag.
const PollInterval = 50 * time.Millisecond

// Socket is a connected Bluetooth socket.
type Socket struct {
	fd int

	mu       sync.Mutex
	nonblock bool
	deadline time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Connect opens a socket of the given type and protocol and connects it to
// sa. The connect is non-blocking and honours ctx cancellation.
func Connect(ctx context.Context, sotype, proto int, sa unix.Sockaddr) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := waitConnected(ctx, fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &Socket{fd: fd}, nil
}

func waitConnected(ctx context.Context, fd int) error {
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(pollFd, int(PollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return fmt.Errorf("getsockopt: %w", err)
		}
		if soErr != 0 {
			return fmt.Errorf("connect: %w", unix.Errno(soErr))
		}
		return nil
	}
}

// SetNonblock switches Read between waiting for data and returning EAGAIN
// immediately.
func (s *Socket) SetNonblock(nonblocking bool) error {
	if s.closed.Load() {
		return os.ErrClosed
	}
	s.mu.Lock()
	s.nonblock = nonblocking
	s.mu.Unlock()
	return nil
}

// SetReadDeadline bounds blocking reads; the zero time disables the deadline.
func (s *Socket) SetReadDeadline(t time.Time) error {
	if s.closed.Load() {
		return os.ErrClosed
	}
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

// Read reads one chunk (one packet on SEQPACKET sockets).
func (s *Socket) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	nonblock, deadline := s.nonblock, s.deadline
	s.mu.Unlock()

	for {
		if s.closed.Load() {
			return 0, os.ErrClosed
		}

		n, err := unix.Read(s.fd, p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return 0, err
		case nonblock:
			return 0, unix.EAGAIN
		}

		timeout := PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timeout = min(timeout, remaining)
		}
		if err := s.poll(unix.POLLIN, timeout); err != nil {
			return 0, err
		}
	}
}

// Write writes all of p, waiting for buffer space as needed.
func (s *Socket) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if s.closed.Load() {
			return written, os.ErrClosed
		}
		n, err := unix.Write(s.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if err := s.poll(unix.POLLOUT, PollInterval); err != nil {
				return written, err
			}
		default:
			return written, err
		}
	}
	return written, nil
}

func (s *Socket) poll(events int16, timeout time.Duration) error {
	pollFd := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	_, err := unix.Poll(pollFd, ms)
	if err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("poll: %w", err)
	}
	return nil
}

// Close shuts the socket down and releases the descriptor. Only the first
// call has an effect; later calls return the first result.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		// shutdown wakes up any goroutine parked in poll on this fd
		_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
		s.closeErr = unix.Close(s.fd)
	})
	return s.closeErr
}

// Fd returns the raw descriptor.
func (s *Socket) Fd() int {
	return s.fd
}
