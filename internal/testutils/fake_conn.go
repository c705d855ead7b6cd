package testutils

import (
	"bytes"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/srg/sppcheck/internal/device"
)

// FakeConn is a scripted device.Conn. Bytes queued with Feed are returned by
// Read; everything written is kept in Written.
type FakeConn struct {
	address string
	channel uint8

	mu       sync.Mutex
	inbox    bytes.Buffer
	written  bytes.Buffer
	nonblock bool
	deadline time.Time
	readErr  error
	closed   bool

	notify     chan struct{}
	done       chan struct{}
	closeCount atomic.Int32

	// NonblockErr is returned by SetNonblock when set.
	NonblockErr error
}

// NewFakeConn creates an open connection to address:channel.
func NewFakeConn(address string, channel uint8) *FakeConn {
	return &FakeConn{
		address: address,
		channel: channel,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Feed queues data for the next reads.
func (c *FakeConn) Feed(data []byte) *FakeConn {
	c.mu.Lock()
	c.inbox.Write(data)
	c.mu.Unlock()
	c.wake()
	return c
}

// FailReads makes reads return err once the queued data is drained.
func (c *FakeConn) FailReads(err error) *FakeConn {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.wake()
	return c
}

func (c *FakeConn) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *FakeConn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			return 0, device.ErrClosed
		case c.inbox.Len() > 0:
			n, _ := c.inbox.Read(p)
			c.mu.Unlock()
			return n, nil
		case c.readErr != nil:
			err := c.readErr
			c.mu.Unlock()
			return 0, err
		case c.nonblock:
			c.mu.Unlock()
			return 0, syscall.EAGAIN
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if !c.deadline.IsZero() {
			remaining := time.Until(c.deadline)
			if remaining <= 0 {
				c.mu.Unlock()
				return 0, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(remaining)
			timeout = timer.C
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.done:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (c *FakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, device.ErrClosed
	}
	return c.written.Write(p)
}

// Close counts every call; only the first one closes the connection.
func (c *FakeConn) Close() error {
	c.closeCount.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *FakeConn) SetNonblock(nonblocking bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NonblockErr != nil {
		return c.NonblockErr
	}
	c.nonblock = nonblocking
	return nil
}

func (c *FakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	c.wake()
	return nil
}

func (c *FakeConn) RemoteAddr() string { return c.address }

func (c *FakeConn) Channel() uint8 { return c.channel }

// CloseCount returns how many times Close was called.
func (c *FakeConn) CloseCount() int {
	return int(c.closeCount.Load())
}

// Written returns a copy of everything written so far.
func (c *FakeConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// IsNonblocking reports the current read mode.
func (c *FakeConn) IsNonblocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonblock
}
