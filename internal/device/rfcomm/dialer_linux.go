//go:build linux

// Package rfcomm opens RFCOMM stream connections through the kernel
// AF_BLUETOOTH socket family.
package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/device/btsock"
	"golang.org/x/sys/unix"
)

// Dialer implements device.Dialer.
type Dialer struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// NewDialer creates a Dialer. A zero timeout leaves the connect bounded only
// by the caller's context.
func NewDialer(logger *logrus.Logger, timeout time.Duration) *Dialer {
	return &Dialer{logger: logger, timeout: timeout}
}

// Dial connects to channel on the device at address.
func (d *Dialer) Dial(ctx context.Context, address string, channel uint8) (device.Conn, error) {
	if channel == 0 || channel > 30 {
		return nil, fmt.Errorf("invalid RFCOMM channel %d", channel)
	}
	addr, err := device.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"address": address,
			"channel": channel,
		}).Debug("RFCOMM connect")
	}

	// Unlike SockaddrL2, SockaddrRFCOMM copies Addr verbatim, so it needs
	// the little-endian order the kernel uses.
	sa := &unix.SockaddrRFCOMM{Addr: device.ReverseAddress(addr), Channel: channel}
	sock, err := btsock.Connect(ctx, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM, sa)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &device.ConnectionError{
			State: device.ConnectFailed,
			Msg:   fmt.Sprintf("RFCOMM connect to %s channel %d", address, channel),
			Err:   device.NormalizeError(err),
		}
	}

	return &Conn{Socket: sock, address: device.NormalizeAddress(address), channel: channel}, nil
}

// Conn is an open RFCOMM stream.
type Conn struct {
	*btsock.Socket
	address string
	channel uint8
}

func (c *Conn) RemoteAddr() string { return c.address }

func (c *Conn) Channel() uint8 { return c.channel }
