//go:build linux

package sdp

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/device/btsock"
	"golang.org/x/sys/unix"
)

const (
	psmSDP      = 0x0001
	bdaddrBREDR = 0x00
)

// Browser implements device.ServiceBrowser by talking SDP to the remote
// device over an L2CAP SEQPACKET socket.
type Browser struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// NewBrowser creates a Browser. A zero timeout means the query is bounded
// only by the caller's context.
func NewBrowser(logger *logrus.Logger, timeout time.Duration) *Browser {
	return &Browser{logger: logger, timeout: timeout}
}

// Services connects to the SDP server of address and lists its records.
func (b *Browser) Services(ctx context.Context, address string) ([]device.Service, error) {
	addr, err := device.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	// The timeout bounds the L2CAP connect and the query separately.
	cctx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	// SockaddrL2 reverses Addr itself, so it takes display order.
	sa := &unix.SockaddrL2{PSM: psmSDP, Addr: addr, AddrType: bdaddrBREDR}
	sock, err := btsock.Connect(cctx, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP, sa)
	if err != nil {
		if ctx.Err() == nil && cctx.Err() != nil {
			err = timeoutError(b.timeout)
		}
		return nil, fmt.Errorf("SDP connect to %s: %w", address, device.NormalizeError(err))
	}
	defer sock.Close()

	if b.logger != nil {
		b.logger.WithField("address", address).Debug("SDP session open")
	}

	services, err := queryServices(ctx, sock, b.timeout, b.logger)
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	return services, nil
}
