//go:build !linux

package rfcomm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// Dialer is unavailable on this platform.
type Dialer struct{}

func NewDialer(*logrus.Logger, time.Duration) *Dialer { return &Dialer{} }

func (d *Dialer) Dial(context.Context, string, uint8) (device.Conn, error) {
	return nil, device.ErrUnsupported
}
