//go:build !linux

package sdp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// Browser is unavailable on this platform.
type Browser struct{}

func NewBrowser(*logrus.Logger, time.Duration) *Browser { return &Browser{} }

func (b *Browser) Services(context.Context, string) ([]device.Service, error) {
	return nil, device.ErrUnsupported
}
