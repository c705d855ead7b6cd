//go:build !linux

package bluez

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// Discoverer is unavailable on this platform.
type Discoverer struct{}

func NewDiscoverer(*logrus.Logger) *Discoverer { return &Discoverer{} }

func (d *Discoverer) Discover(context.Context, device.DiscoverOptions, func(device.Device)) error {
	return device.ErrUnsupported
}
