package devicefactory

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/device/bluez"
	"github.com/srg/sppcheck/internal/device/rfcomm"
	"github.com/srg/sppcheck/internal/device/sdp"
)

// Options tunes the platform adapter.
type Options struct {
	ConnectTimeout time.Duration
	SDPTimeout     time.Duration
}

// systemAdapter combines the BlueZ, SDP and RFCOMM backends into one
// device.Adapter.
type systemAdapter struct {
	*bluez.Discoverer
	*sdp.Browser
	*rfcomm.Dialer
}

// AdapterFactory creates the device.Adapter used by every command.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(logger *logrus.Logger, opts Options) (device.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return &systemAdapter{
		Discoverer: bluez.NewDiscoverer(logger),
		Browser:    sdp.NewBrowser(logger, opts.SDPTimeout),
		Dialer:     rfcomm.NewDialer(logger, opts.ConnectTimeout),
	}, nil
}
