package inspector

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions defines options for connecting to a device
type InspectOptions struct {
	ConnectTimeout time.Duration
}

// ErrNoServices is returned when the device publishes no SDP records.
var ErrNoServices = errors.New("no services found on device")

// ServiceResolution is the outcome of an SDP lookup.
type ServiceResolution struct {
	Services []device.Service
	Selected device.Service
	Kind     device.MatchKind
}

// ResolveService lists the SDP records of address and picks the serial
// service to connect to.
//
// A failed query returns the browser error unchanged. A device without
// records returns ErrNoServices. A device without any RFCOMM record returns
// a *device.NotFoundError, with the listing still available in the result.
func ResolveService(ctx context.Context, browser device.ServiceBrowser, address string, logger *logrus.Logger, progressCallback ProgressCallback) (*ServiceResolution, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	progressCallback("Querying services")

	services, err := browser.Services(ctx, address)
	if err != nil {
		progressCallback("Failed")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"address":       address,
		"service_count": len(services),
	}).Info("SDP query completed")

	if len(services) == 0 {
		progressCallback("Failed")
		return nil, ErrNoServices
	}

	res := &ServiceResolution{Services: services}
	res.Selected, res.Kind, err = device.SelectSerialService(services)
	if err != nil {
		progressCallback("Failed")
		return res, err
	}

	logger.WithFields(logrus.Fields{
		"service": res.Selected.DisplayName(),
		"channel": res.Selected.Port,
	}).Debug("Serial service selected")

	progressCallback("Processing results")
	return res, nil
}

// InspectCallback processes a connected stream and produces output of type R
type InspectCallback[R any] func(device.Conn) (R, error)

// InspectDevice connects to address:channel and executes the callback with
// the open connection. The connection is closed exactly once after the
// callback returns, whatever the outcome.
//
// Dial failures are reported as *device.ConnectionError with the
// ConnectFailed state; cancellation of ctx is returned unchanged.
func InspectDevice[R any](ctx context.Context, dialer device.Dialer, address string, channel uint8, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	// Report phase change: starting connection
	progressCallback("Connecting")

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := dialer.Dial(dialCtx, address, channel)
	if err != nil {
		progressCallback("Failed")
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !device.IsConnectionState(err, device.ConnectFailed) {
			err = &device.ConnectionError{State: device.ConnectFailed, Err: err}
		}
		return zero, err
	}

	// Report phase change: connected
	progressCallback("Connected")

	// Ensure the connection is closed after the callback completes
	defer func(conn device.Conn) {
		if err := conn.Close(); err != nil {
			logger.WithError(err).Error("failed to close connection")
		}
		logger.WithFields(logrus.Fields{
			"address": address,
			"channel": channel,
		}).Debug("Connection closed")
	}(conn)

	// Report phase change: processing results
	progressCallback("Processing results")

	// Execute callback with a connected stream
	return callback(conn)
}
