// Package check runs the RobotSpider end-to-end Bluetooth check: discover the
// device by name, resolve its serial service, open an RFCOMM connection and
// keep it open for a short probe window.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/inspector"
	"github.com/srg/sppcheck/internal/console"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/pkg/config"
	"github.com/srg/sppcheck/scanner"
)

// Step identifies one stage of the check.
type Step string

const (
	StepDiscover Step = "discover"
	StepResolve  Step = "resolve service"
	StepConnect  Step = "connect"
	StepProbe    Step = "probe"
)

// StepError marks the step at which the check stopped.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrNoDevices is returned by Discover when the inquiry found nothing.
var ErrNoDevices = errors.New("no bluetooth devices discovered")

// Options configures a check run
type Options struct {
	TargetName        string
	Adapter           string
	DiscoveryDuration time.Duration
	FlushCache        bool
	StopOnMatch       bool
	ConnectTimeout    time.Duration
	ProbeDuration     time.Duration
	ProbeReadSize     int
	// Send prints the notice for the not yet implemented command exchange.
	Send bool
}

// OptionsFromConfig copies the check settings out of cfg.
func OptionsFromConfig(cfg *config.Config) *Options {
	return &Options{
		TargetName:        cfg.TargetName,
		Adapter:           cfg.Adapter,
		DiscoveryDuration: cfg.DiscoveryDuration,
		FlushCache:        cfg.FlushCache,
		StopOnMatch:       cfg.StopOnMatch,
		ConnectTimeout:    cfg.ConnectTimeout,
		ProbeDuration:     cfg.ProbeDuration,
		ProbeReadSize:     cfg.ProbeReadSize,
	}
}

// Runner executes the check against a Bluetooth adapter and reports every
// step through a console printer.
type Runner struct {
	adapter device.Adapter
	out     *console.Printer
	logger  *logrus.Logger
	opts    *Options
}

// NewRunner creates a runner. A nil opts uses the configuration defaults.
func NewRunner(adapter device.Adapter, out *console.Printer, logger *logrus.Logger, opts *Options) *Runner {
	if opts == nil {
		opts = OptionsFromConfig(config.DefaultConfig())
	}
	if logger == nil {
		logger = logrus.New()
	}
	if out == nil {
		out = console.New(nil)
	}
	return &Runner{adapter: adapter, out: out, logger: logger, opts: opts}
}

// Run executes all steps and stops at the first failure, which is returned
// as a *StepError. Cancellation of ctx is returned as ctx.Err() without a
// failure report.
func (r *Runner) Run(ctx context.Context) error {
	r.out.Header(fmt.Sprintf("%s Bluetooth Integration Test", r.opts.TargetName))

	target, err := r.Discover(ctx)
	if err != nil {
		return r.fail(ctx, StepDiscover, err, "Could not discover %s device", r.opts.TargetName)
	}

	channel, err := r.ResolveService(ctx, target.Address)
	if err != nil {
		return r.fail(ctx, StepResolve, err, "Could not find SPP service")
	}

	return r.ConnectAndProbe(ctx, target.Address, channel)
}

func (r *Runner) fail(ctx context.Context, step Step, err error, format string, args ...any) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}

	r.logger.WithError(err).WithField("step", step).Debug("Check failed")

	r.out.Blank()
	r.out.Header(console.SymbolError + " Test Failed")
	r.out.Error(format, args...)
	return &StepError{Step: step, Err: err}
}

// Discover scans for the target and returns it. Devices are listed in
// discovery order up to the first exact name match.
func (r *Runner) Discover(ctx context.Context) (device.Device, error) {
	r.out.Info("Scanning for Bluetooth devices... (duration: %ss)", seconds(r.opts.DiscoveryDuration))
	r.out.Info("Looking for device: %q", r.opts.TargetName)
	r.out.Blank()

	s, err := scanner.NewScanner(r.adapter, r.logger)
	if err != nil {
		return device.Device{}, err
	}

	opts := &scanner.ScanOptions{
		Duration:   r.opts.DiscoveryDuration,
		Adapter:    r.opts.Adapter,
		FlushCache: r.opts.FlushCache,
	}
	if r.opts.StopOnMatch {
		opts.StopOnName = r.opts.TargetName
	}

	devices, err := s.Scan(ctx, opts, nil)
	if err != nil {
		if ctx.Err() != nil {
			return device.Device{}, ctx.Err()
		}
		cause := err
		if inner := errors.Unwrap(err); inner != nil {
			cause = inner
		}
		r.out.Error("Bluetooth discovery failed: %v", cause)
		r.out.Blank()
		r.out.Warning("Possible causes:")
		r.out.Println("  - Bluetooth is disabled on this machine")
		r.out.Println("  - Bluetooth permissions not granted")
		r.out.Println("  - %s is not powered on", r.opts.TargetName)
		r.out.Println("  - %s is out of range", r.opts.TargetName)
		return device.Device{}, err
	}

	if len(devices) == 0 {
		r.out.Warning("No Bluetooth devices discovered")
		r.out.Blank()
		r.out.Info("Make sure:")
		r.out.Println("  - %s is powered on", r.opts.TargetName)
		r.out.Println("  - Bluetooth is enabled on ESP32")
		r.out.Println("  - Device is in range (typically 10-30m)")
		return device.Device{}, ErrNoDevices
	}

	r.out.Println("Found %d device(s):", len(devices))
	_, idx, found := scanner.FindByName(devices, r.opts.TargetName)
	last := len(devices) - 1
	if found {
		last = idx
	}
	for _, d := range devices[:last+1] {
		r.out.Println("  • %s (%s)", d.DisplayName(), d.Address)
	}

	if !found {
		r.out.Blank()
		r.out.Error("Device %q not found", r.opts.TargetName)
		return device.Device{}, &device.NotFoundError{Resource: "device", Keys: []string{r.opts.TargetName}}
	}

	target := devices[idx]
	r.out.Blank()
	r.out.Success("Found %q!", r.opts.TargetName)
	r.out.Info("Address: %s", target.Address)
	return target, nil
}

// ResolveService queries the SDP records of address and returns the RFCOMM
// channel of the serial service.
func (r *Runner) ResolveService(ctx context.Context, address string) (uint8, error) {
	r.out.Blank()
	r.out.Info("Searching for SPP service...")

	res, err := inspector.ResolveService(ctx, r.adapter, address, r.logger, nil)
	if err != nil {
		var nf *device.NotFoundError
		switch {
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case errors.Is(err, inspector.ErrNoServices):
			r.out.Warning("No services found on device")
		case errors.As(err, &nf):
			r.out.Error("No SPP/RFCOMM service found")
		default:
			r.out.Error("Service discovery failed: %v", err)
		}
		return 0, err
	}

	channel, err := res.Selected.Channel()
	if err != nil {
		r.out.Error("Service discovery failed: %v", err)
		return 0, err
	}

	if res.Kind == device.MatchSerial {
		r.out.Success("Found SPP service: %s", res.Selected.DisplayName())
		r.out.Info("Port: %d", channel)
		r.out.Info("Protocol: %s", device.ProtocolRFCOMM)
	} else {
		r.out.Warning("Using first RFCOMM service (SPP not explicitly identified)")
		r.out.Info("Port: %d", channel)
	}
	return channel, nil
}

// ConnectAndProbe opens the RFCOMM connection, probes it and reports the
// final result. The connection is closed exactly once on every path after a
// successful connect.
func (r *Runner) ConnectAndProbe(ctx context.Context, address string, channel uint8) error {
	r.out.Blank()
	r.out.Info("Connecting to %s...", r.opts.TargetName)
	r.out.Info("Address: %s", address)
	r.out.Info("Port: %d", channel)

	connected := false
	progress := func(phase string) {
		if phase == "Connected" {
			connected = true
			r.out.Success("Connected successfully!")
		}
	}

	_, err := inspector.InspectDevice(ctx, r.adapter, address, channel,
		&inspector.InspectOptions{ConnectTimeout: r.opts.ConnectTimeout}, r.logger, progress,
		func(conn device.Conn) (struct{}, error) {
			if err := r.Probe(ctx, conn); err != nil {
				return struct{}{}, err
			}
			r.succeed()
			return struct{}{}, nil
		})

	if connected {
		r.out.Info("Disconnected")
		if err != nil {
			return r.fail(ctx, StepProbe, err, "Connection test interrupted")
		}
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.out.Error("Connection failed: %v", err)
	r.out.Blank()
	r.out.Warning("Troubleshooting:")
	r.out.Println("  - Try unpairing and re-pairing the device")
	r.out.Println("  - Ensure no other app is connected to %s", r.opts.TargetName)
	r.out.Println("  - Power cycle the %s", r.opts.TargetName)
	return r.fail(ctx, StepConnect, err, "Could not connect to %s", r.opts.TargetName)
}

// Probe keeps conn open for the probe window, then reads whatever the peer
// sent without blocking. Unexpected errors are reported as warnings and do
// not fail the check; only cancellation of ctx is returned.
func (r *Runner) Probe(ctx context.Context, conn device.Conn) error {
	r.out.Blank()
	r.out.Info("Testing connection (keeping open for %s seconds)...", seconds(r.opts.ProbeDuration))

	data, err := ProbeConn(ctx, conn, r.opts.ProbeDuration, r.opts.ProbeReadSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.out.Warning("Unexpected error during test: %v", err)
		return nil
	}

	if len(data) > 0 {
		r.out.Info("Received data: %s", strings.ToValidUTF8(string(data), ""))
	}
	r.out.Success("Connection stable")
	return nil
}

func (r *Runner) succeed() {
	if r.opts.Send {
		r.out.Blank()
		r.out.Warning("Command sending not yet implemented")
		r.out.Info("Future enhancement: Send test commands and validate responses")
	}

	r.out.Blank()
	r.out.Header(console.SymbolSuccess + " Test Completed Successfully")
	r.out.Blank()
	r.out.Success("Connection established and tested")
	r.out.Info("%s is ready to receive commands via Bluetooth", r.opts.TargetName)
	r.out.Blank()
}

// ProbeConn switches conn to non-blocking mode, waits for hold and returns
// up to readSize pending bytes. "No data yet" and end of stream yield an
// empty result.
func ProbeConn(ctx context.Context, conn device.Conn, hold time.Duration, readSize int) ([]byte, error) {
	if err := conn.SetNonblock(true); err != nil {
		return nil, err
	}

	if hold > 0 {
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	buf := make([]byte, readSize)
	n, err := conn.Read(buf)
	switch {
	case err == nil:
		return buf[:n], nil
	case device.IsWouldBlock(err), errors.Is(err, io.EOF):
		return nil, nil
	default:
		return nil, err
	}
}

// seconds formats d as a plain number of seconds ("10", "2.5").
func seconds(d time.Duration) string {
	return fmt.Sprintf("%g", d.Seconds())
}
