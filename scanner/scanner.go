package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

func (t DeviceEventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

type DeviceEvent struct {
	Type   DeviceEventType
	Device device.Device
}

// Scanner handles Bluetooth Classic device discovery
type Scanner struct {
	discoverer device.Discoverer
	logger     *logrus.Logger
	events     *ringchan.RingChannel[DeviceEvent]

	mu      sync.Mutex
	devices *orderedmap.OrderedMap[string, device.Device]
	opts    *ScanOptions
	stop    context.CancelFunc
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration   time.Duration
	Adapter    string
	FlushCache bool
	AllowList  []string
	BlockList  []string
	// StopOnName ends the scan as soon as a device with exactly this name
	// is seen.
	StopOnName string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:   10 * time.Second,
		FlushCache: true,
	}
}

// NewScanner creates a scanner over the given discoverer
func NewScanner(discoverer device.Discoverer, logger *logrus.Logger) (*Scanner, error) {
	if discoverer == nil {
		return nil, errors.New("scanner: discoverer is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		discoverer: discoverer,
		events:     ringchan.New[DeviceEvent](100),
		logger:     logger,
		devices:    orderedmap.New[string, device.Device](),
	}, nil
}

// Scan runs one inquiry and returns the devices in the order they were first
// seen. Reaching opts.Duration or StopOnName is a normal end; cancellation
// of ctx by the caller is returned as ctx.Err().
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.Device, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if opts.Duration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	s.mu.Lock()
	s.devices = orderedmap.New[string, device.Device]()
	s.opts = opts
	s.stop = cancel
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"duration":    opts.Duration,
		"flush_cache": opts.FlushCache,
	}).Info("Starting Bluetooth scan...")

	// Report scanning phase
	progressCallback("Scanning")

	err := s.discoverer.Discover(scanCtx, device.DiscoverOptions{
		Adapter:    opts.Adapter,
		FlushCache: opts.FlushCache,
	}, s.handleDevice)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	devices := s.Devices()
	stats := s.events.Stats()
	s.logger.WithFields(logrus.Fields{
		"device_count":   len(devices),
		"events":         stats.Written,
		"events_dropped": stats.Overwritten,
	}).Info("Bluetooth scan completed")

	// Report processing phase
	progressCallback("Processing results")

	return devices, nil
}

// handleDevice records an observation and publishes the matching event
func (s *Scanner) handleDevice(observed device.Device) {
	address := device.NormalizeAddress(observed.Address)
	observed.Address = address

	s.mu.Lock()
	opts := s.opts
	if opts != nil && !shouldIncludeDevice(address, opts) {
		s.mu.Unlock()
		return
	}

	event := DeviceEvent{Type: EventNew, Device: observed}
	if known, existing := s.devices.Get(address); existing {
		event.Type = EventUpdated
		event.Device = known.Merge(observed)
	}
	s.devices.Set(address, event.Device)
	stop := s.stop
	s.mu.Unlock()

	if event.Type == EventNew {
		s.logger.WithFields(logrus.Fields{
			"device":  event.Device.DisplayName(),
			"address": address,
			"rssi":    event.Device.RSSI,
		}).Info("Discovered new device")
	}

	if s.events.Send(event) {
		s.logger.WithField("address", address).Debug("Event buffer full, dropped the oldest event")
	}

	if opts != nil && opts.StopOnName != "" && event.Device.Name == opts.StopOnName && stop != nil {
		s.logger.WithField("device", opts.StopOnName).Info("Target seen, ending scan early")
		stop()
	}
}

// shouldIncludeDevice applies the allow and block lists
func shouldIncludeDevice(address string, opts *ScanOptions) bool {
	for _, blocked := range opts.BlockList {
		if strings.EqualFold(address, blocked) {
			return false
		}
	}

	if len(opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range opts.AllowList {
		if strings.EqualFold(address, allowed) {
			return true
		}
	}
	return false
}

// Devices returns a snapshot of discovered devices in discovery order
func (s *Scanner) Devices() []device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	devs := make([]device.Device, 0, s.devices.Len())
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		devs = append(devs, pair.Value)
	}
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// FindByName returns the first device whose name equals name exactly, and
// its index in devices.
func FindByName(devices []device.Device, name string) (device.Device, int, bool) {
	for i, d := range devices {
		if d.Name == name {
			return d, i, true
		}
	}
	return device.Device{}, -1, false
}
