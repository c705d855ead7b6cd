//go:build !windows

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/inspector"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/devicefactory"
	"github.com/srg/sppcheck/internal/groutine"
	"github.com/srg/sppcheck/internal/ptyio"
)

const (
	// DefaultPtyBufferSize is the ring buffer size, in bytes, used for each PTY direction.
	DefaultPtyBufferSize = 4096

	// readPollInterval bounds each RFCOMM read so the pump notices shutdown.
	readPollInterval = 50 * time.Millisecond
)

// ErrConnectionLost indicates the RFCOMM link dropped while the bridge was running.
var ErrConnectionLost = errors.New("connection lost")

// Bridge is a running RFCOMM to PTY bridge
type Bridge interface {
	Address() string
	Channel() uint8
	TTYName() string    // PTY slave path for display
	TTYSymlink() string // Symlink path (empty if not created)
	PTY() ptyio.PTY
	// Done is closed when the RFCOMM link is lost; Err then returns the cause.
	Done() <-chan struct{}
	Err() error
	Stats() Stats
}

// Stats counts bytes moved by the bridge
type Stats struct {
	FromDevice uint64
	ToDevice   uint64
}

// BridgeOptions contains all the configuration for running a bridge
type BridgeOptions struct {
	Address        string         // Remote device address
	Channel        uint8          // RFCOMM channel (0 = resolve the serial service over SDP)
	ConnectTimeout time.Duration  // RFCOMM connection timeout
	SDPTimeout     time.Duration  // SDP query timeout when resolving the channel (0 = no limit)
	Adapter        device.Adapter // Bluetooth adapter (nil = devicefactory.AdapterFactory)
	Logger         *logrus.Logger // Logger instance
	PtyBufferSize  int            // PTY ring buffer size in bytes (0 = use default)
	TTYSymlinkPath string         // Optional tty symlink path for PTY slave (e.g., /tmp/robotspider)
}

// ProgressCallback is called when the bridge phase changes
type ProgressCallback func(phase string)

// BridgeCallback is executed with the running bridge (mirrors InspectCallback)
type BridgeCallback[R any] func(Bridge) (R, error)

type bridgeImpl struct {
	address        string
	channel        uint8
	ttySymlinkPath string
	pty            ptyio.PTY

	done     chan struct{}
	doneOnce sync.Once
	err      atomic.Pointer[error]

	fromDevice atomic.Uint64
	toDevice   atomic.Uint64
}

func (b *bridgeImpl) Address() string       { return b.address }
func (b *bridgeImpl) Channel() uint8        { return b.channel }
func (b *bridgeImpl) TTYName() string       { return b.pty.TTYName() }
func (b *bridgeImpl) TTYSymlink() string    { return b.ttySymlinkPath }
func (b *bridgeImpl) PTY() ptyio.PTY        { return b.pty }
func (b *bridgeImpl) Done() <-chan struct{} { return b.done }

func (b *bridgeImpl) Err() error {
	if err := b.err.Load(); err != nil {
		return *err
	}
	return nil
}

func (b *bridgeImpl) Stats() Stats {
	return Stats{FromDevice: b.fromDevice.Load(), ToDevice: b.toDevice.Load()}
}

func (b *bridgeImpl) fail(err error) {
	b.doneOnce.Do(func() {
		err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
		b.err.Store(&err)
		close(b.done)
	})
}

// RunDeviceBridge connects to a device over RFCOMM, creates a PTY bridge, and executes the callback with the bridge.
// This function blocks until the callback returns.
// It follows the same pattern as inspector.InspectDevice, which also owns the connection lifetime.
func RunDeviceBridge[R any](
	ctx context.Context,
	opts *BridgeOptions,
	progressCallback ProgressCallback,
	callback BridgeCallback[R],
) (R, error) {
	var zero R

	// Validate options
	if opts == nil {
		return zero, fmt.Errorf("failed to execute bridge: options are required")
	}
	if opts.Address == "" {
		return zero, fmt.Errorf("failed to execute bridge: device address is required")
	}

	// Set defaults
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	bufSize := opts.PtyBufferSize
	if bufSize == 0 {
		bufSize = DefaultPtyBufferSize
	}

	adapter := opts.Adapter
	if adapter == nil {
		var err error
		adapter, err = devicefactory.AdapterFactory(logger, devicefactory.Options{ConnectTimeout: opts.ConnectTimeout, SDPTimeout: opts.SDPTimeout})
		if err != nil {
			return zero, err
		}
	}

	channel := opts.Channel
	if channel == 0 {
		progressCallback("Resolving service")
		res, err := inspector.ResolveService(ctx, adapter, opts.Address, logger, nil)
		if err != nil {
			progressCallback("Failed")
			return zero, fmt.Errorf("failed to resolve serial service on %s: %w", opts.Address, err)
		}
		if channel, err = res.Selected.Channel(); err != nil {
			progressCallback("Failed")
			return zero, err
		}
	}

	inspectProgress := func(phase string) {
		// "Processing results" is where the bridge runs
		if phase != "Processing results" {
			progressCallback(phase)
		}
	}

	return inspector.InspectDevice(ctx, adapter, opts.Address, channel,
		&inspector.InspectOptions{ConnectTimeout: opts.ConnectTimeout}, logger, inspectProgress,
		func(conn device.Conn) (R, error) {
			progressCallback("Setting up PTY")

			pty, err := ptyio.New(&ptyio.Options{ReadCap: bufSize, WriteCap: bufSize, Logger: logger})
			if err != nil {
				return zero, err
			}
			logger.WithField("tty", pty.TTYName()).Info("Created PTY device")

			b := &bridgeImpl{
				address: opts.Address,
				channel: channel,
				pty:     pty,
				done:    make(chan struct{}),
			}

			pumpCtx, stopPump := context.WithCancel(ctx)
			var pumpDone sync.WaitGroup

			defer func() {
				pty.SetReadCallback(nil)
				stopPump()
				pumpDone.Wait()

				// Remove tty symlink before closing PTY (cleanup order matters)
				if b.ttySymlinkPath != "" {
					if err := os.Remove(b.ttySymlinkPath); err != nil {
						logger.WithError(err).WithField("ttySymlink", b.ttySymlinkPath).Warn("Failed to remove tty symlink")
					} else {
						logger.WithField("ttySymlink", b.ttySymlinkPath).Debug("Removed tty symlink")
					}
				}
				_ = pty.Close()
			}()

			// Create symlink to PTY slave if requested
			if opts.TTYSymlinkPath != "" {
				if err := os.Symlink(pty.TTYName(), opts.TTYSymlinkPath); err != nil {
					return zero, fmt.Errorf("failed to create tty symlink %s -> %s: %w", opts.TTYSymlinkPath, pty.TTYName(), err)
				}
				b.ttySymlinkPath = opts.TTYSymlinkPath
				logger.WithFields(logrus.Fields{
					"ttySymlink": b.ttySymlinkPath,
					"target":     pty.TTYName(),
				}).Info("Created PTY symlink")
			}

			// PTY slave -> device
			pty.SetReadCallback(func(data []byte) {
				n, err := conn.Write(data)
				b.toDevice.Add(uint64(n))
				if err != nil {
					logger.WithError(err).Warn("RFCOMM write failed")
					b.fail(err)
				}
			})

			// Device -> PTY slave
			pumpDone.Add(1)
			groutine.Go(pumpCtx, "rfcomm-read-loop", func(ctx context.Context) {
				defer pumpDone.Done()
				pumpDeviceToPTY(ctx, conn, b, logger)
			})

			progressCallback("Running")
			return callback(b)
		})
}

func pumpDeviceToPTY(ctx context.Context, conn device.Conn, b *bridgeImpl, logger *logrus.Logger) {
	buf := make([]byte, 1024)
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			b.fail(err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			b.fromDevice.Add(uint64(n))
			if w, _ := b.pty.Write(buf[:n]); w < n {
				logger.WithField("dropped", n-w).Warn("PTY queue full")
			}
		}

		switch {
		case err == nil, device.IsWouldBlock(err):
		case ctx.Err() != nil:
			return
		default:
			logger.WithError(err).WithField("goroutine", groutine.Name(ctx)).Info("RFCOMM link closed")
			b.fail(err)
			return
		}
	}
}
