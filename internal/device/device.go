package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"
)

// NotFoundError represents an error when a Bluetooth resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "adapter"
	Keys     []string // Name, address or UUID used for the lookup
}

func (e *NotFoundError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.Keys) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.Keys[0])
	}
	// A service is looked up on a device: [address, service]
	return fmt.Sprintf("%s %q not found on %q", e.Resource, e.Keys[len(e.Keys)-1], e.Keys[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	ConnectFailed ConnectionState = "connect_failed"
	Closed        ConnectionState = "closed"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
	Err   error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Msg == "" && e.Err == nil:
		return string(e.State)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.State, e.Msg)
	case e.Msg == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
}

// Unwrap exposes the platform error that caused the failure.
func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrConnectFailed = &ConnectionError{State: ConnectFailed}
	ErrClosed        = &ConnectionError{State: Closed}
)

// Platform errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth adapter is powered off")
	ErrNoAdapter    = errors.New("no bluetooth adapter available")
	ErrPermission   = errors.New("permission denied")
)

// NormalizeError maps known BlueZ D-Bus error names and errno values to the
// structured errors above. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, syscall.ETIMEDOUT):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, syscall.EHOSTDOWN), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH):
		return &ConnectionError{State: ConnectFailed, Err: err}
	case errors.Is(err, syscall.EAFNOSUPPORT), errors.Is(err, syscall.EPROTONOSUPPORT):
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "org.bluez.Error.NotReady"):
		return fmt.Errorf("%w: %w", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "org.bluez.Error.NotAuthorized"),
		containsIgnoreCase(msg, "org.freedesktop.DBus.Error.AccessDenied"):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case containsIgnoreCase(msg, "org.freedesktop.DBus.Error.ServiceUnknown"):
		return fmt.Errorf("%w: bluetoothd is not running: %w", ErrNoAdapter, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IsWouldBlock reports whether err means "no data right now" on a
// non-blocking or deadline-bound read.
func IsWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// Device is a remote Bluetooth Classic device seen during an inquiry.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Alias   string `json:"alias,omitempty"`
	Class   uint32 `json:"class,omitempty"`
	RSSI    int16  `json:"rssi,omitempty"`
	Paired  bool   `json:"paired"`
	Adapter string `json:"adapter,omitempty"`
}

// DisplayName returns the resolved name, or "Unknown" when the remote name
// request has not completed.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return "Unknown"
}

// Merge folds a newer observation of the same device into d. Empty fields in
// the update never erase known values.
func (d Device) Merge(update Device) Device {
	if update.Name != "" {
		d.Name = update.Name
	}
	if update.Alias != "" {
		d.Alias = update.Alias
	}
	if update.Class != 0 {
		d.Class = update.Class
	}
	if update.RSSI != 0 {
		d.RSSI = update.RSSI
	}
	if update.Adapter != "" {
		d.Adapter = update.Adapter
	}
	d.Paired = d.Paired || update.Paired
	return d
}

// DiscoverOptions configures a single inquiry.
type DiscoverOptions struct {
	// Adapter selects the local controller (e.g. "hci0"); empty means the first one.
	Adapter string
	// FlushCache reports only devices that respond during this inquiry,
	// ignoring entries the platform remembers from earlier scans.
	FlushCache bool
}

// Discoverer runs a device inquiry until ctx is done, reporting each
// observation to handler. Handler may be called more than once per address
// as names resolve. Returning because ctx ended is not an error.
type Discoverer interface {
	Discover(ctx context.Context, opts DiscoverOptions, handler func(Device)) error
}

// ServiceBrowser queries the service records published by a remote device.
type ServiceBrowser interface {
	Services(ctx context.Context, address string) ([]Service, error)
}

// Dialer opens RFCOMM connections.
type Dialer interface {
	Dial(ctx context.Context, address string, channel uint8) (Conn, error)
}

// Adapter is the full set of platform Bluetooth capabilities.
type Adapter interface {
	Discoverer
	ServiceBrowser
	Dialer
}

// Conn is an open RFCOMM stream.
//
// Close is idempotent; only the first call releases the socket.
type Conn interface {
	io.ReadWriteCloser
	// SetNonblock switches reads between blocking and non-blocking mode. In
	// non-blocking mode Read returns an error satisfying IsWouldBlock when no
	// data is pending.
	SetNonblock(nonblocking bool) error
	// SetReadDeadline bounds the next blocking reads; zero disables it.
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Channel() uint8
}
