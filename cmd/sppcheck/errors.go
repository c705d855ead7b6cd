package main

import (
	"errors"
	"fmt"

	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/pkg/config"
)

// FormatUserError turns known errors into a one-line message with a hint.
// Unknown errors are returned as is.
func FormatUserError(err error) string {
	var (
		notFound *device.NotFoundError
		loadErr  *config.LoadError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off (power on the adapter, e.g. `bluetoothctl power on`)"
	case errors.Is(err, device.ErrNoAdapter):
		return fmt.Sprintf("no Bluetooth adapter available (is bluetoothd running?): %v", err)
	case errors.Is(err, device.ErrPermission):
		return fmt.Sprintf("permission denied (run as root or grant CAP_NET_RAW/CAP_NET_ADMIN): %v", err)
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth Classic sockets are not supported on this platform"
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, device.ErrConnectFailed):
		return fmt.Sprintf("could not connect: %v (is the device powered on and in range?)", err)
	case errors.As(err, &loadErr):
		return fmt.Sprintf("configuration: %v", loadErr)
	default:
		return err.Error()
	}
}
