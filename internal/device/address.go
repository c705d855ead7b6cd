package device

import (
	"fmt"
	"net"
	"strings"
)

// ParseAddress parses a BD_ADDR such as "AA:BB:CC:DD:EE:FF" into its six
// bytes, most significant first (display order).
func ParseAddress(address string) ([6]byte, error) {
	var b [6]byte
	hw, err := net.ParseMAC(address)
	if err != nil {
		return b, fmt.Errorf("invalid bluetooth address %q: %w", address, err)
	}
	if len(hw) != 6 {
		return b, fmt.Errorf("invalid bluetooth address %q: expected 6 bytes, got %d", address, len(hw))
	}
	copy(b[:], hw)
	return b, nil
}

// ReverseAddress returns the address in little-endian order, as the kernel
// stores bdaddr_t.
func ReverseAddress(b [6]byte) [6]byte {
	var r [6]byte
	for i := range b {
		r[i] = b[len(b)-1-i]
	}
	return r
}

// FormatAddress renders address bytes (display order) as upper-case hex pairs.
func FormatAddress(b [6]byte) string {
	return strings.ToUpper(net.HardwareAddr(b[:]).String())
}

// NormalizeAddress returns the canonical upper-case form of an address, or
// the input unchanged when it does not parse.
func NormalizeAddress(address string) string {
	b, err := ParseAddress(address)
	if err != nil {
		return address
	}
	return FormatAddress(b)
}
