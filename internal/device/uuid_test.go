package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// 16-bit UUID formats
		{
			name:     "16-bit UUID lowercase",
			input:    "1101",
			expected: "1101",
		},
		{
			name:     "16-bit UUID uppercase",
			input:    "110A",
			expected: "110a",
		},
		{
			name:     "16-bit UUID with 0x prefix",
			input:    "0x1101",
			expected: "1101",
		},
		{
			name:     "16-bit UUID with 0X prefix uppercase",
			input:    "0X110B",
			expected: "110b",
		},

		// Bluetooth SIG base UUID format (should extract the short form)
		{
			name:     "Full SPP UUID with dashes",
			input:    "00001101-0000-1000-8000-00805f9b34fb",
			expected: "1101",
		},
		{
			name:     "Full SPP UUID without dashes",
			input:    "0000110100001000800000805f9b34fb",
			expected: "1101",
		},
		{
			name:     "Full SIG UUID uppercase",
			input:    "0000111E-0000-1000-8000-00805F9B34FB",
			expected: "111e",
		},
		{
			name:     "32-bit SIG UUID",
			input:    "AA001101-0000-1000-8000-00805f9b34fb",
			expected: "aa001101",
		},
		{
			name:     "32-bit form with zero prefix",
			input:    "00001101",
			expected: "1101",
		},

		// Custom 128-bit UUIDs (should NOT be shortened)
		{
			name:     "Custom UUID - wrong suffix",
			input:    "00001101-1234-5678-9abc-def012345678",
			expected: "00001101123456789abcdef012345678",
		},

		// Invalid
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "non-hex characters",
			input:    "11zz",
			expected: "",
		},
		{
			name:     "wrong length",
			input:    "110",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestServiceClassName(t *testing.T) {
	assert.Equal(t, "SerialPort", ServiceClassName("1101"))
	assert.Equal(t, "SerialPort", ServiceClassName("00001101-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Handsfree", ServiceClassName("111E"))
	assert.Equal(t, "beef", ServiceClassName("beef"), "unknown classes MUST fall back to the short UUID")
}
