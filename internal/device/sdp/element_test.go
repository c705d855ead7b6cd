package sdp

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeElement(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected Element
		consumed int
	}{
		{
			name:     "nil",
			input:    []byte{0x00},
			expected: Element{Type: TypeNil},
			consumed: 1,
		},
		{
			name:     "uint8",
			input:    []byte{0x08, 0x03},
			expected: Uint8(3),
			consumed: 2,
		},
		{
			name:     "uint16",
			input:    []byte{0x09, 0x01, 0x00},
			expected: Uint16(0x0100),
			consumed: 3,
		},
		{
			name:     "uint32 record handle",
			input:    []byte{0x0a, 0x00, 0x01, 0x00, 0x01},
			expected: Uint32(0x00010001),
			consumed: 5,
		},
		{
			name:     "negative int8",
			input:    []byte{0x10, 0xff},
			expected: Element{Type: TypeInt, Size: 1, Int: -1},
			consumed: 2,
		},
		{
			name:     "negative int16",
			input:    []byte{0x11, 0xff, 0xfe},
			expected: Element{Type: TypeInt, Size: 2, Int: -2},
			consumed: 3,
		},
		{
			name:     "uuid16",
			input:    []byte{0x19, 0x11, 0x01},
			expected: UUID16(0x1101),
			consumed: 3,
		},
		{
			name:     "bool",
			input:    []byte{0x28, 0x01},
			expected: Element{Type: TypeBool, Bool: true},
			consumed: 2,
		},
		{
			name:     "text with 8-bit length",
			input:    []byte{0x25, 0x03, 'S', 'P', 'P'},
			expected: Text("SPP"),
			consumed: 5,
		},
		{
			name:     "trailing bytes are not consumed",
			input:    []byte{0x08, 0x01, 0xaa, 0xbb},
			expected: Uint8(1),
			consumed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, n, err := Decode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, e)
			assert.Equal(t, tt.consumed, n)
		})
	}
}

func TestDecodeSequence(t *testing.T) {
	// [[L2CAP], [RFCOMM, 1]]
	input := []byte{
		0x35, 0x0c,
		0x35, 0x03, 0x19, 0x01, 0x00,
		0x35, 0x05, 0x19, 0x00, 0x03, 0x08, 0x01,
	}

	e, n, err := Decode(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	require.Equal(t, TypeSequence, e.Type)
	require.Len(t, e.Items, 2)

	assert.Equal(t, "0100", e.Items[0].Items[0].UUIDString())
	assert.Equal(t, "0003", e.Items[1].Items[0].UUIDString())
	assert.Equal(t, uint64(1), e.Items[1].Items[1].Uint)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"nil with size", []byte{0x01}},
		{"truncated uint16", []byte{0x09, 0x01}},
		{"truncated text length", []byte{0x25}},
		{"text longer than input", []byte{0x25, 0x05, 'a'}},
		{"sequence with fixed size", []byte{0x30, 0x00}},
		{"uuid of 8 bytes", []byte{0x1b, 1, 2, 3, 4, 5, 6, 7, 8}},
		{"broken nested element", []byte{0x35, 0x02, 0x09, 0x01}},
		{"unknown type", []byte{0x48, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeElement(t *testing.T) {
	t.Run("search pattern", func(t *testing.T) {
		b, err := Encode(Sequence(UUID16(0x0100)))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x35, 0x03, 0x19, 0x01, 0x00}, b)
	})

	t.Run("attribute range", func(t *testing.T) {
		b, err := Encode(Sequence(Uint32(0x0000ffff)))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x35, 0x05, 0x0a, 0x00, 0x00, 0xff, 0xff}, b)
	})

	t.Run("long sequence uses 16-bit length", func(t *testing.T) {
		items := make([]Element, 100)
		for i := range items {
			items[i] = Uint16(uint16(i))
		}
		b, err := Encode(Sequence(items...))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x36, 0x01, 0x2c}, b[:3], "300 body bytes MUST use size index 6")

		decoded, n, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, items, decoded.Items)
	})

	t.Run("uuid128 round trip", func(t *testing.T) {
		u := uuid.MustParse("00001101-0000-1000-8000-00805f9b34fb")
		b, err := Encode(UUID128(u))
		require.NoError(t, err)
		assert.Equal(t, byte(0x1c), b[0])

		decoded, _, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, "1101", decoded.UUIDString())
	})

	t.Run("custom uuid128 keeps full form", func(t *testing.T) {
		u := uuid.MustParse("e0cbf06c-cd8b-4647-bb8a-263b43f0f974")
		assert.Equal(t, "e0cbf06ccd8b4647bb8a263b43f0f974", UUID128(u).UUIDString())
	})

	t.Run("negative int", func(t *testing.T) {
		b, err := Encode(Element{Type: TypeInt, Size: 2, Int: -2})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x11, 0xff, 0xfe}, b)
	})

	t.Run("invalid width", func(t *testing.T) {
		_, err := Encode(Element{Type: TypeUint, Size: 3})
		assert.ErrorIs(t, err, ErrMalformed)

		_, err = Encode(Element{Type: TypeUUID, UUID: []byte{1}})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestElementString(t *testing.T) {
	e := Sequence(UUID16(0x0003), Uint8(1), Text("SPP"))
	assert.Equal(t, `[uuid:0003, 0x01, "SPP"]`, e.String())
	assert.True(t, bytes.HasPrefix([]byte(Element{Type: TypeAlternative}.String()), []byte("<")))
}
