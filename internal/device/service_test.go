package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSerialService(t *testing.T) {
	tests := []struct {
		name         string
		services     []Service
		expectedPort uint16
		expectedKind MatchKind
		expectErr    bool
	}{
		{
			name: "serial port by name",
			services: []Service{
				{Name: "Audio Sink", Protocol: ProtocolL2CAP, Port: 25},
				{Name: "Serial Port", Protocol: ProtocolRFCOMM, Port: 1},
			},
			expectedPort: 1,
			expectedKind: MatchSerial,
		},
		{
			name: "serial port by service class",
			services: []Service{
				{Name: "Dial-up", Protocol: ProtocolRFCOMM, Port: 2, ServiceClasses: []string{"1103"}},
				{Name: "ESP32SPP", Protocol: ProtocolRFCOMM, Port: 3, ServiceClasses: []string{"00001101-0000-1000-8000-00805f9b34fb"}},
			},
			expectedPort: 3,
			expectedKind: MatchSerial,
		},
		{
			name: "RFCOMM entry without explicit serial name is selected",
			services: []Service{
				{Name: "Audio Sink", Protocol: ProtocolL2CAP, Port: 25},
				{Protocol: ProtocolRFCOMM, Port: 5},
				{Name: "Other", Protocol: ProtocolRFCOMM, Port: 7},
			},
			expectedPort: 5,
			expectedKind: MatchFirstRFCOMM,
		},
		{
			name: "serial name over L2CAP only is not connectable",
			services: []Service{
				{Name: "Serial over L2CAP", Protocol: ProtocolL2CAP, Port: 4097},
				{Name: "Headset", Protocol: ProtocolRFCOMM, Port: 9},
			},
			expectedPort: 9,
			expectedKind: MatchFirstRFCOMM,
		},
		{
			name: "no RFCOMM records",
			services: []Service{
				{Name: "Audio Sink", Protocol: ProtocolL2CAP, Port: 25},
			},
			expectErr: true,
		},
		{
			name:      "empty list",
			services:  nil,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, kind, err := SelectSerialService(tt.services)
			if tt.expectErr {
				require.Error(t, err)
				var nf *NotFoundError
				assert.ErrorAs(t, err, &nf)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedPort, svc.Port)
			assert.Equal(t, tt.expectedKind, kind)
		})
	}
}

func TestServiceChannel(t *testing.T) {
	ch, err := Service{Protocol: ProtocolRFCOMM, Port: 1}.Channel()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), ch)

	_, err = Service{Protocol: ProtocolL2CAP, Port: 25}.Channel()
	assert.Error(t, err)

	_, err = Service{Protocol: ProtocolRFCOMM, Port: 31}.Channel()
	assert.Error(t, err, "RFCOMM channels MUST be within 1..30")

	_, err = Service{Protocol: ProtocolRFCOMM}.Channel()
	assert.Error(t, err)
}

func TestServiceDisplayName(t *testing.T) {
	assert.Equal(t, "Unknown", Service{}.DisplayName())
	assert.Equal(t, "SPP", Service{Name: "SPP"}.DisplayName())
}
