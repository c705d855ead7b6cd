package device

import "strings"

// Bluetooth SIG base UUID suffix; 16- and 32-bit UUIDs expand into it.
const baseUUIDSuffix = "00001000800000805f9b34fb"

// Service class and protocol UUIDs (normalized short form)
const (
	SerialPortUUID = "1101"
	L2CAPUUID      = "0100"
	RFCOMMUUID     = "0003"
)

var serviceClassNames = map[string]string{
	"1000": "ServiceDiscoveryServer",
	"1002": "PublicBrowseRoot",
	"1101": "SerialPort",
	"1102": "LANAccessUsingPPP",
	"1103": "DialupNetworking",
	"1104": "IrMCSync",
	"1105": "OBEXObjectPush",
	"1106": "OBEXFileTransfer",
	"1108": "Headset",
	"110a": "AudioSource",
	"110b": "AudioSink",
	"110c": "AVRemoteControlTarget",
	"110d": "AdvancedAudioDistribution",
	"110e": "AVRemoteControl",
	"110f": "AVRemoteControlController",
	"1112": "HeadsetAudioGateway",
	"1115": "PANU",
	"1116": "NAP",
	"1117": "GN",
	"111e": "Handsfree",
	"111f": "HandsfreeAudioGateway",
	"1124": "HumanInterfaceDevice",
	"112d": "SIMAccess",
	"112f": "PhonebookAccessPSE",
	"1130": "PhonebookAccess",
	"1131": "HeadsetHS",
	"1132": "MessageAccessServer",
	"1134": "MessageAccessProfile",
	"1200": "PnPInformation",
	"1203": "GenericAudio",
}

// NormalizeUUID converts a UUID string to the internal format: lowercase, no
// dashes, no 0x prefix. UUIDs in the Bluetooth SIG base range are reduced to
// their 16-bit (or 32-bit) short form. Returns "" for malformed input.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	for _, r := range u {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	switch len(u) {
	case 4, 8:
		if len(u) == 8 && strings.HasPrefix(u, "0000") {
			return u[4:]
		}
		return u
	case 32:
		if strings.HasSuffix(u, baseUUIDSuffix) {
			if strings.HasPrefix(u, "0000") {
				return u[4:8]
			}
			return u[:8]
		}
		return u
	default:
		return ""
	}
}

// ServiceClassName returns the assigned name for a Classic service class
// UUID, or the short UUID itself when it is not a known class.
func ServiceClassName(uuid string) string {
	u := NormalizeUUID(uuid)
	if name, ok := serviceClassNames[u]; ok {
		return name
	}
	return u
}
