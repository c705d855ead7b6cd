package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/srg/sppcheck/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacFromPath(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", macFromPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"))
	assert.Equal(t, "", macFromPath("/org/bluez/hci0"))
}

func TestDeviceFromProperties(t *testing.T) {
	path := dbus.ObjectPath("/org/bluez/hci0/dev_24_0A_C4_00_11_22")

	t.Run("full property set", func(t *testing.T) {
		props := map[string]dbus.Variant{
			"Address": dbus.MakeVariant("24:0a:c4:00:11:22"),
			"Name":    dbus.MakeVariant("RobotSpider"),
			"Alias":   dbus.MakeVariant("RobotSpider"),
			"Class":   dbus.MakeVariant(uint32(0x1f00)),
			"RSSI":    dbus.MakeVariant(int16(-48)),
			"Paired":  dbus.MakeVariant(true),
			"Adapter": dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0")),
		}

		d := deviceFromProperties(path, props)
		assert.Equal(t, device.Device{
			Address: "24:0A:C4:00:11:22",
			Name:    "RobotSpider",
			Alias:   "RobotSpider",
			Class:   0x1f00,
			RSSI:    -48,
			Paired:  true,
			Adapter: "hci0",
		}, d)
	})

	t.Run("partial update falls back to path", func(t *testing.T) {
		d := deviceFromProperties(path, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-70))})
		assert.Equal(t, "24:0A:C4:00:11:22", d.Address)
		assert.Equal(t, "hci0", d.Adapter)
		assert.Equal(t, int16(-70), d.RSSI)
		assert.Empty(t, d.Name, "unresolved name MUST stay empty")
	})
}

func TestActivityAndTransport(t *testing.T) {
	assert.True(t, hasActivity(map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-60))}))
	assert.True(t, hasActivity(map[string]dbus.Variant{"Name": dbus.MakeVariant("x")}))
	assert.False(t, hasActivity(map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}))

	assert.True(t, isBREDR(map[string]dbus.Variant{"AddressType": dbus.MakeVariant("public")}))
	assert.True(t, isBREDR(map[string]dbus.Variant{}))
	assert.False(t, isBREDR(map[string]dbus.Variant{"AddressType": dbus.MakeVariant("random")}))

	assert.True(t, isDeviceOf("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "/org/bluez/hci0"))
	assert.False(t, isDeviceOf("/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF", "/org/bluez/hci0"))
	assert.False(t, isDeviceOf("/org/bluez/hci0", "/org/bluez/hci0"))
}

func TestPickAdapter(t *testing.T) {
	objs := managedObjects{
		"/org/bluez/hci1": {adapterIface: {
			"Address": dbus.MakeVariant("00:1A:7D:DA:71:02"),
			"Powered": dbus.MakeVariant(true),
		}},
		"/org/bluez/hci0": {adapterIface: {
			"Address": dbus.MakeVariant("00:1A:7D:DA:71:01"),
			"Powered": dbus.MakeVariant(false),
		}},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF": {deviceIface: {}},
	}

	t.Run("first adapter by default", func(t *testing.T) {
		path, props, err := pickAdapter(objs, "")
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), path)
		assert.Equal(t, false, props["Powered"].Value())
	})

	t.Run("by name", func(t *testing.T) {
		path, _, err := pickAdapter(objs, "hci1")
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), path)
	})

	t.Run("by address", func(t *testing.T) {
		path, _, err := pickAdapter(objs, "00:1a:7d:da:71:02")
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), path)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, _, err := pickAdapter(objs, "hci7")
		var nf *device.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("no adapters", func(t *testing.T) {
		_, _, err := pickAdapter(managedObjects{}, "")
		assert.ErrorIs(t, err, device.ErrNoAdapter)
	})
}
