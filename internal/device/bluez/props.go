// Package bluez runs Bluetooth Classic inquiries through the BlueZ daemon
// over the D-Bus system bus.
package bluez

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/srg/sppcheck/internal/device"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// activityProps are the Device1 properties whose change shows the remote
// answered the current inquiry.
var activityProps = []string{"RSSI", "Name", "Class"}

// deviceFromProperties builds a device.Device from Device1 properties. The
// address falls back to the object path when the Address property is absent.
func deviceFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant) device.Device {
	d := device.Device{
		Address: stringProp(props, "Address"),
		Name:    stringProp(props, "Name"),
		Alias:   stringProp(props, "Alias"),
	}
	if d.Address == "" {
		d.Address = macFromPath(path)
	}
	d.Address = device.NormalizeAddress(d.Address)

	if v, ok := props["Class"]; ok {
		d.Class, _ = v.Value().(uint32)
	}
	if v, ok := props["RSSI"]; ok {
		d.RSSI, _ = v.Value().(int16)
	}
	if v, ok := props["Paired"]; ok {
		d.Paired, _ = v.Value().(bool)
	}
	if v, ok := props["Adapter"]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			d.Adapter = adapterName(p)
		}
	} else {
		d.Adapter = adapterName(parentPath(path))
	}
	return d
}

// isBREDR filters out LE devices using random addresses, which cannot
// host an RFCOMM service.
func isBREDR(props map[string]dbus.Variant) bool {
	if t := stringProp(props, "AddressType"); t == "random" {
		return false
	}
	return true
}

func hasActivity(changed map[string]dbus.Variant) bool {
	for _, key := range activityProps {
		if _, ok := changed[key]; ok {
			return true
		}
	}
	return false
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// macFromPath turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into
// AA:BB:CC:DD:EE:FF.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

func parentPath(p dbus.ObjectPath) dbus.ObjectPath {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i > 0 {
		return dbus.ObjectPath(s[:i])
	}
	return ""
}

func adapterName(p dbus.ObjectPath) string {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// isDeviceOf reports whether path is a device object under adapter.
func isDeviceOf(path, adapter dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(adapter)+"/dev_")
}

// pickAdapter returns the object path of the named adapter, or the first
// adapter in path order when name is empty.
func pickAdapter(objs managedObjects, name string) (dbus.ObjectPath, map[string]dbus.Variant, error) {
	var (
		best      dbus.ObjectPath
		bestProps map[string]dbus.Variant
	)
	for path, ifaces := range objs {
		props, ok := ifaces[adapterIface]
		if !ok {
			continue
		}
		if name != "" {
			if adapterName(path) == name || strings.EqualFold(stringProp(props, "Address"), name) {
				return path, props, nil
			}
			continue
		}
		if best == "" || path < best {
			best, bestProps = path, props
		}
	}
	if best == "" {
		if name != "" {
			return "", nil, &device.NotFoundError{Resource: "adapter", Keys: []string{name}}
		}
		return "", nil, device.ErrNoAdapter
	}
	return best, bestProps, nil
}
