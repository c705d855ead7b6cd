package bluez

import (
	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// deviceState tracks one Device1 object during an inquiry.
type deviceState struct {
	dev      device.Device
	reported bool
}

// inquiry folds the ObjectManager snapshot and the BlueZ signal stream of one
// adapter into device reports.
type inquiry struct {
	adapterPath dbus.ObjectPath
	flushCache  bool
	states      *hashmap.Map[dbus.ObjectPath, *deviceState]
	handler     func(device.Device)
	log         *logrus.Entry
}

func newInquiry(adapterPath dbus.ObjectPath, flushCache bool, log *logrus.Entry, handler func(device.Device)) *inquiry {
	return &inquiry{
		adapterPath: adapterPath,
		flushCache:  flushCache,
		states:      hashmap.New[dbus.ObjectPath, *deviceState](),
		handler:     handler,
		log:         log,
	}
}

func (q *inquiry) report(path dbus.ObjectPath, st *deviceState) {
	st.reported = true
	q.log.WithFields(logrus.Fields{
		"path":    path,
		"address": st.dev.Address,
		"name":    st.dev.Name,
		"rssi":    st.dev.RSSI,
	}).Debug("Device observed")
	q.handler(st.dev)
}

// seed registers the devices BlueZ already knows. With flushCache they stay
// silent until they show activity.
func (q *inquiry) seed(objs managedObjects) {
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || !isDeviceOf(path, q.adapterPath) || !isBREDR(props) {
			continue
		}
		st, existing := q.states.GetOrInsert(path, &deviceState{dev: deviceFromProperties(path, props)})
		if existing {
			continue
		}
		if !q.flushCache {
			q.report(path, st)
		}
	}
}

func (q *inquiry) handleSignal(sig *dbus.Signal) {
	if sig == nil {
		return
	}

	switch sig.Name {
	case objManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		props, ok := ifaces[deviceIface]
		if !ok || !isDeviceOf(path, q.adapterPath) || !isBREDR(props) {
			return
		}
		observed := deviceFromProperties(path, props)
		st, existing := q.states.GetOrInsert(path, &deviceState{dev: observed})
		if existing {
			st.dev = st.dev.Merge(observed)
		}
		q.report(path, st)

	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 || !isDeviceOf(sig.Path, q.adapterPath) {
			return
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if iface != deviceIface || changed == nil {
			return
		}
		st, ok := q.states.Get(sig.Path)
		if !ok {
			return
		}
		update := deviceFromProperties(sig.Path, changed)
		nameResolved := update.Name != "" && update.Name != st.dev.Name
		st.dev = st.dev.Merge(update)

		// Re-report only when something a listener cares about changed.
		if (!st.reported && hasActivity(changed)) || (st.reported && nameResolved) {
			q.report(sig.Path, st)
		}
	}
}
