//go:build linux

package bluez

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// Discoverer implements device.Discoverer on top of org.bluez.Adapter1.
type Discoverer struct {
	logger *logrus.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(logger *logrus.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Discover runs a BR/EDR inquiry on the selected adapter until ctx is done.
func (d *Discoverer) Discover(ctx context.Context, opts device.DiscoverOptions, handler func(device.Device)) error {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("system bus: %w", device.NormalizeError(err))
	}
	defer bus.Close()

	// Subscribe before the snapshot so objects added in between still
	// arrive as InterfacesAdded.
	sigCh := make(chan *dbus.Signal, 64)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(objManagerIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(propsIface), dbus.WithMatchMember("PropertiesChanged")},
	}
	for _, m := range matches {
		if err := bus.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("subscribe to BlueZ signals: %w", device.NormalizeError(err))
		}
	}

	objs, err := getManagedObjects(bus)
	if err != nil {
		return err
	}

	adapterPath, adapterProps, err := pickAdapter(objs, opts.Adapter)
	if err != nil {
		return err
	}
	if powered, ok := adapterProps["Powered"].Value().(bool); ok && !powered {
		return fmt.Errorf("adapter %s: %w", adapterName(adapterPath), device.ErrBluetoothOff)
	}

	log := d.logger.WithField("adapter", adapterName(adapterPath))

	adapter := bus.Object(bluezService, adapterPath)
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("bredr")}
	if call := adapter.Call(adapterIface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		log.WithError(call.Err).Debug("SetDiscoveryFilter rejected, scanning all transports")
	}
	if call := adapter.Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
		if !strings.Contains(call.Err.Error(), "InProgress") {
			return fmt.Errorf("start discovery: %w", device.NormalizeError(call.Err))
		}
		log.Debug("Discovery already running")
	}
	defer func() {
		if call := adapter.Call(adapterIface+".StopDiscovery", 0); call.Err != nil {
			log.WithError(call.Err).Debug("StopDiscovery failed")
		}
	}()

	log.WithField("flush_cache", opts.FlushCache).Debug("Inquiry started")

	q := newInquiry(adapterPath, opts.FlushCache, log, handler)
	q.seed(objs)

	for {
		select {
		case <-ctx.Done():
			log.WithField("devices", q.states.Len()).Debug("Inquiry finished")
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return fmt.Errorf("system bus closed during discovery")
			}
			q.handleSignal(sig)
		}
	}
}

func getManagedObjects(bus *dbus.Conn) (managedObjects, error) {
	var objs managedObjects
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", device.NormalizeError(call.Err))
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode GetManagedObjects: %w", err)
	}
	return objs, nil
}
