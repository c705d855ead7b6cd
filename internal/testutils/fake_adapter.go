package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/sppcheck/internal/device"
)

// DialCall records one Dial invocation.
type DialCall struct {
	Address string
	Channel uint8
}

// FakeAdapter is a scripted device.Adapter.
type FakeAdapter struct {
	mu sync.Mutex

	observations   []device.Device
	discoverDelay  time.Duration
	waitForContext bool
	discoverErr    error

	services    map[string][]device.Service
	servicesErr error

	dialErr error
	conn    *FakeConn

	discoverOpts  []device.DiscoverOptions
	servicesCalls []string
	dialCalls     []DialCall
}

// Discover reports each scripted observation, then either returns or waits
// for ctx, depending on the builder configuration.
func (a *FakeAdapter) Discover(ctx context.Context, opts device.DiscoverOptions, handler func(device.Device)) error {
	a.mu.Lock()
	a.discoverOpts = append(a.discoverOpts, opts)
	observations := append([]device.Device(nil), a.observations...)
	delay, wait, err := a.discoverDelay, a.waitForContext, a.discoverErr
	a.mu.Unlock()

	if err != nil {
		return err
	}

	for _, d := range observations {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		handler(d)
	}

	if wait {
		<-ctx.Done()
	}
	return nil
}

// Services returns the records scripted for address.
func (a *FakeAdapter) Services(ctx context.Context, address string) ([]device.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.servicesCalls = append(a.servicesCalls, address)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.servicesErr != nil {
		return nil, a.servicesErr
	}
	return append([]device.Service(nil), a.services[device.NormalizeAddress(address)]...), nil
}

// Dial returns the scripted connection, or a fresh FakeConn.
func (a *FakeAdapter) Dial(ctx context.Context, address string, channel uint8) (device.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dialCalls = append(a.dialCalls, DialCall{Address: address, Channel: channel})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.dialErr != nil {
		return nil, a.dialErr
	}
	if a.conn == nil {
		a.conn = NewFakeConn(address, channel)
	}
	a.conn.address, a.conn.channel = address, channel
	return a.conn, nil
}

// Conn returns the connection handed out by Dial, if any.
func (a *FakeAdapter) Conn() *FakeConn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// DiscoverOptions returns the options of every Discover call.
func (a *FakeAdapter) DiscoverOptions() []device.DiscoverOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]device.DiscoverOptions(nil), a.discoverOpts...)
}

// ServicesCalls returns the addresses passed to Services.
func (a *FakeAdapter) ServicesCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.servicesCalls...)
}

// DialCalls returns every Dial invocation.
func (a *FakeAdapter) DialCalls() []DialCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DialCall(nil), a.dialCalls...)
}

// AdapterBuilder configures a FakeAdapter fluently.
//
//	adapter := testutils.NewAdapterBuilder().
//	    WithDevice("24:0A:C4:00:11:22", "RobotSpider").
//	    WithSerialService("24:0A:C4:00:11:22", 1).
//	    Build()
type AdapterBuilder struct {
	adapter *FakeAdapter
}

// NewAdapterBuilder starts an empty adapter.
func NewAdapterBuilder() *AdapterBuilder {
	return &AdapterBuilder{adapter: &FakeAdapter{services: map[string][]device.Service{}}}
}

// WithDevice adds one discovery observation.
func (b *AdapterBuilder) WithDevice(address, name string) *AdapterBuilder {
	return b.WithDevices(device.Device{Address: address, Name: name})
}

// WithDevices adds observations in the order they will be reported.
func (b *AdapterBuilder) WithDevices(devices ...device.Device) *AdapterBuilder {
	b.adapter.observations = append(b.adapter.observations, devices...)
	return b
}

// WithDiscoverDelay spaces observations by d.
func (b *AdapterBuilder) WithDiscoverDelay(d time.Duration) *AdapterBuilder {
	b.adapter.discoverDelay = d
	return b
}

// WaitForContext keeps Discover running until its context ends.
func (b *AdapterBuilder) WaitForContext() *AdapterBuilder {
	b.adapter.waitForContext = true
	return b
}

// WithDiscoverError makes Discover fail immediately.
func (b *AdapterBuilder) WithDiscoverError(err error) *AdapterBuilder {
	b.adapter.discoverErr = err
	return b
}

// WithServices scripts the SDP records of address.
func (b *AdapterBuilder) WithServices(address string, services ...device.Service) *AdapterBuilder {
	key := device.NormalizeAddress(address)
	b.adapter.services[key] = append(b.adapter.services[key], services...)
	return b
}

// WithSerialService adds a "Serial Port" RFCOMM record on channel.
func (b *AdapterBuilder) WithSerialService(address string, channel uint8) *AdapterBuilder {
	return b.WithServices(address, device.Service{
		Handle:         0x00010001,
		Name:           "Serial Port",
		Protocol:       device.ProtocolRFCOMM,
		Port:           uint16(channel),
		ServiceClasses: []string{device.SerialPortUUID},
	})
}

// WithServicesError makes every SDP query fail.
func (b *AdapterBuilder) WithServicesError(err error) *AdapterBuilder {
	b.adapter.servicesErr = err
	return b
}

// WithDialError makes every Dial fail.
func (b *AdapterBuilder) WithDialError(err error) *AdapterBuilder {
	b.adapter.dialErr = err
	return b
}

// WithConn hands conn out from Dial.
func (b *AdapterBuilder) WithConn(conn *FakeConn) *AdapterBuilder {
	b.adapter.conn = conn
	return b
}

// Build returns the configured adapter.
func (b *AdapterBuilder) Build() *FakeAdapter {
	return b.adapter
}
