package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/devicefactory"
	"github.com/stretchr/testify/suite"
)

// Default peer used by AdapterSuite when no adapter is configured.
const (
	DefaultTargetAddress = "24:0A:C4:00:11:22"
	DefaultTargetName    = "RobotSpider"
	DefaultTargetChannel = 1
)

// AdapterSuite swaps devicefactory.AdapterFactory for a FakeAdapter around
// every test.
//
//	type CheckSuite struct {
//	    testutils.AdapterSuite
//	}
//
//	func (s *CheckSuite) SetupTest() {
//	    s.WithAdapter().
//	        WithDevice("AA:BB:CC:DD:EE:FF", "Other").
//	        WithDialError(errors.New("host is down"))
//
//	    s.AdapterSuite.SetupTest() // call parent last to apply configuration
//	}
type AdapterSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// Builder configures the adapter of the next test; reset after each test.
	Builder *AdapterBuilder
	// Adapter is the fake installed for the current test.
	Adapter *FakeAdapter
	// FactoryOptions records the options of every factory call in the current test.
	FactoryOptions []devicefactory.Options

	originalFactory func(*logrus.Logger, devicefactory.Options) (device.Adapter, error)
}

// SetupSuite creates the shared helper and logger.
func (s *AdapterSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.originalFactory = devicefactory.AdapterFactory

	s.T().Cleanup(func() {
		devicefactory.AdapterFactory = s.originalFactory
	})
}

// SetupTest installs the configured adapter, or a default one with the
// RobotSpider peer publishing a serial port on channel 1.
func (s *AdapterSuite) SetupTest() {
	if s.Builder == nil {
		s.Builder = DefaultAdapterBuilder()
	}
	s.UseAdapter(s.Builder.Build())
}

// UseAdapter makes devicefactory.AdapterFactory return adapter for the rest
// of the current test.
func (s *AdapterSuite) UseAdapter(adapter *FakeAdapter) *FakeAdapter {
	s.Adapter = adapter
	s.FactoryOptions = nil
	devicefactory.AdapterFactory = func(_ *logrus.Logger, opts devicefactory.Options) (device.Adapter, error) {
		s.FactoryOptions = append(s.FactoryOptions, opts)
		return adapter, nil
	}
	return adapter
}

// TearDownTest restores the real factory and resets the builder.
func (s *AdapterSuite) TearDownTest() {
	if s.originalFactory != nil {
		devicefactory.AdapterFactory = s.originalFactory
	}
	s.Builder = nil
	s.Adapter = nil
	s.FactoryOptions = nil
}

// WithAdapter returns the builder for the next test's adapter.
func (s *AdapterSuite) WithAdapter() *AdapterBuilder {
	if s.Builder == nil {
		s.Builder = NewAdapterBuilder()
	}
	return s.Builder
}

// DefaultAdapterBuilder scripts one other device followed by the target.
func DefaultAdapterBuilder() *AdapterBuilder {
	return NewAdapterBuilder().
		WithDevice("11:22:33:44:55:66", "Phone").
		WithDevice(DefaultTargetAddress, DefaultTargetName).
		WithSerialService(DefaultTargetAddress, DefaultTargetChannel)
}
