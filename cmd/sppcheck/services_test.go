package main

import (
	"errors"
	"testing"

	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ServicesCommandTestSuite struct {
	CommandTestSuite
}

func (suite *ServicesCommandTestSuite) SetupTest() {
	suite.WithAdapter().
		WithServices(testutils.DefaultTargetAddress,
			device.Service{Handle: 0x00010000, Name: "PnP", Protocol: device.ProtocolL2CAP, Port: 1, ServiceClasses: []string{"1200"}},
			device.Service{Handle: 0x00010002, Name: "Headset Gateway", Protocol: device.ProtocolRFCOMM, Port: 3, ServiceClasses: []string{"1112"}},
			device.Service{Handle: 0x00010001, Name: "Serial Port", Protocol: device.ProtocolRFCOMM, Port: 1, ServiceClasses: []string{device.SerialPortUUID}},
			device.Service{Handle: 0x00010003},
		)

	suite.CommandTestSuite.SetupTest()
}

func (suite *ServicesCommandTestSuite) TestServicesTable() {
	// GOAL: Verify every record is listed and the serial one is marked
	//
	// TEST SCENARIO: Four records, serial port third → table in SDP order → '*' on the serial port

	res := suite.ExecuteCommand("services", "24:0a:c4:00:11:22")
	suite.Require().Equal(exitOK, res.Code, "stderr: %s", res.Stderr)

	testutils.NewTextAsserter(suite.T()).Assert(res.Stdout, `   HANDLE      NAME             PROTOCOL  PORT  CLASSES
   0x00010000  PnP              L2CAP     1     PnPInformation
   0x00010002  Headset Gateway  RFCOMM    3     HeadsetAudioGateway
*  0x00010001  Serial Port      RFCOMM    1     SerialPort
   0x00010003  Unknown          -         -
`)
	suite.Equal([]string{testutils.DefaultTargetAddress}, suite.Adapter.ServicesCalls(), "address MUST be normalized")
}

func (suite *ServicesCommandTestSuite) TestServicesJSON() {
	res := suite.ExecuteCommand("services", "--format", "json", testutils.DefaultTargetAddress)
	suite.Require().Equal(exitOK, res.Code)

	testutils.NewJSONAsserter(suite.T()).Assert(res.Stdout, `{
		"address": "24:0A:C4:00:11:22",
		"selected": {"handle": 65537, "name": "Serial Port", "protocol": "RFCOMM", "port": 1, "service_classes": ["1101"]},
		"services": [
			{"handle": 65536, "name": "PnP", "protocol": "L2CAP", "port": 1, "service_classes": ["1200"]},
			{"handle": 65538, "name": "Headset Gateway", "protocol": "RFCOMM", "port": 3, "service_classes": ["1112"]},
			{"handle": 65537, "name": "Serial Port", "protocol": "RFCOMM", "port": 1, "service_classes": ["1101"]},
			{"handle": 65539}
		]
	}`)
}

func (suite *ServicesCommandTestSuite) TestServicesWithoutRFCOMM() {
	suite.UseAdapter(testutils.NewAdapterBuilder().
		WithServices(testutils.DefaultTargetAddress,
			device.Service{Handle: 0x00010000, Name: "PnP", Protocol: device.ProtocolL2CAP, Port: 1},
		).
		Build())

	res := suite.ExecuteCommand("services", testutils.DefaultTargetAddress)

	suite.Equal(exitOK, res.Code, "a listing without a serial record is still a result")
	suite.Contains(res.Stdout, "PnP")
	suite.Contains(res.Stdout, "\nNo SPP/RFCOMM service found\n")
	suite.NotContains(res.Stdout, "*")
}

func (suite *ServicesCommandTestSuite) TestServicesErrors() {
	suite.Run("no records", func() {
		suite.UseAdapter(testutils.NewAdapterBuilder().Build())

		res := suite.ExecuteCommand("services", testutils.DefaultTargetAddress)

		suite.Equal(exitFailure, res.Code)
		suite.Contains(res.Stderr, "ERROR: no services found on device")
	})

	suite.Run("query failure", func() {
		suite.UseAdapter(testutils.NewAdapterBuilder().WithServicesError(errors.New("sdp: connection refused")).Build())

		res := suite.ExecuteCommand("services", testutils.DefaultTargetAddress)

		suite.Equal(exitFailure, res.Code)
		suite.Contains(res.Stderr, "ERROR: sdp: connection refused")
	})

	suite.Run("invalid address", func() {
		res := suite.ExecuteCommand("services", "robotspider")

		suite.Equal(exitFailure, res.Code)
		suite.Contains(res.Stderr, `invalid bluetooth address "robotspider"`)
	})

	suite.Run("missing address", func() {
		res := suite.ExecuteCommand("services")

		suite.Equal(exitFailure, res.Code)
		suite.Contains(res.Stderr, "accepts 1 arg(s), received 0")
	})
}

func TestServicesCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ServicesCommandTestSuite))
}
