package device

import (
	"fmt"
	"strings"
)

// Protocol is the transport a service record is reachable over.
type Protocol string

const (
	ProtocolRFCOMM Protocol = "RFCOMM"
	ProtocolL2CAP  Protocol = "L2CAP"
)

// Service is a single SDP service record, flattened to the fields used for
// selecting and connecting to a service.
type Service struct {
	Handle         uint32   `json:"handle"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Protocol       Protocol `json:"protocol,omitempty"`
	Port           uint16   `json:"port,omitempty"` // RFCOMM channel or L2CAP PSM
	ServiceClasses []string `json:"service_classes,omitempty"`
	Profiles       []string `json:"profiles,omitempty"`
}

// DisplayName returns the advertised service name, or "Unknown".
func (s Service) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return "Unknown"
}

// IsRFCOMM reports whether the record is carried over RFCOMM.
func (s Service) IsRFCOMM() bool {
	return s.Protocol == ProtocolRFCOMM
}

// IsSerial reports whether the record identifies itself as a serial port,
// by name or by the SerialPort service class.
func (s Service) IsSerial() bool {
	if strings.Contains(s.Name, "Serial") {
		return true
	}
	for _, class := range s.ServiceClasses {
		if NormalizeUUID(class) == SerialPortUUID {
			return true
		}
	}
	return false
}

// Channel returns the RFCOMM channel of the record.
func (s Service) Channel() (uint8, error) {
	if !s.IsRFCOMM() {
		return 0, fmt.Errorf("service %q is not carried over RFCOMM", s.DisplayName())
	}
	if s.Port == 0 || s.Port > 30 {
		return 0, fmt.Errorf("service %q has invalid RFCOMM channel %d", s.DisplayName(), s.Port)
	}
	return uint8(s.Port), nil
}

// MatchKind tells how SelectSerialService picked its result.
type MatchKind int

const (
	// MatchSerial is an RFCOMM record explicitly identified as a serial port.
	MatchSerial MatchKind = iota
	// MatchFirstRFCOMM is the first RFCOMM record, used when no record is
	// explicitly identified as serial.
	MatchFirstRFCOMM
)

// SelectSerialService picks the service to connect to: the first serial
// RFCOMM record, else the first RFCOMM record. It returns a NotFoundError
// when the list holds no RFCOMM record at all.
func SelectSerialService(services []Service) (Service, MatchKind, error) {
	for _, svc := range services {
		if svc.IsRFCOMM() && svc.IsSerial() {
			return svc, MatchSerial, nil
		}
	}
	for _, svc := range services {
		if svc.IsRFCOMM() {
			return svc, MatchFirstRFCOMM, nil
		}
	}
	return Service{}, MatchSerial, &NotFoundError{Resource: "SPP/RFCOMM service"}
}
