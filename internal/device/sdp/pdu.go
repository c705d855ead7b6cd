package sdp

import (
	"encoding/binary"
	"fmt"
)

// PDU identifiers.
const (
	pduErrorResponse                  = 0x01
	pduServiceSearchAttributeRequest  = 0x06
	pduServiceSearchAttributeResponse = 0x07
)

const (
	pduHeaderLen                 = 5
	maxContinuationLen           = 16
	defaultMaxAttributeByteCount = 0xffff

	allAttributesRange uint32 = 0x0000ffff
)

// ErrorCode is the status carried by an SDP_ErrorResponse.
type ErrorCode uint16

const (
	ErrInvalidVersion           ErrorCode = 0x0001
	ErrInvalidRecordHandle      ErrorCode = 0x0002
	ErrInvalidSyntax            ErrorCode = 0x0003
	ErrInvalidPDUSize           ErrorCode = 0x0004
	ErrInvalidContinuationState ErrorCode = 0x0005
	ErrInsufficientResources    ErrorCode = 0x0006
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidVersion:
		return "invalid SDP version"
	case ErrInvalidRecordHandle:
		return "invalid service record handle"
	case ErrInvalidSyntax:
		return "invalid request syntax"
	case ErrInvalidPDUSize:
		return "invalid PDU size"
	case ErrInvalidContinuationState:
		return "invalid continuation state"
	case ErrInsufficientResources:
		return "insufficient resources"
	default:
		return fmt.Sprintf("error 0x%04x", uint16(c))
	}
}

// ResponseError is returned when the server answers with an error PDU.
type ResponseError struct {
	Code ErrorCode
}

func (e *ResponseError) Error() string {
	return "sdp: " + e.Code.String()
}

type pdu struct {
	id     uint8
	tid    uint16
	params []byte
}

func (p pdu) marshal() []byte {
	b := make([]byte, 0, pduHeaderLen+len(p.params))
	b = append(b, p.id)
	b = binary.BigEndian.AppendUint16(b, p.tid)
	b = binary.BigEndian.AppendUint16(b, uint16(len(p.params)))
	return append(b, p.params...)
}

func parsePDU(b []byte) (pdu, error) {
	if len(b) < pduHeaderLen {
		return pdu{}, fmt.Errorf("sdp: short PDU (%d bytes)", len(b))
	}
	p := pdu{
		id:  b[0],
		tid: binary.BigEndian.Uint16(b[1:3]),
	}
	plen := int(binary.BigEndian.Uint16(b[3:5]))
	if len(b)-pduHeaderLen < plen {
		return pdu{}, fmt.Errorf("sdp: PDU declares %d parameter bytes, got %d", plen, len(b)-pduHeaderLen)
	}
	p.params = b[pduHeaderLen : pduHeaderLen+plen]
	return p, nil
}

// searchAttributeParams builds the parameters of a ServiceSearchAttribute
// request.
func searchAttributeParams(pattern []Element, maxBytes uint16, cont []byte) ([]byte, error) {
	params, err := AppendElement(nil, Sequence(pattern...))
	if err != nil {
		return nil, err
	}
	params = binary.BigEndian.AppendUint16(params, maxBytes)
	params, err = AppendElement(params, Sequence(Uint32(allAttributesRange)))
	if err != nil {
		return nil, err
	}
	params = append(params, byte(len(cont)))
	return append(params, cont...), nil
}

// parseSearchAttributeResponse splits a response into the attribute list
// fragment and the continuation state.
func parseSearchAttributeResponse(params []byte) (fragment, cont []byte, err error) {
	if len(params) < 2 {
		return nil, nil, fmt.Errorf("sdp: short response")
	}
	n := int(binary.BigEndian.Uint16(params))
	rest := params[2:]
	if len(rest) < n+1 {
		return nil, nil, fmt.Errorf("sdp: response declares %d attribute bytes, got %d", n, len(rest))
	}
	fragment = rest[:n]
	rest = rest[n:]

	clen := int(rest[0])
	if clen > maxContinuationLen || len(rest)-1 < clen {
		return nil, nil, fmt.Errorf("sdp: bad continuation state length %d", clen)
	}
	return fragment, rest[1 : 1+clen], nil
}

func parseErrorResponse(params []byte) error {
	if len(params) < 2 {
		return &ResponseError{}
	}
	return &ResponseError{Code: ErrorCode(binary.BigEndian.Uint16(params))}
}
