package sdp

import (
	"fmt"
	"strings"

	"github.com/srg/sppcheck/internal/device"
)

// Universal attribute IDs.
const (
	AttrServiceRecordHandle      uint16 = 0x0000
	AttrServiceClassIDList       uint16 = 0x0001
	AttrProtocolDescriptorList   uint16 = 0x0004
	AttrBluetoothProfileDescList uint16 = 0x0009
	// Text attributes are offsets from the primary language base 0x0100.
	AttrServiceName        uint16 = 0x0100
	AttrServiceDescription uint16 = 0x0101
	AttrProviderName       uint16 = 0x0102
)

// Record is one service record keyed by attribute ID.
type Record map[uint16]Element

// parseRecords decodes the concatenated attribute lists of a
// ServiceSearchAttribute transaction.
func parseRecords(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	top, n, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after attribute lists", ErrMalformed, len(data)-n)
	}
	if top.Type != TypeSequence {
		return nil, fmt.Errorf("%w: attribute lists are a %s", ErrMalformed, top.Type)
	}

	records := make([]Record, 0, len(top.Items))
	for i, list := range top.Items {
		if list.Type != TypeSequence || len(list.Items)%2 != 0 {
			return nil, fmt.Errorf("%w: record %d is not an attribute list", ErrMalformed, i)
		}
		rec := make(Record, len(list.Items)/2)
		for j := 0; j < len(list.Items); j += 2 {
			id := list.Items[j]
			if id.Type != TypeUint || id.Size != 2 {
				return nil, fmt.Errorf("%w: record %d attribute id is %s", ErrMalformed, i, id)
			}
			rec[uint16(id.Uint)] = list.Items[j+1]
		}
		records = append(records, rec)
	}
	return records, nil
}

// Service converts the record into the platform-neutral model.
func (r Record) Service() device.Service {
	svc := device.Service{
		Name:        r.text(AttrServiceName),
		Description: r.text(AttrServiceDescription),
		Provider:    r.text(AttrProviderName),
	}

	if h, ok := r[AttrServiceRecordHandle]; ok && h.Type == TypeUint {
		svc.Handle = uint32(h.Uint)
	}

	if classes, ok := r[AttrServiceClassIDList]; ok {
		for _, c := range classes.Items {
			if u := c.UUIDString(); u != "" {
				svc.ServiceClasses = append(svc.ServiceClasses, u)
			}
		}
	}

	if profiles, ok := r[AttrBluetoothProfileDescList]; ok {
		for _, p := range profiles.Items {
			if len(p.Items) == 0 {
				continue
			}
			if u := p.Items[0].UUIDString(); u != "" {
				svc.Profiles = append(svc.Profiles, u)
			}
		}
	}

	if pdl, ok := r[AttrProtocolDescriptorList]; ok {
		svc.Protocol, svc.Port = protocolAndPort(pdl)
	}

	return svc
}

func (r Record) text(id uint16) string {
	e, ok := r[id]
	if !ok || e.Type != TypeText {
		return ""
	}
	return strings.TrimRight(e.Text, "\x00")
}

// protocolAndPort walks a protocol descriptor list such as
// [[L2CAP], [RFCOMM, channel]]. RFCOMM wins over L2CAP; an alternative
// list uses its first member.
func protocolAndPort(pdl Element) (device.Protocol, uint16) {
	if pdl.Type == TypeAlternative {
		if len(pdl.Items) == 0 {
			return "", 0
		}
		pdl = pdl.Items[0]
	}

	var (
		proto device.Protocol
		port  uint16
	)
	for _, desc := range pdl.Items {
		if !desc.IsContainer() || len(desc.Items) == 0 || desc.Items[0].Type != TypeUUID {
			continue
		}
		id := desc.Items[0].UUIDString()
		params := desc.Items[1:]
		switch id {
		case device.RFCOMMUUID:
			proto, port = device.ProtocolRFCOMM, 0
			if len(params) > 0 && params[0].Type == TypeUint {
				port = uint16(params[0].Uint)
			}
			return proto, port
		case device.L2CAPUUID:
			proto = device.ProtocolL2CAP
			if len(params) > 0 && params[0].Type == TypeUint {
				port = uint16(params[0].Uint)
			}
		}
	}
	return proto, port
}
