package killswitch

import (
	"encoding/binary"
	"fmt"
)

// Op is the operation of a kernel rfkill event.
type Op uint8

const (
	OpAdd Op = iota
	OpDel
	OpChange
	OpChangeAll
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDel:
		return "del"
	case OpChange:
		return "change"
	case OpChangeAll:
		return "change-all"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// RadioType is the rfkill switch type.
type RadioType uint8

const (
	TypeAll RadioType = iota
	TypeWLAN
	TypeBluetooth
)

// EventSize is the size of struct rfkill_event: idx u32, type, op, soft, hard u8.
const EventSize = 8

// Event is one record read from or written to the rfkill device.
type Event struct {
	Index uint32
	Type  RadioType
	Op    Op
	Soft  bool
	Hard  bool
}

// ParseEvent decodes a record. Records of any other size are rejected.
func ParseEvent(b []byte) (Event, error) {
	if len(b) != EventSize {
		return Event{}, fmt.Errorf("killswitch: malformed event: %d bytes, want %d", len(b), EventSize)
	}
	return Event{
		Index: binary.NativeEndian.Uint32(b[0:4]),
		Type:  RadioType(b[4]),
		Op:    Op(b[5]),
		Soft:  b[6] != 0,
		Hard:  b[7] != 0,
	}, nil
}

func (e Event) MarshalBinary() ([]byte, error) {
	b := make([]byte, EventSize)
	binary.NativeEndian.PutUint32(b[0:4], e.Index)
	b[4] = byte(e.Type)
	b[5] = byte(e.Op)
	b[6] = boolByte(e.Soft)
	b[7] = boolByte(e.Hard)
	return b, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
