package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// DownFieldLen is the width of a field read or written in the Down phase.
	DownFieldLen = 4
	// UpFieldLen is the width of a field read or written in the Up phase.
	UpFieldLen = 2

	MinFrequency int64 = 1
	MaxFrequency int64 = math.MaxInt32
)

var (
	ErrShortBuffer = errors.New("frame: short buffer")
	ErrFrequency   = errors.New("frame: frequency out of range")
)

type Kind int8

const (
	DownToUp  Kind = 1
	UpToDown  Kind = -1
	Frequency Kind = 2
)

func (k Kind) String() string {
	switch k {
	case DownToUp:
		return "down-to-up"
	case UpToDown:
		return "up-to-down"
	case Frequency:
		return "frequency"
	default:
		return fmt.Sprintf("kind(%d)", int8(k))
	}
}

// StateChange is one wire event. Value is a timestamp for DownToUp, a
// duration for UpToDown and the negated frequency for Frequency. OutTime is
// the connection time at which an outgoing event is due.
type StateChange struct {
	Kind    Kind
	Value   int32
	OutTime int64
}

// NewFrequencyChange builds a frequency event that is due immediately.
func NewFrequencyChange(freq int64) StateChange {
	return StateChange{Kind: Frequency, Value: int32(-freq)}
}

// Frequency widens before negating so -MinInt32 does not overflow.
func (s StateChange) Frequency() int64 {
	return -int64(s.Value)
}

// ValidFrequency reports whether freq can be carried on the wire.
func ValidFrequency(freq int64) bool {
	return freq >= MinFrequency && freq <= MaxFrequency
}

// WireLen is the encoded field width of s.
func (s StateChange) WireLen() int {
	if s.Kind == UpToDown {
		return UpFieldLen
	}
	return DownFieldLen
}

// AppendWire appends the big-endian wire field of s to dst.
func (s StateChange) AppendWire(dst []byte) []byte {
	if s.Kind == UpToDown {
		return binary.BigEndian.AppendUint16(dst, uint16(s.Value))
	}
	return binary.BigEndian.AppendUint32(dst, uint32(s.Value))
}

// Shift moves s by ms of connection time. DownToUp timestamps move with it.
func (s *StateChange) Shift(ms int64) {
	if s.Kind == DownToUp {
		s.Value += int32(ms)
	}
	s.OutTime += ms
}

// DecodeDown parses a Down phase field: a DownToUp timestamp when
// non-negative, otherwise a frequency change.
func DecodeDown(b []byte) (StateChange, error) {
	if len(b) < DownFieldLen {
		return StateChange{}, ErrShortBuffer
	}
	v := int32(binary.BigEndian.Uint32(b[:DownFieldLen]))
	if v < 0 {
		return StateChange{Kind: Frequency, Value: v}, nil
	}
	return StateChange{Kind: DownToUp, Value: v}, nil
}

// DecodeUp parses an Up phase field holding an unsigned up duration.
func DecodeUp(b []byte) (StateChange, error) {
	if len(b) < UpFieldLen {
		return StateChange{}, ErrShortBuffer
	}
	return StateChange{Kind: UpToDown, Value: int32(binary.BigEndian.Uint16(b[:UpFieldLen]))}, nil
}
