package frame

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/cwpctl/internal/testutil/testlog"
)

func TestFrequencyRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, freq := range []int64{1, 2, 7000, math.MaxInt32 - 1, math.MaxInt32} {
		sc := NewFrequencyChange(freq)
		wire := sc.AppendWire(nil)
		if len(wire) != DownFieldLen {
			t.Fatalf("freq=%d wire length got=%d", freq, len(wire))
		}
		got, err := DecodeDown(wire)
		if err != nil {
			t.Fatalf("decode freq=%d: %v", freq, err)
		}
		if got.Kind != Frequency || got.Frequency() != freq {
			t.Fatalf("freq round trip got=%+v (%d) want=%d", got, got.Frequency(), freq)
		}
	}
}

func TestFrequencyMinInt32Widens(t *testing.T) {
	testlog.Start(t)
	got, err := DecodeDown([]byte{0x80, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frequency() != 1<<31 {
		t.Fatalf("min int32 frequency got=%d", got.Frequency())
	}
	if got := NewFrequencyChange(-(math.MinInt32 + 1)); got.Value != math.MinInt32+1 {
		t.Fatalf("boundary value got=%d", got.Value)
	}
}

func TestValidFrequency(t *testing.T) {
	testlog.Start(t)
	if ValidFrequency(0) || ValidFrequency(-1) || ValidFrequency(math.MaxInt32+1) {
		t.Fatalf("out of range frequency accepted")
	}
	if !ValidFrequency(1) || !ValidFrequency(math.MaxInt32) {
		t.Fatalf("boundary frequency rejected")
	}
}

func TestWireFieldsAreBigEndian(t *testing.T) {
	testlog.Start(t)
	var buf []byte
	buf = StateChange{Kind: DownToUp, Value: 0x7f8f9faf}.AppendWire(buf)
	buf = StateChange{Kind: UpToDown, Value: 0xfffe}.AppendWire(buf)
	want := []byte{0x7f, 0x8f, 0x9f, 0xaf, 0xff, 0xfe}
	if !bytes.Equal(buf, want) {
		t.Fatalf("wire got=%x want=%x", buf, want)
	}

	down, err := DecodeDown(buf)
	if err != nil || down.Kind != DownToUp || down.Value != 0x7f8f9faf {
		t.Fatalf("decode down got=%+v err=%v", down, err)
	}
	up, err := DecodeUp(buf[DownFieldLen:])
	if err != nil || up.Kind != UpToDown || up.Value != 0xfffe {
		t.Fatalf("decode up got=%+v err=%v", up, err)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeDown([]byte{0, 0, 1}); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if _, err := DecodeUp([]byte{0}); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestShiftMovesTimestampOnly(t *testing.T) {
	testlog.Start(t)
	up := StateChange{Kind: DownToUp, Value: 4, OutTime: 4}
	up.Shift(100)
	if up.Value != 104 || up.OutTime != 104 {
		t.Fatalf("down-to-up shift got=%+v", up)
	}
	down := StateChange{Kind: UpToDown, Value: 3, OutTime: 7}
	down.Shift(100)
	if down.Value != 3 || down.OutTime != 107 {
		t.Fatalf("up-to-down shift got=%+v", down)
	}
	if down.WireLen() != UpFieldLen || up.WireLen() != DownFieldLen {
		t.Fatalf("wire lengths up=%d down=%d", up.WireLen(), down.WireLen())
	}
}
