package cw

import (
	"testing"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/danmuck/cwpctl/internal/protocol/wave"
	"github.com/danmuck/cwpctl/internal/testutil/cwptest"
	"github.com/danmuck/cwpctl/internal/testutil/testlog"
)

func queueFromBits(t *testing.T, bits string, width int) *wave.Queue {
	t.Helper()
	q := wave.NewQueue()
	for _, sc := range NewEncoder(Timing{UnitWidth: width}, nil).Encode(morse.NewBitString(bits)) {
		var err error
		switch sc.Kind {
		case frame.DownToUp:
			err = q.PushUp(int64(sc.Value))
		case frame.UpToDown:
			err = q.PushDown(uint32(sc.Value))
		}
		if err != nil {
			t.Fatalf("push %v: %v", sc.Kind, err)
		}
	}
	return q
}

func pattern(r rune) string {
	return morse.PatternFor(r).String()
}

func TestDetectSignalWidth(t *testing.T) {
	testlog.Start(t)
	samples := []wave.Wave{
		{Direction: wave.Up, Duration: 10}, {Direction: wave.Down, Duration: 10},
		{Direction: wave.Up, Duration: 10}, {Direction: wave.Down, Duration: 10},
		{Direction: wave.Up, Duration: 10}, {Direction: wave.Down, Duration: 30},
		{Direction: wave.Up, Duration: 30},
	}
	if got := detectSignalWidth(samples, -1, false); got != 10 {
		t.Fatalf("width got=%v want=10", got)
	}
}

func TestDetectSignalWidthNeedsLongWave(t *testing.T) {
	testlog.Start(t)
	samples := []wave.Wave{
		{Direction: wave.Down, Duration: 10},
		{Direction: wave.Up, Duration: 10}, {Direction: wave.Down, Duration: 10},
		{Direction: wave.Up, Duration: 10},
	}
	if got := detectSignalWidth(samples, -1, false); got != 0 {
		t.Fatalf("uniform samples should not be trusted, got=%v", got)
	}
	if got := detectSignalWidth(samples, -1, true); got != 10 {
		t.Fatalf("forced width got=%v want=10", got)
	}
	if got := detectSignalWidth(nil, -1, true); got != 0 {
		t.Fatalf("empty samples got=%v", got)
	}
}

func TestDecoderReturnsCharactersAndEndOfContact(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	q := queueFromBits(t, pattern(morse.StartOfMessage)+"000"+pattern(morse.EndOfContact), 10)
	dec := NewDecoder(clock.Now)

	bits, ok := dec.TryDecode(q, false)
	if !ok || bits.String() != pattern(morse.StartOfMessage)+"000" {
		t.Fatalf("first character got=%q ok=%v", bits, ok)
	}
	if dec.Width() != 10 {
		t.Fatalf("width got=%v", dec.Width())
	}

	bits, ok = dec.TryDecode(q, false)
	if !ok || bits.String() != pattern(morse.EndOfContact)+"000" {
		t.Fatalf("end of contact got=%q ok=%v", bits, ok)
	}
	if dec.Width() != 0 || q.Len() != 0 || dec.Pending() {
		t.Fatalf("end of contact should reset width=%v len=%d pending=%v", dec.Width(), q.Len(), dec.Pending())
	}
}

func TestDecoderStopsOnSilence(t *testing.T) {
	testlog.Start(t)
	q := queueFromBits(t, "10111"+morse.Zeros(20).String()+"1", 10)
	dec := NewDecoder(cwptest.NewClock().Now)

	bits, ok := dec.TryDecode(q, false)
	want := morse.NewBitString("10111").Append(morse.EndSequence)
	if !ok || !bits.Equal(want) {
		t.Fatalf("silence got=%q ok=%v", bits, ok)
	}
	if dec.Width() != 0 || q.Len() != 1 {
		t.Fatalf("after silence width=%v len=%d", dec.Width(), q.Len())
	}
}

func TestDecoderReadaptsOnWidthMismatch(t *testing.T) {
	testlog.Start(t)
	q := wave.NewQueue()
	// dot, dash, then an up far longer than any dash at width 10
	for _, step := range []struct {
		up   int64
		down uint32
	}{{0, 10}, {20, 30}, {60, 300}} {
		if err := q.PushUp(step.up); err != nil {
			t.Fatalf("push up: %v", err)
		}
		if err := q.PushDown(step.down); err != nil {
			t.Fatalf("push down: %v", err)
		}
	}
	dec := NewDecoder(cwptest.NewClock().Now)
	dec.width = 10

	bits, ok := dec.TryDecode(q, false)
	want := morse.NewBitString("101110").Append(morse.EndSequence)
	if !ok || !bits.Equal(want) {
		t.Fatalf("readapt got=%q ok=%v want=%q", bits, ok, want)
	}
	if dec.Width() != 0 || dec.Pending() {
		t.Fatalf("after readapt width=%v pending=%v", dec.Width(), dec.Pending())
	}
	if q.Len() != 1 || q.Waves()[0] != (wave.Wave{Direction: wave.Up, Duration: 300}) {
		t.Fatalf("mismatching wave should stay queued, got=%v", q.Waves())
	}
}

func TestDecoderFlushStalled(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	q := queueFromBits(t, "1110101", 10)
	dec := NewDecoder(clock.Now)

	if _, ok := dec.TryDecode(q, false); ok {
		t.Fatalf("incomplete character returned early")
	}
	if !dec.Pending() || dec.FlushTimeout() != 80*time.Millisecond {
		t.Fatalf("pending=%v timeout=%v", dec.Pending(), dec.FlushTimeout())
	}
	if _, ok := dec.FlushStalled(false); ok {
		t.Fatalf("fresh bits flushed")
	}

	clock.Advance(71 * time.Millisecond)
	bits, ok := dec.FlushStalled(false)
	want := morse.NewBitString("1110101").Append(morse.EndSequence)
	if !ok || !bits.Equal(want) {
		t.Fatalf("stalled flush got=%q ok=%v", bits, ok)
	}
	if dec.Pending() {
		t.Fatalf("bits left after flush")
	}
	if _, ok := dec.FlushStalled(true); ok {
		t.Fatalf("empty decoder flushed")
	}
}

func TestDecoderDropsImplausibleWidth(t *testing.T) {
	testlog.Start(t)
	q := wave.NewQueue()
	_ = q.PushUp(1)
	_ = q.PushDown(5000)
	_ = q.PushUp(10001)
	_ = q.PushDown(15000)
	dec := NewDecoder(cwptest.NewClock().Now)

	if _, ok := dec.TryDecode(q, false); ok {
		t.Fatalf("implausible width decoded")
	}
	if q.Len() != 2 {
		t.Fatalf("expected oldest waves dropped, len=%d", q.Len())
	}
	if dec.FlushTimeout() != 2*time.Second {
		t.Fatalf("default flush timeout got=%v", dec.FlushTimeout())
	}
}
