package cw

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/testutil/cwptest"
	"github.com/danmuck/cwpctl/internal/testutil/testlog"
)

type wireReader struct {
	t   *testing.T
	buf []byte
}

func (r *wireReader) int32() int32 {
	r.t.Helper()
	if len(r.buf) < 4 {
		r.t.Fatalf("short wire buffer: %x", r.buf)
	}
	v := int32(binary.BigEndian.Uint32(r.buf))
	r.buf = r.buf[4:]
	return v
}

func (r *wireReader) uint16() uint16 {
	r.t.Helper()
	if len(r.buf) < 2 {
		r.t.Fatalf("short wire buffer: %x", r.buf)
	}
	v := binary.BigEndian.Uint16(r.buf)
	r.buf = r.buf[2:]
	return v
}

func TestOutputWritesDueMorse(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	out := NewOutput(clock.Now(), Timing{UnitWidth: 1}, nil, clock.Now)

	if !out.SendMorse(morse.NewBitString("1")) {
		t.Fatalf("send refused")
	}
	clock.Advance(11 * time.Millisecond)
	if !out.Process(&cwptest.Recorder{}) {
		t.Fatalf("nothing written")
	}
	r := &wireReader{t: t, buf: out.Pending()}
	if ts := r.int32(); ts >= 10 {
		t.Fatalf("timestamp got=%d", ts)
	}
	if d := r.uint16(); d != 1 {
		t.Fatalf("duration got=%d", d)
	}

	clock = cwptest.NewClock()
	out = NewOutput(clock.Now(), Timing{UnitWidth: 1}, nil, clock.Now)
	out.SendMorse(morse.NewBitString("1110101111"))
	clock.Advance(20 * time.Millisecond)
	rec := &cwptest.Recorder{}
	out.Process(rec)

	r = &wireReader{t: t, buf: out.Pending()}
	first := r.int32()
	if first >= 10 || r.uint16() != 3 {
		t.Fatalf("first wave mismatch")
	}
	if r.int32()-first != 4 || r.uint16() != 1 {
		t.Fatalf("second wave mismatch")
	}
	if r.int32()-first != 6 || r.uint16() != 4 {
		t.Fatalf("third wave mismatch")
	}
	if rec.StateCount() != 6 || out.QueueLen() != 0 {
		t.Fatalf("states=%d queue=%d", rec.StateCount(), out.QueueLen())
	}
}

func TestOutputHoldsEventsUntilDue(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	out := NewOutput(clock.Now(), Timing{UnitWidth: 10}, nil, clock.Now)
	out.SendMorse(morse.NewBitString("101"))

	out.Process(&cwptest.Recorder{})
	if len(out.Pending()) != 4 || out.QueueLen() != 3 {
		t.Fatalf("pending=%d queue=%d", len(out.Pending()), out.QueueLen())
	}
	if next := out.NextWork(); next != 10*time.Millisecond {
		t.Fatalf("next work got=%v", next)
	}
	if !out.Busy() || out.SendMorse(morse.NewBitString("1")) {
		t.Fatalf("second send accepted while sending")
	}
	if out.SendUp() {
		t.Fatalf("manual keying accepted while sending")
	}

	out.Consume(4)
	clock.Advance(30 * time.Millisecond)
	out.Process(&cwptest.Recorder{})
	if out.QueueLen() != 0 || len(out.Pending()) != 8 {
		t.Fatalf("after due pending=%d queue=%d", len(out.Pending()), out.QueueLen())
	}
	if out.NextWork() != NoWork {
		t.Fatalf("idle output has work")
	}
}

func TestOutputBufferIsBounded(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	out := NewOutput(clock.Now(), Timing{UnitWidth: 1}, nil, clock.Now)
	out.SendMorse(morse.NewBitString(strings.Repeat("10", 32) + "1"))
	clock.Advance(time.Second)

	out.Process(&cwptest.Recorder{})
	if len(out.Pending()) > OutputBufferSize || out.QueueLen() == 0 {
		t.Fatalf("pending=%d queue=%d", len(out.Pending()), out.QueueLen())
	}
	total := 0
	for i := 0; i < 10 && !out.Idle(); i++ {
		total += len(out.Pending())
		out.Consume(len(out.Pending()))
		out.Process(&cwptest.Recorder{})
	}
	// 33 ups and 33 downs
	if !out.Idle() || total != 33*4+33*2 {
		t.Fatalf("drained total=%d idle=%v", total, out.Idle())
	}
}

func TestOutputManualKeying(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	rec := &cwptest.Recorder{}
	out := NewOutput(clock.Now(), Timing{UnitWidth: 1}, nil, clock.Now)

	if !out.SendUp() || !out.ManualUp() {
		t.Fatalf("manual up refused")
	}
	if out.SendMorse(morse.NewBitString("1")) {
		t.Fatalf("morse accepted during manual up")
	}
	if !out.SendFrequency(7) || out.QueueLen() != 1 {
		t.Fatalf("frequency not deferred, queue=%d", out.QueueLen())
	}
	out.Process(rec)
	out.Consume(len(out.Pending()))

	clock.Advance(56 * time.Second)
	out.Process(rec)
	r := &wireReader{t: t, buf: out.Pending()}
	if d := r.uint16(); d != 56000 {
		t.Fatalf("renewal duration got=%d", d)
	}
	if ts := r.int32(); ts != 56000 {
		t.Fatalf("renewal timestamp got=%d", ts)
	}
	out.Consume(len(out.Pending()))

	clock.Advance(time.Second)
	if !out.SendDown() || out.ManualUp() {
		t.Fatalf("manual down refused")
	}
	out.Process(rec)
	r = &wireReader{t: t, buf: out.Pending()}
	if d := r.uint16(); d != 1000 {
		t.Fatalf("down duration got=%d", d)
	}
	if v := r.int32(); v != -7 {
		t.Fatalf("deferred frequency got=%d", v)
	}
	if len(rec.Frequencies) != 1 || rec.Frequencies[0] != 7 {
		t.Fatalf("frequency notifications got=%v", rec.Frequencies)
	}
	if rec.StateCount() != 4 {
		t.Fatalf("state notifications got=%v", rec.States)
	}
}

func TestOutputIgnoresInvalidFrequency(t *testing.T) {
	testlog.Start(t)
	clock := cwptest.NewClock()
	out := NewOutput(clock.Now(), Timing{UnitWidth: 1}, nil, clock.Now)
	if out.SendFrequency(0) || out.SendFrequency(1<<31) || out.QueueLen() != 0 {
		t.Fatalf("invalid frequency queued")
	}
	if !out.SendDown() || out.QueueLen() != 0 {
		t.Fatalf("down while down should be a no-op")
	}
}
