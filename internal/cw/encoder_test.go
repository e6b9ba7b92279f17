package cw

import (
	"math/rand"
	"testing"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/danmuck/cwpctl/internal/testutil/testlog"
)

func TestEncoderEmitsEdges(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		bits  string
		width int
		kinds []frame.Kind
		vals  []int32
	}{
		{"10111", 1, []frame.Kind{frame.DownToUp, frame.UpToDown, frame.DownToUp, frame.UpToDown}, []int32{0, 1, 2, 3}},
		{"010", 2, []frame.Kind{frame.DownToUp, frame.UpToDown}, []int32{2, 2}},
		{"11111000001", 2, []frame.Kind{frame.DownToUp, frame.UpToDown, frame.DownToUp, frame.UpToDown}, []int32{0, 10, 20, 2}},
		{"000", 5, nil, nil},
	}
	for _, tc := range cases {
		got := NewEncoder(Timing{UnitWidth: tc.width}, nil).Encode(morse.NewBitString(tc.bits))
		if len(got) != len(tc.kinds) {
			t.Fatalf("encode(%q) events got=%d want=%d", tc.bits, len(got), len(tc.kinds))
		}
		for i := range got {
			if got[i].Kind != tc.kinds[i] || got[i].Value != tc.vals[i] {
				t.Fatalf("encode(%q)[%d] got=%v/%d want=%v/%d", tc.bits, i, got[i].Kind, got[i].Value, tc.kinds[i], tc.vals[i])
			}
		}
	}
}

func TestEncoderOutTimesFollowTimestamps(t *testing.T) {
	testlog.Start(t)
	events := NewEncoder(Timing{UnitWidth: 3}, nil).Encode(morse.NewBitString("1110101"))
	want := []int64{0, 9, 12, 15, 18, 21}
	if len(events) != len(want) {
		t.Fatalf("events got=%d", len(events))
	}
	for i, sc := range events {
		if sc.OutTime != want[i] {
			t.Fatalf("out time [%d] got=%d want=%d", i, sc.OutTime, want[i])
		}
	}
}

func TestEncoderJitterStaysInBounds(t *testing.T) {
	testlog.Start(t)
	enc := NewEncoder(Timing{UnitWidth: 100, JitterThreshold: 50, Jitter: 0.1}, rand.New(rand.NewSource(7)))
	events := enc.Encode(morse.NewBitString("1010101010101010101"))
	for _, sc := range events {
		if sc.Kind == frame.UpToDown && (sc.Value < 90 || sc.Value > 110) {
			t.Fatalf("jittered duration out of bounds: %d", sc.Value)
		}
	}

	plain := NewEncoder(Timing{UnitWidth: 10, JitterThreshold: 50, Jitter: 0.1}, rand.New(rand.NewSource(7)))
	for _, sc := range plain.Encode(morse.NewBitString("10101")) {
		if sc.Kind == frame.UpToDown && sc.Value != 10 {
			t.Fatalf("jitter applied below threshold: %d", sc.Value)
		}
	}
}

func TestEncoderClampsUnitWidth(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		width int
		want  int
	}{
		{0, 1},
		{-5, 1},
		{50, 50},
		{MaxAdaptionWidth, MaxAdaptionWidth},
		{25000, MaxAdaptionWidth},
	}
	for _, tc := range cases {
		if got := NewEncoder(Timing{UnitWidth: tc.width}, nil).Timing().UnitWidth; got != tc.want {
			t.Fatalf("width %d got=%d want=%d", tc.width, got, tc.want)
		}
	}

	events := NewEncoder(Timing{UnitWidth: 25000}, nil).Encode(morse.NewBitString("111"))
	if len(events) != 2 || events[1].Value != 3*MaxAdaptionWidth {
		t.Fatalf("dash events got=%v", events)
	}
	wire := events[1].AppendWire(nil)
	sc, err := frame.DecodeUp(wire)
	if err != nil || sc.Value != events[1].Value {
		t.Fatalf("dash on wire got=%d want=%d err=%v", sc.Value, events[1].Value, err)
	}
}
