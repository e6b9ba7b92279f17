package cw

import (
	"math"
	"math/rand"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
)

// Timing is the keying speed of one encoder.
type Timing struct {
	// UnitWidth is the dot length in milliseconds.
	UnitWidth int
	// Jitter is applied once UnitWidth reaches JitterThreshold. Values
	// outside (0, 0.5) disable it.
	JitterThreshold int
	Jitter          float64
}

// Encoder turns morse bits into timed state changes starting at time zero.
type Encoder struct {
	timing Timing
	rng    *rand.Rand
}

// NewEncoder clamps the unit width to 1..MaxAdaptionWidth ms. Wider dots
// could not be decoded and their dashes would overflow the 16-bit up field.
func NewEncoder(timing Timing, rng *rand.Rand) *Encoder {
	if timing.UnitWidth <= 0 {
		timing.UnitWidth = 1
	} else if timing.UnitWidth > MaxAdaptionWidth {
		timing.UnitWidth = MaxAdaptionWidth
	}
	return &Encoder{timing: timing, rng: rng}
}

func (e *Encoder) Timing() Timing {
	return e.timing
}

// Encode walks bits and emits a DownToUp at each rising edge and an
// UpToDown at each falling edge. A trailing up is closed.
func (e *Encoder) Encode(bits morse.BitString) []frame.StateChange {
	var (
		out       []frame.StateChange
		isUp      bool
		timestamp int64
		duration  int64
	)
	for i := 0; i < bits.Len(); i++ {
		if bits.Bit(i) {
			if !isUp {
				out = append(out, frame.StateChange{Kind: frame.DownToUp, Value: int32(timestamp), OutTime: timestamp})
				isUp = true
				duration = 0
			}
		} else if isUp {
			out = append(out, frame.StateChange{Kind: frame.UpToDown, Value: int32(duration), OutTime: timestamp})
			isUp = false
		}

		add := e.step()
		timestamp += add
		duration += add
	}
	if isUp {
		out = append(out, frame.StateChange{Kind: frame.UpToDown, Value: int32(duration), OutTime: timestamp})
	}
	return out
}

func (e *Encoder) step() int64 {
	width := e.timing.UnitWidth
	jitter := e.timing.Jitter
	if width < e.timing.JitterThreshold || jitter <= 0 || jitter >= 0.5 || e.rng == nil {
		return int64(width)
	}
	factor := 2*jitter*(e.rng.Float64()-0.5) + 1
	return int64(math.Round(float64(width) * factor))
}
