package cw

import (
	"strings"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/wave"
)

// Widths are in dot units.
const (
	shortWidth     = 1.0
	longWidth      = shortWidth * 3
	wordBreakWidth = shortWidth * 7

	shortJitter     = 0.5
	longJitter      = 0.3
	wordBreakJitter = 0.2

	// MaxAdaptionWidth bounds a plausible dot length in milliseconds.
	MaxAdaptionWidth = 1000.0
	// MaxDetectionSample bounds the wave window used for width detection.
	MaxDetectionSample = 24

	defaultFlushWidth = 250.0
)

var (
	endOfContactBits = morse.PatternFor(morse.EndOfContact)
	stopBits         = morse.CharBreak.Append(morse.EndMessage)
)

// Decoder converts queued waves into morse bits while adapting to the
// sender's unknown dot length. A zero width means no estimate yet.
type Decoder struct {
	now         func() time.Time
	width       float64
	bits        strings.Builder
	lastPending int64
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Width is the current dot estimate in milliseconds, zero when unknown.
func (d *Decoder) Width() float64 {
	return d.width
}

// Pending reports whether bits are collected but not returned yet.
func (d *Decoder) Pending() bool {
	return d.bits.Len() > 0
}

// Reset forgets the width estimate and any pending bits.
func (d *Decoder) Reset() {
	d.width = 0
	d.bits.Reset()
	d.lastPending = 0
}

// FlushTimeout is how long pending bits may wait for more waves.
func (d *Decoder) FlushTimeout() time.Duration {
	width := d.width
	if width <= 0 {
		width = defaultFlushWidth
	}
	return time.Duration(width*(wordBreakWidth+1)) * time.Millisecond
}

// TryDecode consumes waves from q and returns bits once a character, word or
// message boundary has been seen. ok is false when more waves are needed.
// force accepts a width estimate that failed the sanity check.
func (d *Decoder) TryDecode(q *wave.Queue, force bool) (morse.BitString, bool) {
	for {
		if !q.ReadReady() {
			return morse.BitString{}, false
		}

		readapted := false
		if d.width <= 0 {
			for {
				d.width = detectSignalWidth(q.Waves(), -1, force)
				readapted = true
				if d.width <= 0 {
					if !force {
						return morse.BitString{}, false
					}
					d.width = 1
				}
				if d.width <= MaxAdaptionWidth {
					break
				}
				q.Discard(1)
			}
		}

		waves := q.Waves()
		i := 0
		for ; i < len(waves); i++ {
			w := waves[i]
			if w.Duration == 0 {
				continue
			}
			if d.bits.Len() == 0 && w.Direction == wave.Down {
				continue
			}
			units := float64(w.Duration) / d.width

			if units <= shortWidth*(1-shortJitter) {
				break
			}
			if units <= shortWidth*(1+shortJitter) {
				if w.Direction == wave.Down {
					d.bits.WriteByte('0')
				} else {
					d.bits.WriteByte('1')
				}
				d.lastPending = d.now().UnixMilli()
				if w.Direction == wave.Up && d.endsWith(endOfContactBits) {
					d.width = 0
					d.bits.WriteString(morse.CharBreak.String())
					return d.complete(q, i+1), true
				}
				continue
			}

			if units <= longWidth*(1-longJitter) {
				break
			}
			if units <= longWidth*(1+longJitter) {
				if w.Direction == wave.Down {
					d.bits.WriteString("000")
					return d.complete(q, i+1), true
				}
				d.bits.WriteString("111")
				d.lastPending = d.now().UnixMilli()
				if d.endsWith(endOfContactBits) {
					d.width = 0
					d.bits.WriteString(morse.CharBreak.String())
					return d.complete(q, i+1), true
				}
				continue
			}

			if w.Direction != wave.Down {
				break
			}
			if units <= wordBreakWidth*(1-wordBreakJitter) {
				break
			}
			if units <= wordBreakWidth*(1+wordBreakJitter) {
				d.bits.WriteString(morse.WordBreak.String())
				return d.complete(q, i+1), true
			}
			// sender went silent mid message
			d.bits.WriteString(stopBits.String())
			d.width = 0
			return d.complete(q, i+1), true
		}

		if i >= len(waves) {
			q.DropAll()
			return morse.BitString{}, false
		}

		// width no longer matches the input
		q.Discard(i)
		d.width = 0
		if d.bits.Len() > 0 {
			d.bits.WriteString(stopBits.String())
			return d.complete(q, 0), true
		}
		if readapted && i == 0 {
			q.Discard(1)
		}
	}
}

// FlushStalled returns pending bits terminated with the stop sentinel once
// they are older than a word break, or immediately when force is set. Short
// fresh runs are kept since they cannot be decoded meaningfully yet.
func (d *Decoder) FlushStalled(force bool) (morse.BitString, bool) {
	if d.bits.Len() == 0 {
		return morse.BitString{}, false
	}
	if !force {
		if d.lastPending == 0 {
			return morse.BitString{}, false
		}
		deadline := d.lastPending + int64(wordBreakWidth*d.width)
		if deadline >= d.now().UnixMilli() && d.bits.Len() <= morse.LongestPattern() {
			return morse.BitString{}, false
		}
	}
	d.bits.WriteString(stopBits.String())
	return d.complete(nil, 0), true
}

func (d *Decoder) complete(q *wave.Queue, consumed int) morse.BitString {
	out := morse.NewBitString(d.bits.String())
	if q != nil {
		q.Discard(consumed)
	}
	d.bits.Reset()
	d.lastPending = 0
	return out
}

func (d *Decoder) endsWith(suffix morse.BitString) bool {
	return strings.HasSuffix(d.bits.String(), suffix.String())
}
