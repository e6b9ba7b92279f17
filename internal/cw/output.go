package cw

import (
	"math/rand"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const (
	// OutputBufferSize bounds the encoded bytes waiting for the socket.
	OutputBufferSize = 128
	// ManualUpRenewal splits long manual up keying. The up duration field is
	// 16 bits wide, about 65 seconds.
	ManualUpRenewal = 55 * time.Second
)

// OutputHandler is told about each event as it enters the output buffer.
type OutputHandler interface {
	FrequencyChanged(freq int64)
	StateChanged(up bool, value int32)
}

// Output schedules outgoing state changes and encodes them once due.
// It is owned by a single goroutine.
type Output struct {
	queue   []frame.StateChange
	encoder *Encoder
	rng     *rand.Rand
	now     func() time.Time
	start   time.Time
	buf     []byte

	manualUp      bool
	manualUpStart time.Time
	delayedFreq   int64
}

func NewOutput(start time.Time, timing Timing, rng *rand.Rand, now func() time.Time) *Output {
	if now == nil {
		now = time.Now
	}
	return &Output{
		encoder:     NewEncoder(timing, rng),
		rng:         rng,
		now:         now,
		start:       start,
		buf:         make([]byte, 0, OutputBufferSize),
		delayedFreq: -1,
	}
}

// SetTiming changes the keying speed of later morse sends.
func (o *Output) SetTiming(timing Timing) {
	o.encoder = NewEncoder(timing, o.rng)
}

// SendMorse schedules bits starting now. It is refused while a send is in
// flight or the key is held up manually.
func (o *Output) SendMorse(bits morse.BitString) bool {
	if len(o.queue) > 0 || o.manualUp {
		return false
	}
	events := o.encoder.Encode(bits)
	offset := o.connTime(o.now())
	for i := range events {
		events[i].Shift(offset)
	}
	o.queue = append(o.queue, events...)
	log.Debug().Msgf("cw.Output morse bits=%d events=%d at=%d", bits.Len(), len(events), offset)
	return true
}

// SendFrequency schedules a frequency change. Out of range values are
// ignored and a change while manually up waits for the key to go down.
func (o *Output) SendFrequency(freq int64) bool {
	if !frame.ValidFrequency(freq) {
		return false
	}
	if o.manualUp {
		o.delayedFreq = freq
		return true
	}
	o.queue = append(o.queue, frame.NewFrequencyChange(freq))
	o.delayedFreq = -1
	return true
}

func (o *Output) SendUp() bool {
	return o.sendState(true)
}

func (o *Output) SendDown() bool {
	return o.sendState(false)
}

func (o *Output) sendState(up bool) bool {
	if len(o.queue) > 0 && !o.manualUp {
		return false
	}
	if up == o.manualUp {
		return true
	}

	now := o.now()
	ts := o.connTime(now)
	if !up {
		o.queue = append(o.queue, frame.StateChange{
			Kind:    frame.UpToDown,
			Value:   int32(now.Sub(o.manualUpStart).Milliseconds()),
			OutTime: ts,
		})
		o.manualUp = false
		if o.delayedFreq > 0 {
			o.SendFrequency(o.delayedFreq)
		}
		return true
	}

	o.manualUpStart = now
	o.queue = append(o.queue, frame.StateChange{Kind: frame.DownToUp, Value: int32(ts), OutTime: ts})
	o.manualUp = true
	return true
}

func (o *Output) renewUp() {
	now := o.now()
	ts := o.connTime(now)
	o.queue = append(o.queue,
		frame.StateChange{Kind: frame.UpToDown, Value: int32(now.Sub(o.manualUpStart).Milliseconds()), OutTime: ts},
		frame.StateChange{Kind: frame.DownToUp, Value: int32(ts), OutTime: ts},
	)
	o.manualUpStart = now
	log.Debug().Msgf("cw.Output renew manual up at=%d", ts)
}

// Process moves due events into the output buffer. An event that does not
// fit stays queued. It reports whether anything was added.
func (o *Output) Process(h OutputHandler) bool {
	if o.manualUp && o.renewWait() == 0 {
		o.renewUp()
	}

	added := false
	for o.queueWait() == 0 {
		sc := o.queue[0]
		if len(o.buf)+sc.WireLen() > OutputBufferSize {
			break
		}
		o.buf = sc.AppendWire(o.buf)
		o.queue = o.queue[1:]

		switch sc.Kind {
		case frame.DownToUp:
			h.StateChanged(true, sc.Value)
		case frame.UpToDown:
			h.StateChanged(false, sc.Value)
		case frame.Frequency:
			h.FrequencyChanged(sc.Frequency())
		}
		added = true
	}
	return added
}

// Pending returns the encoded bytes waiting to be written.
func (o *Output) Pending() []byte {
	return o.buf
}

// Consume drops n written bytes from the front of the buffer.
func (o *Output) Consume(n int) {
	if n >= len(o.buf) {
		o.buf = o.buf[:0]
		return
	}
	o.buf = append(o.buf[:0], o.buf[n:]...)
}

func (o *Output) QueueLen() int {
	return len(o.queue)
}

// Busy reports a morse send in flight.
func (o *Output) Busy() bool {
	return len(o.queue) > 0 && !o.manualUp
}

// ManualUp reports whether the key is held up manually.
func (o *Output) ManualUp() bool {
	return o.manualUp
}

// Idle reports that every queued event has been encoded and written.
func (o *Output) Idle() bool {
	return len(o.queue) == 0 && len(o.buf) == 0
}

// NextWork is the time until a queued event or a manual up renewal is due.
func (o *Output) NextWork() time.Duration {
	next := NoWork
	if wait := o.queueWait(); wait >= 0 {
		next = time.Duration(wait) * time.Millisecond
	}
	if wait := o.renewWait(); wait >= 0 {
		if d := time.Duration(wait) * time.Millisecond; d < next {
			next = d
		}
	}
	return next
}

func (o *Output) queueWait() int64 {
	if len(o.queue) == 0 {
		return -1
	}
	wait := o.queue[0].OutTime - o.connTime(o.now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (o *Output) renewWait() int64 {
	if !o.manualUp {
		return -1
	}
	wait := o.manualUpStart.Add(ManualUpRenewal).Sub(o.now()).Milliseconds()
	if wait < 0 {
		return 0
	}
	return wait
}

func (o *Output) connTime(now time.Time) int64 {
	return now.Sub(o.start).Milliseconds()
}
