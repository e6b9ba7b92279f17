package cw

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/danmuck/cwpctl/internal/protocol/wave"
	"github.com/rs/zerolog/log"
)

// NoWork is returned by NextWork when nothing is scheduled.
const NoWork = time.Duration(math.MaxInt64)

var ErrProtocol = errors.New("cw: protocol violation")

// InputHandler receives everything decoded from the peer.
type InputHandler interface {
	FrequencyChanged(freq int64)
	StateChanged(up bool, value int32)
	MorseReceived(bits morse.BitString)
}

// Input frames received bytes into waves and decodes them to morse bits.
// It is owned by a single goroutine.
type Input struct {
	queue   *wave.Queue
	decoder *Decoder
	latency latencyBuffer
	now     func() time.Time
	start   time.Time

	buf      []byte
	freq     int64
	lastWave int64
}

// NewInput creates an input for a connection that started at start. A zero
// maxBuffer delivers keying events without latency management.
func NewInput(start time.Time, maxBuffer time.Duration, now func() time.Time) *Input {
	if now == nil {
		now = time.Now
	}
	return &Input{
		queue:   wave.NewQueue(),
		decoder: NewDecoder(now),
		latency: latencyBuffer{max: maxBuffer.Milliseconds()},
		now:     now,
		start:   start,
		freq:    1,
	}
}

// Feed buffers raw bytes from the connection.
func (in *Input) Feed(p []byte) {
	in.buf = append(in.buf, p...)
}

// Buffered is the number of bytes not yet framed.
func (in *Input) Buffered() int {
	return len(in.buf)
}

func (in *Input) Queue() *wave.Queue {
	return in.queue
}

func (in *Input) Decoder() *Decoder {
	return in.decoder
}

// Pending reports whether decoded bits are waiting for a boundary.
func (in *Input) Pending() bool {
	return in.decoder.Pending()
}

// SetLatencyBuffer changes the maximum keying delay, zero disables it.
func (in *Input) SetLatencyBuffer(d time.Duration) {
	in.latency.max = d.Milliseconds()
}

// Process consumes every complete field, decodes what it can and flushes
// stale bits. An error means the byte stream broke the wave sequence and the
// connection must be reset.
func (in *Input) Process(h InputHandler) error {
	off := 0
	for {
		n, err := in.readField(h, in.buf[off:])
		if err != nil {
			in.buf = in.buf[:0]
			return err
		}
		if n == 0 {
			break
		}
		off += n

		// keying events first, decoding adds latency
		in.deliverBuffered(h)
		for {
			bits, ok := in.decoder.TryDecode(in.queue, false)
			if !ok {
				break
			}
			h.MorseReceived(bits)
		}
	}
	in.buf = append(in.buf[:0], in.buf[off:]...)

	in.deliverBuffered(h)

	force := in.queue.Len() > morse.EndSequence.Len() || in.NextWork() == 0
	in.Flush(h, force)
	if force {
		in.lastWave = 0
	}
	return nil
}

func (in *Input) readField(h InputHandler, b []byte) (int, error) {
	switch in.queue.Phase() {
	case wave.Up:
		sc, err := frame.DecodeUp(b)
		if err != nil {
			return 0, nil
		}
		return frame.UpFieldLen, in.stateDown(h, sc.Value)
	default:
		sc, err := frame.DecodeDown(b)
		if err != nil {
			return 0, nil
		}
		if sc.Kind == frame.Frequency {
			in.frequencyChanged(h, sc.Frequency())
			return frame.DownFieldLen, nil
		}
		return frame.DownFieldLen, in.stateUp(h, sc.Value)
	}
}

func (in *Input) frequencyChanged(h InputHandler, freq int64) {
	log.Debug().Msgf("cw.Input frequency freq=%d previous=%d", freq, in.freq)
	h.FrequencyChanged(freq)
	if freq != in.freq {
		// channel changed, bits in flight belong to the old one
		in.Flush(h, true)
		in.freq = freq
	}
}

func (in *Input) stateUp(h InputHandler, ts int32) error {
	now := in.now()
	if err := in.queue.PushUp(int64(ts)); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if in.latency.enabled() {
		in.latency.pushUp(ts, in.connTime(now), now.UnixMilli())
	} else {
		h.StateChanged(true, ts)
	}
	in.latency.lastState = now.UnixMilli()
	return nil
}

func (in *Input) stateDown(h InputHandler, duration int32) error {
	now := in.now()
	if err := in.queue.PushDown(uint32(duration)); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if in.latency.enabled() {
		in.latency.pushDown(duration, in.connTime(now), now.UnixMilli())
	} else {
		h.StateChanged(false, duration)
	}
	in.lastWave = now.UnixMilli()
	in.latency.lastState = now.UnixMilli()
	return nil
}

// deliverBuffered releases due keying events in order. Events already in the
// past come out back to back.
func (in *Input) deliverBuffered(h InputHandler) {
	for in.latency.next(in.connTime(in.now())) == 0 {
		sc := in.latency.pop()
		h.StateChanged(sc.Kind == frame.DownToUp, sc.Value)
	}
}

// Flush decodes whatever the queue holds when force is set, then hands over
// stale pending bits.
func (in *Input) Flush(h InputHandler, force bool) {
	if force {
		for {
			bits, ok := in.decoder.TryDecode(in.queue, true)
			if !ok {
				break
			}
			h.MorseReceived(bits)
		}
	}
	if bits, ok := in.decoder.FlushStalled(force); ok {
		h.MorseReceived(bits)
	}
}

// NextWork is the time until buffered events or a decoder flush are due.
func (in *Input) NextWork() time.Duration {
	now := in.now()
	next := NoWork
	if wait := in.latency.next(in.connTime(now)); wait >= 0 {
		next = time.Duration(wait) * time.Millisecond
	}
	if in.lastWave > 0 {
		flushAt := in.lastWave + in.decoder.FlushTimeout().Milliseconds()
		wait := flushAt - now.UnixMilli()
		if wait < 0 {
			wait = 0
		}
		if d := time.Duration(wait) * time.Millisecond; d < next {
			next = d
		}
	}
	return next
}

func (in *Input) connTime(now time.Time) int64 {
	return now.Sub(in.start).Milliseconds()
}
