package wave

import (
	"errors"
	"fmt"
)

var ErrInvalidSequence = errors.New("wave: invalid state sequence")

// Direction is the keying level of one wave.
type Direction int8

const (
	Up   Direction = 1
	Down Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Wave is one continuous keying segment.
type Wave struct {
	Direction Direction
	Duration  uint32
}

// Less orders waves by duration, Up before Down on ties.
func (w Wave) Less(o Wave) bool {
	if w.Duration != o.Duration {
		return w.Duration < o.Duration
	}
	return w.Direction == Up && o.Direction == Down
}

// Queue assembles wire state changes into alternating waves. A new queue
// starts in the Down phase at timestamp zero.
type Queue struct {
	waves     []Wave
	phase     Direction
	timestamp int64
	mergeUp   bool
}

func NewQueue() *Queue {
	return &Queue{phase: Down}
}

// Phase is the keying level the next wire field belongs to. A pending up-merge
// reports Up since the line never went down.
func (q *Queue) Phase() Direction {
	if q.phase == Down && q.mergeUp {
		return Up
	}
	return q.phase
}

// Timestamp is the connection time of the latest transition.
func (q *Queue) Timestamp() int64 {
	return q.timestamp
}

// PushUp records a Down to Up transition at ts.
func (q *Queue) PushUp(ts int64) error {
	if q.mergeUp {
		return fmt.Errorf("%w: up while merge pending ts=%d", ErrInvalidSequence, ts)
	}
	if q.phase == Up {
		return fmt.Errorf("%w: up while up ts=%d", ErrInvalidSequence, ts)
	}
	duration := ts - q.timestamp
	if duration < 0 || duration > int64(^uint32(0)) {
		return fmt.Errorf("%w: timestamp %d before %d", ErrInvalidSequence, ts, q.timestamp)
	}
	// zero gap re-key continues the previous up wave
	if duration == 0 && len(q.waves) > 0 {
		q.mergeUp = true
		return nil
	}

	q.waves = append(q.waves, Wave{Direction: q.phase, Duration: uint32(duration)})
	q.timestamp = ts
	q.phase = Up
	return nil
}

// PushDown records an Up to Down transition after an up segment of d ms.
func (q *Queue) PushDown(d uint32) error {
	if q.mergeUp {
		q.mergeUp = false
		last := &q.waves[len(q.waves)-1]
		last.Duration += d
		q.timestamp += int64(d)
		return nil
	}
	if q.phase == Down {
		return fmt.Errorf("%w: down while down duration=%d", ErrInvalidSequence, d)
	}

	q.waves = append(q.waves, Wave{Direction: q.phase, Duration: d})
	q.timestamp += int64(d)
	q.phase = Down
	return nil
}

// ReadReady reports whether a completed up segment is waiting for decoding.
func (q *Queue) ReadReady() bool {
	return !q.mergeUp && q.phase == Down && len(q.waves) > 0
}

func (q *Queue) Len() int {
	return len(q.waves)
}

// Waves returns the queued waves oldest first. The slice is only valid until
// the next mutation.
func (q *Queue) Waves() []Wave {
	return q.waves
}

// Discard removes the n oldest waves.
func (q *Queue) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= len(q.waves) {
		q.waves = q.waves[:0]
		return
	}
	q.waves = append(q.waves[:0], q.waves[n:]...)
}

// DropAll clears every queued wave and keeps the phase.
func (q *Queue) DropAll() {
	q.waves = q.waves[:0]
}
