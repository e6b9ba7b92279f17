package cw

import (
	"github.com/danmuck/cwpctl/internal/protocol/frame"
)

// latencyWindow is the decay horizon of the buffer length in milliseconds.
const latencyWindow = 100000

// latencyBuffer delays received keying events by an adaptive amount so that
// network jitter does not distort their timing. A zero max disables it.
type latencyBuffer struct {
	max       int64
	length    int64
	lastUp    int64
	lastState int64
	pending   []frame.StateChange
}

func (b *latencyBuffer) enabled() bool {
	return b.max > 0
}

// adjust follows CWP v1.1 latency management: grow to the observed latency
// immediately, shrink slowly while latency stays below the buffer.
func (b *latencyBuffer) adjust(ts, connNow, now int64) {
	latency := connNow - ts
	var since int64
	if b.lastState > 0 {
		since = now - b.lastState
	}
	if latency <= b.length {
		b.length -= since * (b.length + latency) / latencyWindow
	} else {
		b.length = latency
	}
	if b.length < 0 {
		b.length = 0
	} else if b.length > b.max {
		b.length = b.max
	}
}

func (b *latencyBuffer) pushUp(ts int32, connNow, now int64) {
	b.adjust(int64(ts), connNow, now)
	b.pending = append(b.pending, frame.StateChange{Kind: frame.DownToUp, Value: ts, OutTime: b.length + int64(ts)})
	b.lastUp = int64(ts)
}

func (b *latencyBuffer) pushDown(duration int32, connNow, now int64) {
	end := b.lastUp + int64(duration)
	b.adjust(end, connNow, now)
	b.pending = append(b.pending, frame.StateChange{Kind: frame.UpToDown, Value: duration, OutTime: b.length + end})
}

// next is the wait in milliseconds until the oldest buffered event is due,
// negative when nothing is buffered. Events left over after the buffer was
// disabled are due at once.
func (b *latencyBuffer) next(connNow int64) int64 {
	if len(b.pending) == 0 {
		return -1
	}
	if !b.enabled() {
		return 0
	}
	wait := b.pending[0].OutTime - connNow
	if wait < 0 {
		return 0
	}
	return wait
}

func (b *latencyBuffer) pop() frame.StateChange {
	sc := b.pending[0]
	b.pending = b.pending[1:]
	return sc
}
