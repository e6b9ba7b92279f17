package cwptest

import (
	"strings"
	"sync"
	"time"

	"github.com/danmuck/cwpctl/internal/morse"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// State is one recorded keying change.
type State struct {
	Up    bool
	Value int32
}

// Recorder collects input and output notifications.
type Recorder struct {
	mu          sync.Mutex
	Frequencies []int64
	States      []State
	Bits        morse.BitString
}

func (r *Recorder) FrequencyChanged(freq int64) {
	r.mu.Lock()
	r.Frequencies = append(r.Frequencies, freq)
	r.mu.Unlock()
}

func (r *Recorder) StateChanged(up bool, value int32) {
	r.mu.Lock()
	r.States = append(r.States, State{Up: up, Value: value})
	r.mu.Unlock()
}

// MorseReceived appends bits and closes locally stopped messages with a
// char break so the next message decodes separately.
func (r *Recorder) MorseReceived(bits morse.BitString) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bits = r.Bits.Append(bits)
	if r.Bits.HasSuffix(morse.EndSequence) {
		r.Bits = r.Bits.Append(morse.CharBreak)
	}
}

// Message decodes everything received with stop markers removed.
func (r *Recorder) Message() string {
	r.mu.Lock()
	bits := r.Bits
	r.mu.Unlock()

	stop := string(morse.StopMessage)
	msg := morse.Decode(bits)
	msg = strings.TrimSpace(strings.ReplaceAll(msg, " "+stop, stop))
	msg = strings.TrimSpace(strings.ReplaceAll(msg, stop+" ", stop))
	return strings.TrimSpace(strings.ReplaceAll(msg, stop, ""))
}

func (r *Recorder) StateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.States)
}
