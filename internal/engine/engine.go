package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/cwpctl/internal/cw"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/danmuck/cwpctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultFrequency is the channel every connection starts on.
	DefaultFrequency int64 = 1
	// DefaultMaxLatencyBuffer bounds keying delay under latency management.
	DefaultMaxLatencyBuffer = 2 * time.Second
	// MaxUnitWidth is the widest dot a peer decoder still adapts to.
	MaxUnitWidth = time.Duration(cw.MaxAdaptionWidth) * time.Millisecond

	commandQueueSize = 64
)

var (
	ErrInvalidPort      = errors.New("engine: port out of range")
	ErrInvalidHost      = errors.New("engine: host required")
	ErrInvalidUnitWidth = errors.New("engine: unit width out of range")
	ErrBusy             = errors.New("engine: morse message already in flight")
	ErrClosed           = errors.New("engine: closed")
	ErrAlreadyRunning   = errors.New("engine: already running")
	ErrCloseTimeout     = errors.New("engine: close timed out")
	ErrQueueFull        = errors.New("engine: command queue full")
)

// Listener receives engine notifications. Calls come from the worker
// goroutine in generation order and must not block.
type Listener interface {
	KeyingStateChanged(localUp, remoteUp bool)
	FrequencyChanged(freq int64)
	// TextUpdated carries the whole received history.
	TextUpdated(text string)
	// SendProgress reports an outgoing message. text is empty once complete.
	SendProgress(complete bool, text string)
}

// Config is the server and keying setup pushed by the collaborator.
type Config struct {
	Host              string
	Port              int
	UnitWidth         time.Duration
	LatencyManagement bool
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrInvalidHost
	}
	if c.Port < 1 || c.Port > 0xffff {
		return fmt.Errorf("%w: port=%d", ErrInvalidPort, c.Port)
	}
	if c.UnitWidth < time.Millisecond || c.UnitWidth > MaxUnitWidth {
		return fmt.Errorf("%w: unit_width=%v", ErrInvalidUnitWidth, c.UnitWidth)
	}
	return nil
}

// Options are fixed for the lifetime of an engine.
type Options struct {
	Session          session.Config
	MaxLatencyBuffer time.Duration
	// Frequency is the channel requested right after each connect.
	Frequency int64
	Resolver  session.Resolver
	Now       func() time.Time
	Rand      *rand.Rand
}

func (o Options) withDefaults() Options {
	o.Session = o.Session.WithDefaults()
	if o.MaxLatencyBuffer <= 0 {
		o.MaxLatencyBuffer = DefaultMaxLatencyBuffer
	}
	if !frame.ValidFrequency(o.Frequency) {
		o.Frequency = DefaultFrequency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

type commandKind int

const (
	cmdConfigure commandKind = iota
	cmdKeying
	cmdFrequency
	cmdSendText
	cmdStateRequest
	cmdClearHistory
)

type command struct {
	kind commandKind
	cfg  Config
	up   bool
	freq int64
	text string
}

// Engine drives one CWP connection. Commands are queued to a single worker
// goroutine started by Run that owns all protocol state.
type Engine struct {
	listener Listener
	opts     Options
	dialer   *session.Dialer

	cmds      chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	started atomic.Bool
	busy    atomic.Bool
	state   atomic.Int32
	link    atomic.Pointer[link]
}

func New(listener Listener, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		listener: listener,
		opts:     opts,
		dialer:   session.NewDialer(opts.Session, opts.Resolver),
		cmds:     make(chan command, commandQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State reports the current connection state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Busy reports whether an outgoing message has not completed yet.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Configure sets the server and keying speed. The first call leaves
// StateNoConfiguration; a later host or port change reconnects.
func (e *Engine) Configure(cfg Config) error {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.enqueue(command{kind: cmdConfigure, cfg: cfg})
}

// SetKeyingState keys up or down manually. Ignored while a message is sent
// and dropped when the command queue is full.
func (e *Engine) SetKeyingState(up bool) {
	_ = e.enqueue(command{kind: cmdKeying, up: up})
}

// SendText queues msg for transmission. Only one message may be in flight;
// completion is reported through Listener.SendProgress.
func (e *Engine) SendText(msg string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if err := e.enqueue(command{kind: cmdSendText, text: msg}); err != nil {
		e.busy.Store(false)
		return err
	}
	return nil
}

func (e *Engine) SetFrequency(freq int64) error {
	if !frame.ValidFrequency(freq) {
		return fmt.Errorf("%w: freq=%d", frame.ErrFrequency, freq)
	}
	return e.enqueue(command{kind: cmdFrequency, freq: freq})
}

// RequestCurrentState replays frequency, keying, text and send progress.
func (e *Engine) RequestCurrentState() {
	_ = e.enqueue(command{kind: cmdStateRequest})
}

func (e *Engine) ClearHistory() {
	_ = e.enqueue(command{kind: cmdClearHistory})
}

// enqueue never blocks the caller. A full queue means the worker is stalled
// or not running yet.
func (e *Engine) enqueue(c command) error {
	select {
	case <-e.quit:
		return ErrClosed
	default:
	}
	select {
	case e.cmds <- c:
		return nil
	default:
		log.Warn().Msgf("engine.Engine command dropped kind=%d queued=%d", c.kind, len(e.cmds))
		return ErrQueueFull
	}
}

// Close stops the worker and waits up to timeout for it to exit. On timeout
// the socket is closed underneath the worker.
func (e *Engine) Close(timeout time.Duration) error {
	e.closeOnce.Do(func() { close(e.quit) })
	if !e.started.Load() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return nil
	case <-timer.C:
	}

	if l := e.link.Load(); l != nil {
		l.close()
	}
	timer.Reset(timeout)
	select {
	case <-e.done:
		return nil
	case <-timer.C:
		return ErrCloseTimeout
	}
}
