package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/cwpctl/internal/cw"
	"github.com/danmuck/cwpctl/internal/morse"
	"github.com/danmuck/cwpctl/internal/observability"
	"github.com/danmuck/cwpctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// worker holds everything owned by the Run goroutine.
type worker struct {
	e   *Engine
	cfg Config

	addr string
	link *link
	in   *cw.Input
	out  *cw.Output

	resolveRetry *session.Retry
	connectRetry *session.Retry

	freq        int64
	localUp     bool
	remoteUp    bool
	rxBits      morse.BitString
	history     strings.Builder
	sending     bool
	sendingText string
}

// Run executes the connection state machine until ctx ends or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	select {
	case <-e.quit:
		return nil
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	w := &worker{
		e:            e,
		freq:         e.opts.Frequency,
		resolveRetry: session.NewRetry(e.opts.Session.ResolveBackoff, e.opts.Rand),
		connectRetry: session.NewRetry(e.opts.Session.ConnectBackoff, e.opts.Rand),
	}
	log.Info().Msgf("engine.Engine start freq=%d", w.freq)
	for ctx.Err() == nil {
		w.step(ctx)
	}
	w.shutdown()
	log.Info().Msg("engine.Engine stopped")
	return nil
}

func (w *worker) step(ctx context.Context) {
	switch w.e.State() {
	case StateResolving:
		w.resolve(ctx)
	case StateCreating:
		w.connect(ctx)
	case StateConnected:
		w.serve(ctx)
	default:
		w.wait(ctx, 0)
	}
}

func (w *worker) setState(s State) {
	prev := State(w.e.state.Swap(int32(s)))
	if prev == s {
		return
	}
	log.Debug().Msgf("engine.Engine state from=%s to=%s", prev, s)
	observability.RecordStateTransition(s.String())
}

func (w *worker) resolve(ctx context.Context) {
	addr, err := w.e.dialer.Resolve(ctx, w.cfg.Host)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.RecordFailure("resolve")
		delay := w.resolveRetry.Next()
		log.Warn().Msgf("engine.Engine resolve attempt=%d host=%q retry_in=%v err=%v", w.resolveRetry.Attempts(), w.cfg.Host, delay, err)
		w.wait(ctx, delay)
		return
	}
	w.resolveRetry.Reset()
	w.addr = addr
	w.setState(StateCreating)
}

func (w *worker) connect(ctx context.Context) {
	conn, err := w.e.dialer.Connect(ctx, w.addr, w.cfg.Port)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.RecordFailure("connect")
		w.setState(StateResolving)
		delay := w.e.opts.Session.HardErrorDelay
		if transientDialError(err) {
			delay = w.connectRetry.Next()
		}
		log.Warn().Msgf("engine.Engine connect addr=%s port=%d retry_in=%v err=%v", w.addr, w.cfg.Port, delay, err)
		w.wait(ctx, delay)
		return
	}
	w.connectRetry.Reset()

	now := w.e.opts.Now()
	w.link = startLink(conn, now)
	w.e.link.Store(w.link)
	w.in = cw.NewInput(now, w.latencyBuffer(), w.e.opts.Now)
	w.out = cw.NewOutput(now, timingFor(w.cfg), w.e.opts.Rand, w.e.opts.Now)
	w.setState(StateConnected)
	log.Info().Msgf("engine.Engine connected conn=%s addr=%s port=%d", w.link.id, w.addr, w.cfg.Port)

	if w.freq != DefaultFrequency {
		w.out.SendFrequency(w.freq)
	}
}

// transientDialError matches refusals and unreachable routes, the failures
// worth a longer pause before the next attempt.
func transientDialError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

func (w *worker) serve(ctx context.Context) {
	w.out.Process(outputEvents{w})
	if pending := w.out.Pending(); len(pending) > 0 {
		n, err := w.link.write(pending, w.e.opts.Session.WriteTimeout)
		observability.RecordBytes(observability.DirectionOut, n)
		w.out.Consume(n)
		if err != nil {
			w.fail("io", err)
			return
		}
	}

	if w.sending && w.out.Idle() {
		w.sending = false
		w.sendingText = ""
		w.e.busy.Store(false)
		log.Debug().Msgf("engine.Engine send complete conn=%s", w.link.id)
		w.e.listener.SendProgress(true, "")
	}

	next := w.out.NextWork()
	if d := w.in.NextWork(); d < next {
		next = d
	}
	if !w.wait(ctx, next) || w.in == nil {
		return
	}

	if err := w.in.Process(inputEvents{w}); err != nil {
		w.fail("protocol", err)
	}
}

func (w *worker) fail(stage string, err error) {
	observability.RecordFailure(stage)
	id := ""
	if w.link != nil {
		id = w.link.id
	}
	log.Warn().Msgf("engine.Engine connection failed conn=%s stage=%s err=%v", id, stage, err)
	w.reset()
}

// wait blocks until d elapses, a command is handled, bytes arrive or the
// connection breaks. d is capped at the idle limit, zero waits for a command
// only. It reports whether the connection is still usable.
func (w *worker) wait(ctx context.Context, d time.Duration) bool {
	var (
		timeout <-chan time.Time
		chunks  <-chan []byte
		errs    <-chan error
	)
	if w.link != nil {
		chunks = w.link.chunks
		errs = w.link.errs
	}
	if d > 0 || w.link != nil {
		if d > w.e.opts.Session.MaxIdleWait || d == cw.NoWork {
			d = w.e.opts.Session.MaxIdleWait
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case c := <-w.e.cmds:
		w.handle(c)
		w.drainCommands()
	case chunk := <-chunks:
		observability.RecordBytes(observability.DirectionIn, len(chunk))
		w.in.Feed(chunk)
	case err := <-errs:
		w.fail("io", err)
		return false
	case <-timeout:
	}
	return w.link != nil
}

func (w *worker) drainCommands() {
	for {
		select {
		case c := <-w.e.cmds:
			w.handle(c)
		default:
			return
		}
	}
}

func (w *worker) handle(c command) {
	switch c.kind {
	case cmdConfigure:
		w.configure(c.cfg)
	case cmdKeying:
		w.setKeying(c.up)
	case cmdFrequency:
		w.setFrequency(c.freq)
	case cmdSendText:
		w.sendText(c.text)
	case cmdStateRequest:
		w.stateRequest()
	case cmdClearHistory:
		w.history.Reset()
		w.e.listener.TextUpdated("")
	}
}

func (w *worker) configure(cfg Config) {
	if w.e.State() == StateNoConfiguration {
		w.cfg = cfg
		log.Info().Msgf("engine.Engine configured host=%q port=%d unit_width=%v latency=%t", cfg.Host, cfg.Port, cfg.UnitWidth, cfg.LatencyManagement)
		w.setState(StateResolving)
		return
	}

	reconnect := cfg.Host != w.cfg.Host || cfg.Port != w.cfg.Port
	if cfg.UnitWidth != w.cfg.UnitWidth && w.out != nil {
		w.out.SetTiming(timingFor(cfg))
	}
	w.cfg = cfg
	if w.in != nil {
		w.in.SetLatencyBuffer(w.latencyBuffer())
	}
	if reconnect {
		log.Info().Msgf("engine.Engine server changed host=%q port=%d", cfg.Host, cfg.Port)
		w.reset()
	}
}

func (w *worker) setKeying(up bool) {
	if w.sending || w.out == nil {
		return
	}
	log.Debug().Msgf("engine.Engine keying up=%t", up)
	if up {
		w.out.SendUp()
	} else {
		w.out.SendDown()
	}
}

func (w *worker) setFrequency(freq int64) {
	if freq == w.freq {
		return
	}
	log.Debug().Msgf("engine.Engine frequency freq=%d", freq)
	w.freq = freq
	if w.out != nil {
		w.out.SendFrequency(freq)
	}
}

func (w *worker) sendText(msg string) {
	if w.e.State() != StateConnected || w.out == nil {
		w.e.busy.Store(false)
		w.e.listener.SendProgress(true, "")
		return
	}
	if w.sending {
		return
	}

	bits := morse.Encode(string(morse.StartOfMessage) + msg + string(morse.EndOfContact))
	w.out.SendDown()
	if !w.out.SendMorse(bits) {
		// a pending key-down or frequency change is due now
		w.out.Process(outputEvents{w})
		if !w.out.SendMorse(bits) {
			log.Warn().Msgf("engine.Engine send refused conn=%s queued=%d", w.link.id, w.out.QueueLen())
			w.e.busy.Store(false)
			w.e.listener.SendProgress(true, "")
			return
		}
	}
	w.sending = true
	w.sendingText = msg
	observability.RecordMessage(observability.DirectionOut)
	log.Debug().Msgf("engine.Engine send text=%q bits=%d", msg, bits.Len())
	w.e.listener.SendProgress(false, msg)
}

func (w *worker) stateRequest() {
	w.e.listener.FrequencyChanged(w.freq)
	w.e.listener.KeyingStateChanged(w.localUp, w.remoteUp)
	w.e.listener.TextUpdated(w.history.String())
	w.e.listener.SendProgress(!w.sending, w.sendingText)
}

// deliverText decodes the collected bits into the history.
func (w *worker) deliverText() {
	if w.rxBits.Len() == 0 {
		return
	}
	bits := w.rxBits.Append(morse.CharBreak)
	w.rxBits = morse.BitString{}

	msg := morse.Decode(bits)
	if msg == "" {
		return
	}
	if w.in != nil {
		observability.RecordSignalWidth(w.in.Decoder().Width())
	}
	observability.RecordMessage(observability.DirectionIn)
	log.Debug().Msgf("engine.Engine received text=%q", msg)
	w.history.WriteByte(' ')
	w.history.WriteString(morse.Render(msg))
	w.e.listener.TextUpdated(w.history.String())
}

// reset tears the connection down and returns to resolving.
func (w *worker) reset() {
	if w.in != nil {
		w.in.Flush(inputEvents{w}, true)
	}
	w.closeLink()
	if s := w.e.State(); s == StateConnected || s == StateCreating {
		w.setState(StateResolving)
	}
	w.deliverText()

	w.localUp = false
	w.remoteUp = false
	w.rxBits = morse.BitString{}
	w.sending = false
	w.sendingText = ""
	w.e.busy.Store(false)
	w.in = nil
	w.out = nil

	w.stateRequest()
}

func (w *worker) closeLink() {
	if w.link == nil {
		return
	}
	log.Info().Msgf("engine.Engine close conn=%s", w.link.id)
	w.link.close()
	w.e.link.Store(nil)
	w.link = nil
}

func (w *worker) shutdown() {
	w.in = nil
	w.out = nil
	w.closeLink()
}

func (w *worker) latencyBuffer() time.Duration {
	if !w.cfg.LatencyManagement {
		return 0
	}
	return w.e.opts.MaxLatencyBuffer
}

// timingFor keys at the configured width without jitter.
func timingFor(cfg Config) cw.Timing {
	return cw.Timing{
		UnitWidth:       int(cfg.UnitWidth.Milliseconds()),
		JitterThreshold: math.MaxInt32,
	}
}

type inputEvents struct{ w *worker }

func (h inputEvents) FrequencyChanged(freq int64) {
	w := h.w
	log.Debug().Msgf("engine.Engine remote frequency freq=%d", freq)
	if w.in != nil {
		w.in.Flush(h, true)
	}
	w.deliverText()
	w.e.listener.FrequencyChanged(freq)
}

func (h inputEvents) StateChanged(up bool, value int32) {
	w := h.w
	observability.RecordKeying(observability.DirectionIn, up)
	if w.remoteUp != up {
		w.remoteUp = up
		w.e.listener.KeyingStateChanged(w.localUp, w.remoteUp)
	}
}

func (h inputEvents) MorseReceived(bits morse.BitString) {
	w := h.w
	w.rxBits = w.rxBits.Append(bits)
	if w.rxBits.HasSuffix(morse.EndSequence) || w.rxBits.HasSuffix(morse.EndContact) {
		w.deliverText()
	}
}

type outputEvents struct{ w *worker }

func (h outputEvents) FrequencyChanged(freq int64) {
	h.w.e.listener.FrequencyChanged(freq)
}

func (h outputEvents) StateChanged(up bool, value int32) {
	w := h.w
	observability.RecordKeying(observability.DirectionOut, up)
	if w.localUp != up {
		w.localUp = up
		w.e.listener.KeyingStateChanged(w.localUp, w.remoteUp)
	}
}
