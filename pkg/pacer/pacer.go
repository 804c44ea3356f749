// Package pacer reveals streamed text at a human typing cadence. Incoming
// deltas are buffered and handed to a Renderer one small unit per tick, with
// a delay chosen by the unit's classification: fast for fenced code, slower
// and jittered for prose, immediate for whitespace.
package pacer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/metrics"
)

var (
	// ErrOutOfOrder is returned by Push for a delta whose sequence index does
	// not exceed the previous one.
	ErrOutOfOrder = errors.New("delta out of order")

	// ErrClosed is returned by Push once the stream was closed, failed or
	// the pacer reached a terminal state.
	ErrClosed = errors.New("pacer closed")
)

// State is the pacer's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateDraining
	StateComplete
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Complete, Cancelled or Errored.
func (s State) Terminal() bool {
	return s >= StateComplete
}

// Reveal is one tick's worth of text to append to the displayed message.
type Reveal struct {
	Text  string
	Class Class

	// Delay waited before this reveal.
	Delay time.Duration
}

// Outcome is the terminal event of a pacer.
type Outcome struct {
	// Status is StateComplete, StateCancelled or StateErrored.
	Status State

	// Err is the upstream error for StateErrored, nil otherwise.
	Err error

	// Revealed is the number of bytes handed to Reveal.
	Revealed int
}

// Renderer consumes a pacer's output. Both methods are called from the
// pacer's goroutine, never concurrently. Finish is called exactly once and
// no Reveal follows it. Neither method may call Stop.
type Renderer interface {
	Reveal(Reveal)
	Finish(Outcome)
}

// Pacer buffers deltas and reveals them on its own schedule.
//
// On upstream failure the pacer flushes: everything already buffered is
// revealed without delay, one reveal per classified segment, before the
// single Errored outcome.
type Pacer struct {
	renderer     Renderer
	calc         *Calculator
	runesPerTick int
	instant      bool
	logger       *zap.Logger

	mu       sync.Mutex
	pending  string
	inFence  bool
	started  bool
	lastSeq  uint64
	state    State
	closed   bool
	upErr    error
	revealed int
	outcome  Outcome

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithCalculator replaces the delay calculator.
func WithCalculator(c *Calculator) Option {
	return func(p *Pacer) {
		p.calc = c
	}
}

// WithRunesPerTick sets how many runes are revealed per tick. Values below
// one are ignored.
func WithRunesPerTick(n int) Option {
	return func(p *Pacer) {
		if n > 0 {
			p.runesPerTick = n
		}
	}
}

// WithInstant disables pacing: buffered text is revealed as soon as it
// arrives. Used when output is not a terminal.
func WithInstant(instant bool) Option {
	return func(p *Pacer) {
		p.instant = instant
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pacer) {
		p.logger = l
	}
}

// DefaultCalculator is the calculator used when none is given: code and prose
// defaults, and no delay for whitespace.
func DefaultCalculator() *Calculator {
	return NewCalculator(WithProfile(ClassOther, Profile{}))
}

// New creates a pacer and starts its goroutine. Cancelling ctx has the same
// effect as Stop.
func New(ctx context.Context, r Renderer, opts ...Option) *Pacer {
	p := &Pacer{
		renderer:     r,
		runesPerTick: 1,
		logger:       zap.NewNop(),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.calc == nil {
		p.calc = DefaultCalculator()
	}

	go p.run(ctx)
	return p
}

// Push appends a delta to the buffer. A Final delta also closes the stream.
func (p *Pacer) Push(d llm.Delta) error {
	p.mu.Lock()
	if p.closed || p.upErr != nil || p.state.Terminal() {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.started && d.Seq <= p.lastSeq {
		p.mu.Unlock()
		return ErrOutOfOrder
	}

	p.started = true
	p.lastSeq = d.Seq
	p.pending += d.Text
	if p.state == StateIdle && p.pending != "" {
		p.state = StateStreaming
	}
	if d.Final {
		p.closeLocked()
	}
	p.mu.Unlock()

	p.signal()
	return nil
}

// Close marks the upstream as finished. The pacer drains what is buffered
// and then completes. Close after termination is a no-op.
func (p *Pacer) Close() {
	p.mu.Lock()
	if !p.state.Terminal() {
		p.closeLocked()
	}
	p.mu.Unlock()

	p.signal()
}

// Fail reports an upstream error. Buffered text is flushed and the pacer
// finishes Errored. Fail after termination or a previous Fail is a no-op.
func (p *Pacer) Fail(err error) {
	if err == nil {
		err = llm.NewUpstreamError("stream", errors.New("unknown failure"))
	}

	p.mu.Lock()
	if !p.state.Terminal() && p.upErr == nil {
		p.upErr = err
	}
	p.mu.Unlock()

	p.signal()
}

// Stop cancels the pacer and waits for its goroutine to exit. A reveal that
// is being delivered when Stop is called completes before Stop returns; no
// Reveal call starts afterwards. Stop is idempotent and returns immediately
// on a finished pacer.
func (p *Pacer) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}

// Wait blocks until the pacer finishes and returns its outcome.
func (p *Pacer) Wait() Outcome {
	<-p.done
	return p.outcome
}

// Done is closed once Finish has been delivered.
func (p *Pacer) Done() <-chan struct{} {
	return p.done
}

// State returns the current state.
func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pacer) closeLocked() {
	p.closed = true
	if p.pending != "" {
		p.state = StateDraining
	}
}

func (p *Pacer) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pacer) stopped(ctx context.Context) bool {
	select {
	case <-p.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (p *Pacer) run(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if p.stopped(ctx) {
			p.finish(StateCancelled, nil)
			return
		}

		p.mu.Lock()
		if p.upErr != nil {
			segments, inFence := Split(p.pending, p.inFence)
			p.pending = ""
			p.inFence = inFence
			p.mu.Unlock()

			for _, seg := range segments {
				p.reveal(Reveal{Text: seg.Text, Class: seg.Class})
			}
			p.finish(StateErrored, p.upErr)
			return
		}

		unit, class, ok := p.takeLocked()
		if !ok {
			complete := p.closed && p.pending == ""
			p.mu.Unlock()

			if complete {
				p.finish(StateComplete, nil)
				return
			}

			select {
			case <-p.wake:
			case <-p.stop:
			case <-ctx.Done():
			}
			continue
		}
		p.mu.Unlock()

		var delay time.Duration
		if !p.instant {
			delay = p.calc.Delay(class)
		}

		if delay > 0 {
			timer.Reset(delay)
			select {
			case <-timer.C:
			case <-p.stop:
				p.finish(StateCancelled, nil)
				return
			case <-ctx.Done():
				p.finish(StateCancelled, nil)
				return
			}
		} else if p.stopped(ctx) {
			p.finish(StateCancelled, nil)
			return
		}

		p.reveal(Reveal{Text: unit, Class: class, Delay: delay})
	}
}

// takeLocked removes the next unit from the buffer. A unit holds at most
// runesPerTick runes, never spans a fence delimiter, and a delimiter is a
// unit of its own. While the stream is open, a trailing partial delimiter or
// partial UTF-8 sequence stays buffered until more text arrives.
func (p *Pacer) takeLocked() (string, Class, bool) {
	ready := p.pending
	if !p.closed {
		ready = ready[:len(ready)-holdback(ready)]
	}
	if ready == "" {
		return "", ClassOther, false
	}

	if strings.HasPrefix(ready, Fence) {
		p.pending = p.pending[len(Fence):]
		class := Classify(Fence, p.inFence)
		p.inFence = !p.inFence
		return Fence, class, true
	}

	if i := strings.Index(ready, Fence); i >= 0 {
		ready = ready[:i]
	}

	n := len(ready)
	if !p.instant {
		n = 0
		for r := 0; r < p.runesPerTick && n < len(ready); r++ {
			_, size := utf8.DecodeRuneInString(ready[n:])
			n += size
		}
	}

	unit := ready[:n]
	p.pending = p.pending[n:]
	return unit, Classify(unit, p.inFence), true
}

// holdback returns how many trailing bytes of s may still change meaning
// when more text arrives: backticks that could complete a delimiter, or an
// incomplete UTF-8 sequence.
func holdback(s string) int {
	ticks := len(s) - len(strings.TrimRight(s, "`"))
	if ticks > 0 {
		return ticks % len(Fence)
	}

	start := len(s) - 1
	for start > 0 && len(s)-start < utf8.UTFMax && !utf8.RuneStart(s[start]) {
		start--
	}
	if start >= 0 && !utf8.FullRuneInString(s[start:]) {
		return len(s) - start
	}
	return 0
}

func (p *Pacer) reveal(r Reveal) {
	metrics.ObserveReveal(r.Class.String(), r.Delay)
	p.renderer.Reveal(r)

	p.mu.Lock()
	p.revealed += len(r.Text)
	p.mu.Unlock()
}

func (p *Pacer) finish(status State, err error) {
	p.mu.Lock()
	p.state = status
	p.outcome = Outcome{Status: status, Err: err, Revealed: p.revealed}
	out := p.outcome
	p.mu.Unlock()

	metrics.ObserveOutcome(status.String())
	p.logger.Debug("pacer finished",
		zap.String("status", status.String()),
		zap.Int("revealed", out.Revealed),
		zap.Error(err),
	)
	p.renderer.Finish(out)
}
