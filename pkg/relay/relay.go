// Package relay forwards the text fragments of an upstream LLM stream to a
// downstream writer as raw bytes, in order and as soon as they arrive.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/metrics"
)

// Source yields provider chunks in order. Next returns io.EOF after the last
// chunk. An error wrapping llm.ErrMalformedChunk skips one chunk; any other
// error ends the stream.
type Source interface {
	Next(ctx context.Context) (*llm.StreamChunk, error)
}

// flusher is implemented by buffered downstream writers.
type flusher interface {
	Flush() error
}

// Result summarizes one relayed stream.
type Result struct {
	// Text is everything written downstream.
	Text string

	// Deltas is the number of fragments written.
	Deltas int

	// Malformed is the number of skipped chunks.
	Malformed int

	Model      string
	StopReason string
	Duration   time.Duration

	// Err is nil on normal completion, an *llm.UpstreamError when the
	// upstream failed or the context was cancelled, or the downstream
	// write error.
	Err error
}

// Outcome labels the result for metrics and persistence.
func (r Result) Outcome() string {
	var ue *llm.UpstreamError
	switch {
	case r.Err == nil:
		return "complete"
	case errors.As(r.Err, &ue) && ue.Op == "cancelled":
		return "cancelled"
	case errors.As(r.Err, &ue):
		return "upstream_error"
	default:
		return "downstream_error"
	}
}

// Relay holds the collaborators shared by every stream. It keeps no
// per-stream state; each Run is independent.
type Relay struct {
	logger   *zap.Logger
	provider string
	onDelta  func(llm.Delta)
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// WithProvider sets the provider name used in logs and metrics.
func WithProvider(name string) Option {
	return func(r *Relay) {
		r.provider = name
	}
}

// WithOnDelta registers a hook called with every delta, in order, after its
// text was written. The final delta closes a normally completed stream.
func WithOnDelta(fn func(llm.Delta)) Option {
	return func(r *Relay) {
		r.onDelta = fn
	}
}

// New creates a Relay.
func New(opts ...Option) *Relay {
	r := &Relay{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run copies fragments from src to w until src is exhausted, fails, or ctx is
// done. Each fragment is written with a single Write call and flushed when w
// supports it. Run never writes anything that did not come from src.
func (r *Relay) Run(ctx context.Context, src Source, w io.Writer) (Result, error) {
	start := time.Now()

	var (
		res  Result
		text strings.Builder
		seq  uint64
	)

	finish := func(err error) (Result, error) {
		res.Text = text.String()
		res.Duration = time.Since(start)
		res.Err = err

		outcome := res.Outcome()
		metrics.ObserveStream(r.provider, outcome, res.Duration)

		fields := []zap.Field{
			zap.String("provider", r.provider),
			zap.String("outcome", outcome),
			zap.Int("deltas", res.Deltas),
			zap.Int("malformed", res.Malformed),
			zap.Duration("duration", res.Duration),
		}
		if err != nil {
			r.logger.Warn("stream ended with error", append(fields, zap.Error(err))...)
		} else {
			r.logger.Debug("stream complete", fields...)
			seq++
			r.emit(llm.Delta{Seq: seq, Final: true})
		}
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(&llm.UpstreamError{Op: "cancelled", Err: err})
		}

		chunk, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return finish(nil)
		case errors.Is(err, llm.ErrMalformedChunk):
			res.Malformed++
			metrics.AddMalformed(r.provider)
			r.logger.Warn("skipping malformed chunk",
				zap.String("provider", r.provider),
				zap.Error(err),
			)
			continue
		case ctx.Err() != nil:
			return finish(&llm.UpstreamError{Op: "cancelled", Err: ctx.Err()})
		default:
			return finish(llm.NewUpstreamError("read", err))
		}

		if chunk == nil {
			continue
		}
		if chunk.Model != "" {
			res.Model = chunk.Model
		}
		if chunk.StopReason != "" {
			res.StopReason = chunk.StopReason
		}

		if chunk.Text != "" {
			if _, err := io.WriteString(w, chunk.Text); err != nil {
				return finish(fmt.Errorf("writing fragment: %w", err))
			}
			if f, ok := w.(flusher); ok {
				if err := f.Flush(); err != nil {
					return finish(fmt.Errorf("flushing fragment: %w", err))
				}
			}

			text.WriteString(chunk.Text)
			res.Deltas++
			seq++
			metrics.AddDelta(r.provider)
			r.emit(llm.Delta{Seq: seq, Text: chunk.Text})
		}

		if chunk.Done {
			return finish(nil)
		}
	}
}

// Pipe runs the relay on its own goroutine and returns the read side of the
// output. The reader ends with io.EOF on normal completion and with the
// stream error otherwise. The result is sent once the stream ends; the
// channel is buffered so nobody has to receive it.
func (r *Relay) Pipe(ctx context.Context, src Source) (io.ReadCloser, <-chan Result) {
	pr, pw := io.Pipe()
	results := make(chan Result, 1)

	go func() {
		defer close(results)

		res, err := r.Run(ctx, src, pw)
		if err != nil {
			pw.CloseWithError(err)
		} else {
			pw.Close()
		}
		results <- res
	}()

	return pr, results
}

func (r *Relay) emit(d llm.Delta) {
	if r.onDelta != nil {
		r.onDelta(d)
	}
}
