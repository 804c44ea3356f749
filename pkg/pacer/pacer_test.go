package pacer_test

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/pacer"
)

var _ = Describe("Pacer", func() {
	var (
		rec *recorder
		ctx context.Context
	)

	BeforeEach(func() {
		rec = &recorder{}
		ctx = context.Background()
	})

	push := func(p *pacer.Pacer, fragments ...string) {
		for i, f := range fragments {
			Expect(p.Push(llm.Delta{Seq: uint64(i + 1), Text: f})).To(Succeed())
		}
	}

	Describe("order preservation", func() {
		fragments := []string{"Hello", ", ", "wor", "ld! ", "```go\nx := 1\n```", " bye"}

		It("reveals bursty arrivals in order", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, fragments...)
			p.Close()

			out := p.Wait()
			Expect(out.Status).To(Equal(pacer.StateComplete))
			Expect(rec.Text()).To(Equal("Hello, world! ```go\nx := 1\n``` bye"))
		})

		It("reveals evenly spaced arrivals in order", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			for i, f := range fragments {
				Expect(p.Push(llm.Delta{Seq: uint64(i + 1), Text: f})).To(Succeed())
				time.Sleep(5 * time.Millisecond)
			}
			p.Close()

			p.Wait()
			Expect(rec.Text()).To(Equal("Hello, world! ```go\nx := 1\n``` bye"))
		})

		It("treats a final delta as closing the stream", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			Expect(p.Push(llm.Delta{Seq: 1, Text: "done"})).To(Succeed())
			Expect(p.Push(llm.Delta{Seq: 2, Final: true})).To(Succeed())

			Expect(p.Wait().Status).To(Equal(pacer.StateComplete))
			Expect(rec.Text()).To(Equal("done"))
		})
	})

	Describe("no loss and no duplication", func() {
		It("reveals exactly the received bytes once", func() {
			text := "Grüße, 世界! ```\nlet ü = 1;\n```\n\n"
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, text[:3], text[3:9], text[9:])
			p.Close()

			out := p.Wait()
			Expect(rec.Text()).To(Equal(text))
			Expect(out.Revealed).To(Equal(len(text)))
			Expect(rec.Outcomes()).To(HaveLen(1))
		})

		It("never splits a rune across reveals", func() {
			text := "naïve café ☕ 日本語"
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))

			for i := 0; i < len(text); i++ {
				Expect(p.Push(llm.Delta{Seq: uint64(i + 1), Text: text[i : i+1]})).To(Succeed())
			}
			p.Close()
			p.Wait()

			Expect(rec.Text()).To(Equal(text))
			for _, rv := range rec.Reveals() {
				Expect(utf8.ValidString(rv.Text)).To(BeTrue(), "reveal %q", rv.Text)
			}
		})
	})

	Describe("classification", func() {
		It("labels fenced units as code and whitespace as other", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, "a ```b``` c")
			p.Close()
			p.Wait()

			var classes []pacer.Class
			for _, rv := range rec.Reveals() {
				classes = append(classes, rv.Class)
			}
			Expect(classes).To(Equal([]pacer.Class{
				pacer.ClassProse, // a
				pacer.ClassOther, // space
				pacer.ClassCode,  // ```
				pacer.ClassCode,  // b
				pacer.ClassCode,  // ```
				pacer.ClassOther, // space
				pacer.ClassProse, // c
			}))
		})

		It("waits for a delimiter split across deltas", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, "a``")

			Eventually(rec.Text).Should(Equal("a"))
			Consistently(rec.Text, 50*time.Millisecond).Should(Equal("a"))

			Expect(p.Push(llm.Delta{Seq: 2, Text: "`x"})).To(Succeed())
			p.Close()
			p.Wait()

			reveals := rec.Reveals()
			Expect(reveals[1]).To(Equal(pacer.Reveal{Text: "```", Class: pacer.ClassCode}))
			Expect(reveals[2].Class).To(Equal(pacer.ClassCode))
		})

		It("keeps fence state across deltas", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()), pacer.WithRunesPerTick(100))
			push(p, "```", "code", "```", "prose")
			p.Close()
			p.Wait()

			texts := map[string]pacer.Class{}
			for _, rv := range rec.Reveals() {
				texts[rv.Text] = rv.Class
			}
			Expect(texts).To(HaveKeyWithValue("code", pacer.ClassCode))
			Expect(texts).To(HaveKeyWithValue("prose", pacer.ClassProse))
		})

		It("releases a trailing partial delimiter on close", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, "x``")
			p.Close()

			Expect(p.Wait().Status).To(Equal(pacer.StateComplete))
			Expect(rec.Text()).To(Equal("x``"))
		})
	})

	Describe("tick size", func() {
		It("reveals up to the configured number of runes per tick", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()), pacer.WithRunesPerTick(4))
			push(p, "abcdefghij")
			p.Close()
			p.Wait()

			for _, rv := range rec.Reveals() {
				Expect(utf8.RuneCountInString(rv.Text)).To(BeNumerically("<=", 4))
			}
			Expect(rec.Text()).To(Equal("abcdefghij"))
		})

		It("reveals everything ready at once when instant", func() {
			p := pacer.New(ctx, rec, pacer.WithInstant(true))
			push(p, "all at once")
			p.Close()
			p.Wait()

			Expect(rec.Reveals()).To(Equal([]pacer.Reveal{{Text: "all at once", Class: pacer.ClassProse}}))
		})

		It("waits the computed delay before each unit", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: 10 * time.Millisecond})))
			start := time.Now()
			push(p, "abcde")
			p.Close()
			p.Wait()

			Expect(time.Since(start)).To(BeNumerically(">=", 50*time.Millisecond))
			for _, rv := range rec.Reveals() {
				Expect(rv.Delay).To(Equal(10 * time.Millisecond))
			}
		})
	})

	Describe("state machine", func() {
		It("moves through idle, streaming, draining and cancelled", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: time.Hour})))
			Expect(p.State()).To(Equal(pacer.StateIdle))

			push(p, "ab")
			Expect(p.State()).To(Equal(pacer.StateStreaming))

			p.Close()
			Expect(p.State()).To(Equal(pacer.StateDraining))

			p.Stop()
			Expect(p.State()).To(Equal(pacer.StateCancelled))
			Expect(rec.Text()).To(BeEmpty())
		})

		It("completes an empty stream", func() {
			p := pacer.New(ctx, rec)
			p.Close()

			Expect(p.Wait()).To(Equal(pacer.Outcome{Status: pacer.StateComplete}))
			Expect(rec.Reveals()).To(BeEmpty())
		})

		It("rejects non-increasing sequence indices", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			defer p.Stop()

			Expect(p.Push(llm.Delta{Seq: 5, Text: "a"})).To(Succeed())
			Expect(p.Push(llm.Delta{Seq: 5, Text: "b"})).To(MatchError(pacer.ErrOutOfOrder))
			Expect(p.Push(llm.Delta{Seq: 4, Text: "c"})).To(MatchError(pacer.ErrOutOfOrder))
			Expect(p.Push(llm.Delta{Seq: 6, Text: "d"})).To(Succeed())

			Eventually(rec.Text).Should(Equal("ad"))
		})

		It("rejects pushes after close", func() {
			p := pacer.New(ctx, rec)
			p.Close()
			Expect(p.Push(llm.Delta{Seq: 1, Text: "late"})).To(MatchError(pacer.ErrClosed))
			p.Wait()
		})
	})

	Describe("cancellation", func() {
		It("emits no reveal after Stop returns", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: 2 * time.Millisecond})))
			push(p, "a fairly long reply that will not finish before the user stops it")

			Eventually(rec.RevealCount).Should(BeNumerically(">=", 3))
			p.Stop()
			n := rec.RevealCount()

			Consistently(rec.RevealCount, 50*time.Millisecond).Should(Equal(n))
			Expect(rec.Outcomes()).To(Equal([]pacer.Outcome{{Status: pacer.StateCancelled, Revealed: len(rec.Text())}}))
		})

		It("is bounded by the in-flight delay, not the buffer", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: time.Hour})))
			push(p, "never shown")

			stopped := make(chan struct{})
			go func() {
				p.Stop()
				close(stopped)
			}()
			Eventually(stopped, time.Second).Should(BeClosed())
			Expect(rec.Reveals()).To(BeEmpty())
		})

		It("is idempotent", func() {
			p := pacer.New(ctx, rec)
			p.Stop()
			p.Stop()

			Expect(rec.Outcomes()).To(HaveLen(1))
			Expect(p.Push(llm.Delta{Seq: 1, Text: "x"})).To(MatchError(pacer.ErrClosed))
		})

		It("does not override a completed outcome", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, "hi")
			p.Close()
			p.Wait()
			p.Stop()

			Expect(rec.Outcomes()).To(HaveLen(1))
			Expect(rec.Outcomes()[0].Status).To(Equal(pacer.StateComplete))
		})

		It("cancels when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			p := pacer.New(cctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: time.Hour})))
			push(p, "abc")
			cancel()

			out := p.Wait()
			Expect(out.Status).To(Equal(pacer.StateCancelled))
			Expect(out.Err).NotTo(HaveOccurred())
		})
	})

	Describe("upstream errors", func() {
		upstream := llm.NewUpstreamError("read", errors.New("connection reset"))

		It("flushes buffered text before a single errored outcome", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: 5 * time.Millisecond})))
			push(p, "one ", "two ", "three")
			p.Fail(upstream)

			out := p.Wait()
			Expect(out.Status).To(Equal(pacer.StateErrored))
			Expect(out.Err).To(MatchError(upstream))
			Expect(out.Revealed).To(Equal(len("one two three")))

			Expect(rec.Text()).To(Equal("one two three"))
			Expect(rec.Outcomes()).To(HaveLen(1))
			Expect(rec.revealsAtFinish).To(Equal(rec.RevealCount()))
		})

		It("keeps each class when the flushed text spans a fence", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(fixedDelay(pacer.Profile{Base: 5 * time.Millisecond})))
			push(p, "intro ```go\nx := 1\n``` after")
			p.Fail(upstream)

			Expect(p.Wait().Status).To(Equal(pacer.StateErrored))
			Expect(rec.Text()).To(Equal("intro ```go\nx := 1\n``` after"))

			classes := map[string]pacer.Class{}
			for _, rv := range rec.Reveals() {
				switch {
				case strings.Contains(rv.Text, "x := 1"):
					classes["code"] = rv.Class
				case strings.Contains(rv.Text, "after"):
					classes["prose"] = rv.Class
				}
				Expect(strings.Contains(rv.Text, "x := 1") && strings.Contains(rv.Text, "after")).To(BeFalse())
			}
			Expect(classes).To(Equal(map[string]pacer.Class{
				"code":  pacer.ClassCode,
				"prose": pacer.ClassProse,
			}))
		})

		It("errors without reveals when nothing arrived", func() {
			p := pacer.New(ctx, rec)
			p.Fail(upstream)

			Expect(p.Wait().Status).To(Equal(pacer.StateErrored))
			Expect(rec.Reveals()).To(BeEmpty())
		})

		It("ignores a second failure and later pushes", func() {
			p := pacer.New(ctx, rec, pacer.WithCalculator(zeroDelay()))
			push(p, "x")
			p.Fail(upstream)
			p.Fail(errors.New("second"))
			Expect(p.Push(llm.Delta{Seq: 9, Text: "y"})).To(MatchError(pacer.ErrClosed))

			Expect(p.Wait().Err).To(MatchError(upstream))
			Expect(rec.Outcomes()).To(HaveLen(1))
		})
	})
})
