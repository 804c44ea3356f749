package pacer_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/pacer"
)

var _ = Describe("Feed", func() {
	var rec *recorder

	BeforeEach(func() {
		rec = &recorder{}
	})

	It("completes after the body ends", func() {
		p := pacer.New(context.Background(), rec, pacer.WithCalculator(zeroDelay()))
		body := iotest.OneByteReader(strings.NewReader("héllo ```go\nfmt.Println(\"ü\")\n``` done"))

		Expect(pacer.Feed(context.Background(), p, body)).To(Succeed())
		Expect(p.Wait().Status).To(Equal(pacer.StateComplete))
		Expect(rec.Text()).To(Equal("héllo ```go\nfmt.Println(\"ü\")\n``` done"))
	})

	It("fails the pacer on a read error", func() {
		p := pacer.New(context.Background(), rec, pacer.WithCalculator(zeroDelay()))
		body := io.MultiReader(strings.NewReader("partial "), iotest.ErrReader(errors.New("unexpected EOF")))

		err := pacer.Feed(context.Background(), p, body)
		var ue *llm.UpstreamError
		Expect(errors.As(err, &ue)).To(BeTrue())

		out := p.Wait()
		Expect(out.Status).To(Equal(pacer.StateErrored))
		Expect(rec.Text()).To(Equal("partial "))
	})

	It("stops early once the pacer is stopped", func() {
		p := pacer.New(context.Background(), rec)
		p.Stop()

		Expect(pacer.Feed(context.Background(), p, strings.NewReader("ignored"))).To(Succeed())
		Expect(rec.Reveals()).To(BeEmpty())
	})

	It("cancels the pacer when the context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := pacer.New(context.Background(), rec)

		Expect(pacer.Feed(ctx, p, strings.NewReader("x"))).To(MatchError(context.Canceled))
		Expect(p.Wait().Status).To(Equal(pacer.StateCancelled))
	})
})
