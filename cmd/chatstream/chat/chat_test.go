package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/pacer"
	"github.com/papercomputeco/chatstream/server/header"
)

// fakeServer records chat requests and answers with a canned reply.
type fakeServer struct {
	mu       sync.Mutex
	bodies   []chatRequest
	headers  []http.Header
	handle   func(w http.ResponseWriter, r *http.Request)
	received chan struct{}
}

func newFakeServer(handle func(w http.ResponseWriter, r *http.Request)) (*fakeServer, *httptest.Server) {
	f := &fakeServer{handle: handle, received: make(chan struct{}, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()
		Expect(r.Method).To(Equal(http.MethodPost))
		Expect(r.URL.Path).To(Equal("/v1/chat"))

		var req chatRequest
		Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())

		f.mu.Lock()
		f.bodies = append(f.bodies, req)
		f.headers = append(f.headers, r.Header.Clone())
		f.mu.Unlock()
		f.received <- struct{}{}

		f.handle(w, r)
	}))
	DeferCleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) requests() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.bodies...)
}

func (f *fakeServer) header(i int) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[i]
}

func reply(chunks ...string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set(header.MessageIDHeader, "00000000-0000-0000-0000-000000000001")
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			w.(http.Flusher).Flush()
		}
	}
}

func loadConversation(dir string) *dotdir.Conversation {
	conv, err := dotdir.NewManager().LoadConversation(dir)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return conv
}

var _ = Describe("buildRequest", func() {
	messages := []dotdir.ConversationMessage{{Role: "user", Content: "hi"}}

	It("adds max_tokens for anthropic", func() {
		body, err := buildRequest("anthropic", "claude-sonnet-4-5", messages)
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(MatchJSON(`{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}],"max_tokens":1024,"stream":true}`))
	})

	It("uses the shared shape for openai, ollama and an unset provider", func() {
		for _, name := range []string{"openai", "ollama", ""} {
			body, err := buildRequest(name, "m", messages)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`))
		}
	})

	It("rejects unknown providers", func() {
		_, err := buildRequest("gemini", "m", messages)
		Expect(err).To(MatchError(ContainSubstring("unknown provider type")))
	})
})

var _ = Describe("calculator", func() {
	It("uses configured pacing", func() {
		c := &chatCommander{proseBase: 50, proseVariance: 5, codeBase: 1}
		calc := c.calculator()

		Expect(calc.Profile(pacer.ClassProse)).To(Equal(pacer.Profile{Base: 50 * time.Millisecond, Variance: 5 * time.Millisecond}))
		Expect(calc.Profile(pacer.ClassCode)).To(Equal(pacer.Profile{Base: time.Millisecond}))
		Expect(calc.Delay(pacer.ClassOther)).To(BeZero())
	})

	It("keeps the defaults for zero settings", func() {
		calc := (&chatCommander{}).calculator()

		Expect(calc.Profile(pacer.ClassProse)).To(Equal(pacer.ProseProfile))
		Expect(calc.Profile(pacer.ClassCode)).To(Equal(pacer.CodeProfile))
	})
})

var _ = Describe("terminalRenderer", func() {
	It("writes and records revealed text", func() {
		out := &bytes.Buffer{}
		r := newTerminalRenderer(out)

		r.Reveal(pacer.Reveal{Text: "Hello ", Class: pacer.ClassProse})
		r.Reveal(pacer.Reveal{Text: "\n", Class: pacer.ClassOther})
		r.Reveal(pacer.Reveal{Text: "x := 1\ny", Class: pacer.ClassCode})

		Expect(r.Text()).To(Equal("Hello \nx := 1\ny"))
		Expect(out.String()).To(HavePrefix("Hello \n"))
		Expect(strings.Count(out.String(), "\n")).To(Equal(2))
		Expect(out.String()).To(ContainSubstring("x := 1"))
	})
})

var _ = Describe("chat command", func() {
	It("registers the client and pacer flags with config defaults", func() {
		cmd := NewChatCmd()
		Expect(cmd.Use).To(Equal("chat"))

		Expect(cmd.Flags().Lookup("server-target").DefValue).To(Equal("http://localhost:8080"))
		Expect(cmd.Flags().Lookup("prose-base").DefValue).To(Equal("30"))
		Expect(cmd.Flags().Lookup("code-variance").DefValue).To(Equal("2"))
		Expect(cmd.Flags().Lookup("runes-per-tick").DefValue).To(Equal("1"))
		Expect(cmd.Flags().Lookup("new")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("instant")).NotTo(BeNil())
	})

	It("reads client and pacer settings from config.toml and flags", func() {
		dir, err := os.MkdirTemp("", "chatstream-chat-config-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		cfg := `[client]
server_target = "http://chat.local:9000/"
model = "gpt-4o-mini"
provider = "openai"

[pacer]
prose_base_ms = 45
`
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o600)).To(Succeed())

		cmder := &chatCommander{}
		cmd := newChatCmd(cmder)
		cmd.Flags().String("config-dir", dir, "")
		Expect(cmd.ParseFlags([]string{"--code-base", "7"})).To(Succeed())
		Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

		Expect(cmder.serverTarget).To(Equal("http://chat.local:9000"))
		Expect(cmder.model).To(Equal("gpt-4o-mini"))
		Expect(cmder.providerName).To(Equal("openai"))
		Expect(cmder.proseBase).To(Equal(uint(45)))
		Expect(cmder.proseVariance).To(Equal(uint(10)))
		Expect(cmder.codeBase).To(Equal(uint(7)))
	})
})

var _ = Describe("chat session", func() {
	var (
		configDir string
		cmder     *chatCommander
	)

	BeforeEach(func() {
		var err error
		configDir, err = os.MkdirTemp("", "chatstream-chat-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, configDir)

		cmder = &chatCommander{
			model:        "llama3.2",
			providerName: "ollama",
			configDir:    configDir,
			instant:      true,
			interrupts:   make(chan os.Signal, 1),
		}
	})

	It("reveals the reply and saves the conversation", func() {
		fake, srv := newFakeServer(reply("Hello ", "```go\nx := 1\n```", " done"))
		cmder.serverTarget = srv.URL
		cmder.in = strings.NewReader("hi there\n/exit\n")
		out := &bytes.Buffer{}
		cmder.out = out

		Expect(cmder.run(context.Background())).To(Succeed())

		Expect(out.String()).To(ContainSubstring("New conversation"))
		Expect(out.String()).To(ContainSubstring("Hello "))
		Expect(out.String()).To(ContainSubstring(" done"))
		Expect(out.String()).NotTo(ContainSubstring("stopped"))

		reqs := fake.requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Model).To(Equal("llama3.2"))
		Expect(reqs[0].Stream).To(BeTrue())
		Expect(reqs[0].Messages).To(Equal([]chatMessage{{Role: "user", Content: "hi there"}}))
		Expect(fake.header(0).Get(header.ProviderHeader)).To(Equal("ollama"))

		conv := loadConversation(configDir)
		Expect(conv).NotTo(BeNil())
		Expect(conv.ID).To(Equal(fake.header(0).Get(header.ConversationHeader)))
		Expect(conv.Messages).To(Equal([]dotdir.ConversationMessage{
			{Role: "user", Content: "hi there"},
			{Role: "assistant", Content: "Hello ```go\nx := 1\n``` done"},
		}))
	})

	It("saves the whole reply after typing it out at a paced speed", func() {
		_, srv := newFakeServer(reply("Hello ", "there, ", "friend"))
		cmder.serverTarget = srv.URL
		cmder.instant = false
		cmder.proseBase = 2
		cmder.proseVariance = 1
		cmder.in = strings.NewReader("hi\n")
		out := &bytes.Buffer{}
		cmder.out = out

		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Hello there, friend"))

		conv := loadConversation(configDir)
		Expect(conv).NotTo(BeNil())
		Expect(conv.Messages).To(Equal([]dotdir.ConversationMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "Hello there, friend"},
		}))
	})

	It("resumes a saved conversation and --new starts over", func() {
		Expect(dotdir.NewManager().SaveConversation(&dotdir.Conversation{
			ID: "conv-1",
			Messages: []dotdir.ConversationMessage{
				{Role: "user", Content: "first"},
				{Role: "assistant", Content: "answer"},
			},
		}, configDir)).To(Succeed())

		fake, srv := newFakeServer(reply("again"))
		cmder.serverTarget = srv.URL
		cmder.in = strings.NewReader("second\n")
		out := &bytes.Buffer{}
		cmder.out = out

		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Resuming conversation"))
		Expect(fake.requests()[0].Messages).To(HaveLen(3))
		Expect(fake.header(0).Get(header.ConversationHeader)).To(Equal("conv-1"))
		Expect(loadConversation(configDir).Messages).To(HaveLen(4))

		cmder.newConv = true
		cmder.in = strings.NewReader("fresh\n")
		Expect(cmder.run(context.Background())).To(Succeed())

		Expect(fake.requests()[1].Messages).To(HaveLen(1))
		conv := loadConversation(configDir)
		Expect(conv.ID).NotTo(Equal("conv-1"))
		Expect(conv.Messages).To(HaveLen(2))
	})

	It("reports server errors and drops the unanswered message", func() {
		_, srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"upstream unavailable"}`, http.StatusBadGateway)
		})
		cmder.serverTarget = srv.URL
		cmder.in = strings.NewReader("hi\n")
		out := &bytes.Buffer{}
		cmder.out = out

		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("server returned status 502"))
		Expect(out.String()).To(ContainSubstring("upstream unavailable"))
		Expect(loadConversation(configDir)).To(BeNil())
	})

	It("marks a reply cut off mid-stream as failed and keeps the partial text", func() {
		_, srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Partial")
			w.(http.Flusher).Flush()

			conn, _, err := w.(http.Hijacker).Hijack()
			Expect(err).NotTo(HaveOccurred())
			conn.Close()
		})
		cmder.serverTarget = srv.URL
		cmder.in = strings.NewReader("hi\n")
		out := &bytes.Buffer{}
		cmder.out = out

		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Partial"))
		Expect(out.String()).To(ContainSubstring("failed:"))

		conv := loadConversation(configDir)
		Expect(conv).NotTo(BeNil())
		Expect(conv.Messages).To(HaveLen(2))
		Expect(conv.Messages[1].Content).To(Equal("Partial"))
	})

	It("stops typing on interrupt and keeps what was shown", func() {
		fake, srv := newFakeServer(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Hello")
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		})
		cmder.serverTarget = srv.URL
		cmder.in = strings.NewReader("hi\n/exit\n")
		out := gbytes.NewBuffer()
		cmder.out = out

		errCh := make(chan error, 1)
		go func() {
			errCh <- cmder.run(context.Background())
		}()

		Eventually(fake.received).Should(Receive())
		Eventually(out).Should(gbytes.Say("Hello"))
		cmder.interrupts <- os.Interrupt

		Eventually(errCh, 5*time.Second).Should(Receive(BeNil()))
		Expect(out).To(gbytes.Say("stopped"))

		conv := loadConversation(configDir)
		Expect(conv.Messages).To(Equal([]dotdir.ConversationMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "Hello"},
		}))
	})

	It("requires a model", func() {
		cmder.model = ""
		cmder.in = strings.NewReader("")
		cmder.out = io.Discard
		Expect(cmder.run(context.Background())).To(MatchError(ContainSubstring("no model configured")))
	})
})
