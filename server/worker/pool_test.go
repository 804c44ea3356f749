package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/relay"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MessageCompletedEvent
	err    error
}

func (r *recordingPublisher) PublishMessage(_ context.Context, event *eventstream.MessageCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func chatRequest(prompt string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model: "test-model",
		Messages: []llm.Message{
			llm.NewTextMessage("system", "You are a helpful assistant."),
			llm.NewTextMessage("user", prompt),
		},
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		driver    *inmemory.Driver
		publisher *recordingPublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		logger, _ := zap.NewDevelopment()
		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}
		ctx = context.Background()

		var err error
		wp, err = NewPool(&Config{
			Driver:    driver,
			Publisher: publisher,
			Logger:    logger,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Provider: "ollama", Req: chatRequest("hi")})).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			wp.Close()

			full := &Pool{queue: make(chan Job, 1), logger: zap.NewNop(), config: &Config{}}
			Expect(full.Enqueue(Job{})).To(BeTrue())
			Expect(full.Enqueue(Job{})).To(BeFalse())
		})
	})

	Describe("a completed stream", func() {
		var msgID uuid.UUID

		BeforeEach(func() {
			msgID = uuid.New()
			wp.Enqueue(Job{
				Provider:       "ollama",
				ConversationID: "conv-1",
				MessageID:      msgID,
				Req:            chatRequest("What is 2+2?"),
				Result: relay.Result{
					Text:     "4",
					Deltas:   1,
					Model:    "llama3.2",
					Duration: 20 * time.Millisecond,
				},
				StartedAt: time.Now().Add(-time.Second).UTC(),
			})
			wp.Close()
		})

		It("stores the prompt and the reply in order", func() {
			msgs, err := driver.ListMessages(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))

			Expect(msgs[0].Role).To(Equal("user"))
			Expect(msgs[0].Content).To(Equal("What is 2+2?"))

			Expect(msgs[1].ID).To(Equal(msgID))
			Expect(msgs[1].Role).To(Equal("assistant"))
			Expect(msgs[1].Content).To(Equal("4"))
			Expect(msgs[1].Status).To(Equal(storage.StatusComplete))
			Expect(msgs[1].Model).To(Equal("llama3.2"))
			Expect(msgs[1].Provider).To(Equal("ollama"))
		})

		It("publishes a message completed event", func() {
			Expect(publisher.events).To(HaveLen(1))
			ev := publisher.events[0]
			Expect(ev.EventType).To(Equal(eventstream.EventTypeMessageCompleted))
			Expect(ev.Message.ID).To(Equal(msgID.String()))
			Expect(ev.Stream.Outcome).To(Equal("complete"))
			Expect(ev.Stream.Deltas).To(Equal(1))
			Expect(ev.Stream.DurationMs).To(Equal(int64(20)))
		})
	})

	Describe("a failed stream", func() {
		It("stores the partial reply as failed", func() {
			wp.Enqueue(Job{
				Provider:       "openai",
				ConversationID: "conv-2",
				Req:            chatRequest("tell me a story"),
				Result: relay.Result{
					Text: "Once upon",
					Err:  llm.NewUpstreamError("read", errors.New("connection reset")),
				},
				StartedAt: time.Now().UTC(),
			})
			wp.Close()

			msgs, err := driver.ListMessages(ctx, "conv-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))

			reply := msgs[1]
			Expect(reply.Status).To(Equal(storage.StatusFailed))
			Expect(reply.Content).To(Equal("Once upon"))
			Expect(reply.Error).To(ContainSubstring("connection reset"))
			Expect(reply.Model).To(Equal("test-model"))

			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].Stream.Outcome).To(Equal("upstream_error"))
		})
	})

	It("keeps the message when publishing fails", func() {
		publisher.err = errors.New("broker down")

		wp.Enqueue(Job{
			Provider:       "ollama",
			ConversationID: "conv-3",
			Result:         relay.Result{Text: "ok"},
		})
		wp.Close()

		msgs, err := driver.ListMessages(ctx, "conv-3")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Role).To(Equal("assistant"))
	})
})
