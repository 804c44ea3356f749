// Package storagetest holds the behavior every storage.Driver must share,
// written as ginkgo specs that driver packages run against their backend.
package storagetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/storage"
)

// DescribeDriver registers the shared driver specs. newDriver is called once
// per spec and must return an empty store.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver behavior", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("fills in the id and creation time", func() {
			msg := &storage.Message{ConversationID: "c1", Role: "assistant", Content: "hi", Status: storage.StatusComplete}
			Expect(driver.SaveMessage(ctx, msg)).To(Succeed())

			Expect(msg.ID).NotTo(Equal(uuid.Nil))
			Expect(msg.CreatedAt).NotTo(BeZero())
		})

		It("round-trips a message", func() {
			msg := &storage.Message{
				ConversationID: "c1",
				Role:           "assistant",
				Model:          "gpt-4o",
				Provider:       "openai",
				Content:        "partial ```go\nx",
				Status:         storage.StatusFailed,
				Error:          "upstream read failed: EOF",
				CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			Expect(driver.SaveMessage(ctx, msg)).To(Succeed())

			got, err := driver.GetMessage(ctx, msg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(msg.ID))
			Expect(got.Content).To(Equal(msg.Content))
			Expect(got.Status).To(Equal(storage.StatusFailed))
			Expect(got.Error).To(Equal(msg.Error))
			Expect(got.Model).To(Equal("gpt-4o"))
			Expect(got.Provider).To(Equal("openai"))
			Expect(got.CreatedAt.Equal(msg.CreatedAt)).To(BeTrue())
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.GetMessage(ctx, uuid.New())
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})

		It("lists a conversation oldest first", func() {
			base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
			for i, text := range []string{"second", "first", "third"} {
				offset := map[int]time.Duration{0: time.Second, 1: 0, 2: 2 * time.Second}[i]
				Expect(driver.SaveMessage(ctx, &storage.Message{
					ConversationID: "c1",
					Role:           "assistant",
					Content:        text,
					Status:         storage.StatusComplete,
					CreatedAt:      base.Add(offset),
				})).To(Succeed())
			}
			Expect(driver.SaveMessage(ctx, &storage.Message{
				ConversationID: "other", Role: "assistant", Content: "x", Status: storage.StatusComplete,
			})).To(Succeed())

			msgs, err := driver.ListMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())

			var texts []string
			for _, m := range msgs {
				texts = append(texts, m.Content)
			}
			Expect(texts).To(Equal([]string{"first", "second", "third"}))
		})

		It("returns an empty list for an unknown conversation", func() {
			msgs, err := driver.ListMessages(ctx, "nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("rejects nil messages", func() {
			Expect(driver.SaveMessage(ctx, nil)).To(HaveOccurred())
		})
	})
}
