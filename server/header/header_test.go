package header

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetUpstreamRequestHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
		got http.Header
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
		got = nil

		app.Post("/test", func(c *fiber.Ctx) error {
			req, _ := http.NewRequest(http.MethodPost, "http://upstream/test", nil)
			hh.SetUpstreamRequestHeaders(c, req)
			got = req.Header
			return c.SendStatus(fiber.StatusOK)
		})
	})

	AfterEach(func() {
		_ = app.Shutdown()
	})

	send := func(headers map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
	}

	It("forwards standard headers to the upstream request", func() {
		send(map[string]string{
			"Authorization": "Bearer token123",
			"Content-Type":  "application/json",
			"X-Api-Key":     "secret",
		})

		Expect(got.Get("Authorization")).To(Equal("Bearer token123"))
		Expect(got.Get("Content-Type")).To(Equal("application/json"))
		Expect(got.Get("X-Api-Key")).To(Equal("secret"))
	})

	It("strips hop-by-hop and encoding headers", func() {
		send(map[string]string{
			"Connection":      "keep-alive",
			"Accept-Encoding": "br",
		})

		Expect(got.Get("Connection")).To(BeEmpty())
		Expect(got.Get("Accept-Encoding")).To(BeEmpty())
		Expect(got.Get("Host")).To(BeEmpty())
		Expect(got.Get("Content-Length")).To(BeEmpty())
	})

	It("strips the internal routing headers", func() {
		send(map[string]string{
			ProviderHeader:     "openai",
			ConversationHeader: "conv-1",
		})

		Expect(got.Get(ProviderHeader)).To(BeEmpty())
		Expect(got.Get(ConversationHeader)).To(BeEmpty())
	})
})

var _ = Describe("SetClientResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		_ = app.Shutdown()
	})

	It("copies upstream headers except the filtered ones", func() {
		upstream := &http.Response{Header: http.Header{
			"Content-Type":      {"application/json"},
			"X-Request-Id":      {"req-1"},
			"Content-Encoding":  {"gzip"},
			"Transfer-Encoding": {"chunked"},
			"Vary":              {"Origin", "Accept"},
		}}

		app.Get("/test", func(c *fiber.Ctx) error {
			hh.SetClientResponseHeaders(c, upstream)
			return c.SendString("ok")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("ok"))

		Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-1"))
		Expect(resp.Header.Get("Vary")).To(Equal("Origin, Accept"))
		Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
	})
})
