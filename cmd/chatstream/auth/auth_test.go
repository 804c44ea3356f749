package authcmder_test

import (
	"bytes"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	authcmder "github.com/papercomputeco/chatstream/cmd/chatstream/auth"
	"github.com/papercomputeco/chatstream/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	run := func(stdin string, args ...string) error {
		cmd := authcmder.NewAuthCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(out)
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd.Execute()
	}

	storedKey := func(provider string) string {
		mgr, err := credentials.NewManager(tmpDir)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		key, err := mgr.GetKey(provider)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return key
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatstream-auth-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		out = &bytes.Buffer{}
	})

	It("has the expected use string and flags", func() {
		cmd := authcmder.NewAuthCmd()
		Expect(cmd.Use).To(Equal("auth [provider]"))
		Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
	})

	It("stores a piped API key", func() {
		Expect(run("  sk-ant-piped  \n", "anthropic")).To(Succeed())
		Expect(storedKey("anthropic")).To(Equal("sk-ant-piped"))
		Expect(out.String()).To(ContainSubstring("ANTHROPIC_API_KEY"))
	})

	It("rejects an empty key", func() {
		Expect(run("\n", "openai")).To(MatchError(ContainSubstring("cannot be empty")))
	})

	It("rejects providers without API keys", func() {
		Expect(run("key\n", "ollama")).To(MatchError(ContainSubstring("unsupported provider")))
	})

	It("requires a provider", func() {
		Expect(run("")).To(MatchError(ContainSubstring("provider argument required")))
	})

	It("lists stored providers", func() {
		Expect(run("", "--list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No stored credentials"))

		Expect(run("sk-1\n", "openai")).To(Succeed())
		out.Reset()
		Expect(run("", "--list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("openai"))
	})

	It("removes stored credentials", func() {
		Expect(run("sk-1\n", "openai")).To(Succeed())
		Expect(run("", "--remove", "openai")).To(Succeed())
		Expect(storedKey("openai")).To(BeEmpty())
	})
})
