package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatstream-credentials-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("targets credentials.toml in the override directory", func() {
		Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := "version = 0\n\n[providers.anthropic]\napi_key = \"sk-ant-test\"\n"
			Expect(os.WriteFile(mgr.GetTarget(), []byte(data), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(HaveKeyWithValue("anthropic", credentials.ProviderCredential{APIKey: "sk-ant-test"}))
		})

		It("returns an error for malformed TOML", func() {
			Expect(os.WriteFile(mgr.GetTarget(), []byte("not valid [[["), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).To(MatchError(ContainSubstring("parsing credentials")))
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("writes the file with owner-only permissions", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("rejects nil credentials", func() {
			Expect(mgr.Save(nil)).NotTo(Succeed())
		})
	})

	Describe("keys", func() {
		It("stores, overwrites and removes keys per provider", func() {
			Expect(mgr.SetKey("openai", "sk-old")).To(Succeed())
			Expect(mgr.SetKey("openai", "sk-new")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "sk-ant")).To(Succeed())

			Expect(mgr.GetKey("openai")).To(Equal("sk-new"))
			Expect(mgr.GetKey("anthropic")).To(Equal("sk-ant"))
			Expect(mgr.ListProviders()).To(Equal([]string{"anthropic", "openai"}))

			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mgr.GetKey("openai")).To(BeEmpty())
			Expect(mgr.RemoveKey("nonexistent")).To(Succeed())
		})
	})

	Describe("ResolveKey", func() {
		It("prefers the stored key over the environment", func() {
			os.Setenv("OPENAI_API_KEY", "sk-env")
			DeferCleanup(os.Unsetenv, "OPENAI_API_KEY")

			Expect(mgr.ResolveKey("openai")).To(Equal("sk-env"))

			Expect(mgr.SetKey("openai", "sk-stored")).To(Succeed())
			Expect(mgr.ResolveKey("openai")).To(Equal("sk-stored"))
		})

		It("returns empty for providers without keys", func() {
			Expect(mgr.ResolveKey("ollama")).To(BeEmpty())
		})
	})
})

var _ = Describe("providers", func() {
	It("maps providers to their environment variables", func() {
		Expect(credentials.EnvVarForProvider("openai")).To(Equal("OPENAI_API_KEY"))
		Expect(credentials.EnvVarForProvider("anthropic")).To(Equal("ANTHROPIC_API_KEY"))
		Expect(credentials.EnvVarForProvider("ollama")).To(BeEmpty())
	})

	It("supports the providers that take API keys", func() {
		Expect(credentials.SupportedProviders()).To(ConsistOf("openai", "anthropic"))
		Expect(credentials.IsSupportedProvider("anthropic")).To(BeTrue())
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
	})
})
