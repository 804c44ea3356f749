// Package credentials stores upstream provider API keys for the chat server
// in credentials.toml inside the .chatstream/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/llm/provider"
)

const credentialsFile = "credentials.toml"

// keyedProviders lists the providers that authenticate with an API key and
// the variable each one reads it from. Ollama runs locally without one.
var keyedProviders = []struct {
	name   string
	envVar string
}{
	{provider.Anthropic, "ANTHROPIC_API_KEY"},
	{provider.OpenAI, "OPENAI_API_KEY"},
}

// Manager reads and writes credentials.toml.
type Manager struct {
	path string
}

// NewManager resolves the credentials file under override, or under the
// usual .chatstream/ lookup when override is empty.
func NewManager(override string) (*Manager, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}
	return &Manager{path: filepath.Join(dir, credentialsFile)}, nil
}

// Load reads the credentials file. A missing file yields empty credentials.
func (m *Manager) Load() (*Credentials, error) {
	creds := &Credentials{}

	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	default:
		if err := toml.Unmarshal(data, creds); err != nil {
			return nil, fmt.Errorf("parsing credentials: %w", err)
		}
	}

	if creds.Providers == nil {
		creds.Providers = map[string]ProviderCredential{}
	}
	return creds, nil
}

// Save replaces the credentials file. The file is only readable by its owner.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(m.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func (m *Manager) update(change func(providers map[string]ProviderCredential)) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	change(creds.Providers)
	return m.Save(creds)
}

// SetKey stores key for the named provider.
func (m *Manager) SetKey(name, key string) error {
	return m.update(func(providers map[string]ProviderCredential) {
		providers[name] = ProviderCredential{APIKey: key}
	})
}

// GetKey returns the stored key, or "" when there is none.
func (m *Manager) GetKey(name string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	return creds.Providers[name].APIKey, nil
}

// RemoveKey drops the stored key of the named provider.
func (m *Manager) RemoveKey(name string) error {
	return m.update(func(providers map[string]ProviderCredential) {
		delete(providers, name)
	})
}

// ListProviders returns the providers with a stored key, sorted.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(creds.Providers)), nil
}

// ResolveKey returns the upstream API key for a provider: the stored
// credential, else the provider's environment variable. Empty means the
// client's own auth headers are forwarded.
func (m *Manager) ResolveKey(name string) (string, error) {
	key, err := m.GetKey(name)
	if err != nil || key != "" {
		return key, err
	}

	if env := EnvVarForProvider(name); env != "" {
		return os.Getenv(env), nil
	}
	return "", nil
}

// GetTarget returns the credentials file path.
func (m *Manager) GetTarget() string {
	return m.path
}

// EnvVarForProvider names the variable holding the provider's key, or ""
// for keyless providers.
func EnvVarForProvider(name string) string {
	for _, p := range keyedProviders {
		if p.name == name {
			return p.envVar
		}
	}
	return ""
}

func SupportedProviders() []string {
	names := make([]string, 0, len(keyedProviders))
	for _, p := range keyedProviders {
		names = append(names, p.name)
	}
	return names
}

func IsSupportedProvider(name string) bool {
	return EnvVarForProvider(name) != ""
}
