package config

const (
	defaultProvider = "ollama"
	defaultUpstream = "http://localhost:11434"
	defaultListen   = ":8080"

	defaultClientServerTarget = "http://localhost:8080"

	defaultProseBaseMs     = 30
	defaultProseVarianceMs = 10
	defaultCodeBaseMs      = 3
	defaultCodeVarianceMs  = 2
	defaultRunesPerTick    = 1

	defaultKafkaTopic = "chatstream.messages"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:   defaultListen,
			Provider: defaultProvider,
			Upstream: defaultUpstream,
		},
		Client: ClientConfig{
			ServerTarget: defaultClientServerTarget,
		},
		Pacer: PacerConfig{
			ProseBaseMs:     defaultProseBaseMs,
			ProseVarianceMs: defaultProseVarianceMs,
			CodeBaseMs:      defaultCodeBaseMs,
			CodeVarianceMs:  defaultCodeVarianceMs,
			RunesPerTick:    defaultRunesPerTick,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
