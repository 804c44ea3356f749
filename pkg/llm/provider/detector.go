package provider

// Detector picks a provider for a request payload by asking each registered
// provider in order, falling back to a configured default.
type Detector struct {
	providers []Provider
	fallback  Provider
}

// NewDetector creates a Detector that checks Anthropic, then OpenAI, then
// Ollama, and returns fallback when none of them claims the payload.
func NewDetector(fallback Provider) *Detector {
	d := &Detector{fallback: fallback}
	for _, name := range []string{Anthropic, OpenAI, Ollama} {
		p, _ := New(name)
		d.providers = append(d.providers, p)
	}
	return d
}

// Detect returns the first provider that reports it can handle payload.
func (d *Detector) Detect(payload []byte) Provider {
	for _, p := range d.providers {
		if p.CanHandle(payload) {
			return p
		}
	}
	return d.fallback
}
