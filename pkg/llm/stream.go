package llm

// StreamChunk is one parsed unit of provider streaming output.
// A chunk carries zero or one text fragment.
type StreamChunk struct {
	// Model that generated the chunk, when the provider reports it
	Model string `json:"model,omitempty"`

	// Text is the extracted fragment. Empty for chunks that only carry
	// metadata (role announcements, usage, stop markers).
	Text string `json:"text,omitempty"`

	// Done is set on the provider's own end-of-output marker.
	Done bool `json:"done,omitempty"`

	// StopReason as reported by the provider, if any
	StopReason string `json:"stop_reason,omitempty"`
}

// Delta is one incremental fragment of generated text as it travels from the
// relay to the pacer.
type Delta struct {
	// Seq is strictly increasing within a stream. The producer of the delta
	// assigns it: the relay on the server, the feeder on the client.
	Seq uint64 `json:"seq"`

	// Text is the fragment. Non-empty for every delta except a Final one.
	Text string `json:"text,omitempty"`

	// Final marks the terminal, closing delta of a stream.
	Final bool `json:"final,omitempty"`
}
