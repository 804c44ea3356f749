// Package sse reads Server-Sent Events from an upstream text/event-stream
// body. It only parses; the relay decides what to do with each event.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneData is the OpenAI sentinel payload that ends a stream.
const DoneData = "[DONE]"

// Event is a single parsed SSE event, delimited by a blank line in the
// upstream byte stream.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data is every "data:" line of the event joined with "\n".
	Data string

	// ID is the last "id:" field seen, if any.
	ID string
}

// IsDone reports whether the event is the "[DONE]" terminator.
func (e *Event) IsDone() bool {
	return e.Data == DoneData
}
