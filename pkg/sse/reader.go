package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	initialBufSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// Reader parses SSE events from an io.Reader, one event per call to Next.
type Reader struct {
	scanner *bufio.Scanner

	current Event
	hasData bool
}

// NewReader returns a Reader over src. Lines up to 1MB are accepted, which
// covers large tool-call payloads some providers send in a single event.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialBufSize), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next blocks until a complete event is available and returns it.
// It returns io.EOF once the source is exhausted. An event that is not
// followed by a blank line before EOF is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if r.hasData {
				return r.take(), nil
			}
			// keep-alive or leading blank line
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		r.parseLine(line)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.hasData {
		return r.take(), nil
	}
	return nil, io.EOF
}

// parseLine accumulates one "field:value" line into the current event.
// A single space after the colon is stripped.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored
	}
}

func (r *Reader) take() *Event {
	ev := r.current
	r.current = Event{}
	r.hasData = false
	return &ev
}
