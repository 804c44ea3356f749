package relay

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/sse"
)

// ChunkParser extracts a chunk from one provider payload. Every
// provider.Provider is a ChunkParser.
type ChunkParser interface {
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)
}

// SSESource reads a text/event-stream body.
type SSESource struct {
	reader *sse.Reader
	parser ChunkParser
}

// NewSSESource returns a Source over an SSE body. The "[DONE]" event ends the
// stream; events without data are skipped.
func NewSSESource(body io.Reader, parser ChunkParser) *SSESource {
	return &SSESource{reader: sse.NewReader(body), parser: parser}
}

func (s *SSESource) Next(ctx context.Context) (*llm.StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev, err := s.reader.Next()
		if err != nil {
			return nil, err
		}
		if ev.IsDone() {
			return nil, io.EOF
		}
		if ev.Data == "" {
			continue
		}

		return s.parser.ParseStreamChunk([]byte(ev.Data))
	}
}

// NDJSONSource reads a newline-delimited JSON body.
type NDJSONSource struct {
	scanner *bufio.Scanner
	parser  ChunkParser
}

// NewNDJSONSource returns a Source over an NDJSON body. Blank lines are
// skipped.
func NewNDJSONSource(body io.Reader, parser ChunkParser) *NDJSONSource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &NDJSONSource{scanner: scanner, parser: parser}
}

func (s *NDJSONSource) Next(ctx context.Context) (*llm.StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		return s.parser.ParseStreamChunk(line)
	}
}

// NewSourceForResponse picks the framing from the response Content-Type:
// text/event-stream is read as SSE and anything else as NDJSON.
func NewSourceForResponse(resp *http.Response, parser ChunkParser) Source {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return NewSSESource(resp.Body, parser)
	}
	return NewNDJSONSource(resp.Body, parser)
}

// SliceSource replays fixed chunks. An entry with a non-nil Err is returned
// as an error at its position.
type SliceSource struct {
	Items []SliceItem
	pos   int
}

// SliceItem is one step of a SliceSource.
type SliceItem struct {
	Chunk *llm.StreamChunk
	Err   error
}

// Texts builds a SliceSource with one text chunk per fragment.
func Texts(fragments ...string) *SliceSource {
	s := &SliceSource{}
	for _, f := range fragments {
		s.Items = append(s.Items, SliceItem{Chunk: &llm.StreamChunk{Text: f}})
	}
	return s
}

func (s *SliceSource) Next(ctx context.Context) (*llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.Items) {
		return nil, io.EOF
	}

	item := s.Items[s.pos]
	s.pos++
	return item.Chunk, item.Err
}
