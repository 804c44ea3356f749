package pacer

import (
	"strings"
)

// Fence is the code fence delimiter. An odd occurrence opens a fenced block
// and the next one closes it.
const Fence = "```"

// Class labels a run of text for pacing.
type Class int

const (
	// ClassOther is whitespace-only or empty text.
	ClassOther Class = iota

	// ClassProse is text outside a code fence.
	ClassProse

	// ClassCode is text inside a code fence, including the delimiters.
	ClassCode
)

func (c Class) String() string {
	switch c {
	case ClassProse:
		return "prose"
	case ClassCode:
		return "code"
	default:
		return "other"
	}
}

// Segment is a contiguous run of text with a single classification.
type Segment struct {
	Text  string
	Class Class

	// Delimiter is set when Text is a fence delimiter.
	Delimiter bool
}

// Classify labels a fragment that does not cross a fence boundary, given
// whether a fence is open before it. A fragment that contains a delimiter
// is code.
func Classify(fragment string, inFence bool) Class {
	switch {
	case strings.TrimSpace(fragment) == "":
		return ClassOther
	case inFence, strings.Contains(fragment, Fence):
		return ClassCode
	default:
		return ClassProse
	}
}

// Split labels text in order, starting with the given fence state, and
// returns the segments along with the fence state after the text.
// Delimiters are matched left to right and form their own code segments.
// Concatenating the segment texts yields text.
func Split(text string, inFence bool) ([]Segment, bool) {
	var segments []Segment

	for text != "" {
		i := strings.Index(text, Fence)
		if i < 0 {
			segments = append(segments, Segment{Text: text, Class: Classify(text, inFence)})
			break
		}

		if i > 0 {
			segments = append(segments, Segment{Text: text[:i], Class: Classify(text[:i], inFence)})
		}
		segments = append(segments, Segment{Text: Fence, Class: ClassCode, Delimiter: true})
		inFence = !inFence
		text = text[i+len(Fence):]
	}

	return segments, inFence
}
