// Package chunker slices a streamed assistant reply into speakable sentences while
// suppressing the structured JSON trailer that ends every reply.
package chunker

import (
	"strings"
)

// TrailerMarker opens the fenced structured block at the end of a reply.
const TrailerMarker = "```json"

// Result is what one increment produced.
type Result struct {
	// Display is the markup-stripped text to append to the visible reply.
	Display string
	// Sentences are complete sentences ready to be spoken, in order.
	Sentences []string
}

// Chunker is owned by a single turn and is not safe for concurrent use.
type Chunker struct {
	sentence       strings.Builder
	held           string
	trailerStarted bool
}

// New returns an empty Chunker.
func New() *Chunker { return &Chunker{} }

// TrailerStarted reports whether the structured block has begun arriving.
func (c *Chunker) TrailerStarted() bool { return c.trailerStarted }

// Feed consumes the next fragment of the stream.
func (c *Chunker) Feed(fragment string) Result {
	if c.trailerStarted {
		return Result{}
	}
	text := c.held + fragment
	c.held = ""

	if idx := strings.Index(text, TrailerMarker); idx >= 0 {
		text = text[:idx]
		c.trailerStarted = true
	} else if n := partialMarkerSuffix(text); n > 0 {
		// A marker may be split across fragments; hold the ambiguous tail back.
		c.held = text[len(text)-n:]
		text = text[:len(text)-n]
	}
	return c.accept(text)
}

// Flush releases whatever is left once the stream has ended. The returned sentence is
// empty when nothing speakable remains.
func (c *Chunker) Flush() Result {
	var res Result
	if !c.trailerStarted && c.held != "" {
		res = c.accept(c.held)
	}
	c.held = ""
	tail := strings.TrimSpace(stripEmphasis(c.sentence.String()))
	c.sentence.Reset()
	if tail != "" {
		res.Sentences = append(res.Sentences, tail)
	}
	return res
}

func (c *Chunker) accept(text string) Result {
	clean := stripEmphasis(text)
	if clean == "" {
		return Result{}
	}
	c.sentence.WriteString(clean)
	return Result{Display: clean, Sentences: c.drainSentences()}
}

// drainSentences pops every complete sentence off the accumulation buffer. A sentence
// ends at '.', '!' or '?' followed by whitespace or the end of the buffer.
func (c *Chunker) drainSentences() []string {
	buf := c.sentence.String()
	var out []string
	start := 0
	for i := 0; i < len(buf); i++ {
		if !isTerminal(buf[i]) {
			continue
		}
		if i+1 < len(buf) && !isSpace(buf[i+1]) {
			continue
		}
		if s := strings.TrimSpace(buf[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if start > 0 {
		rest := buf[start:]
		c.sentence.Reset()
		c.sentence.WriteString(rest)
	}
	return out
}

// SplitSentences splits a complete text the same way the streaming path does.
func SplitSentences(text string) []string {
	c := New()
	res := c.accept(text)
	return append(res.Sentences, c.Flush().Sentences...)
}

func partialMarkerSuffix(text string) int {
	max := len(TrailerMarker) - 1
	if max > len(text) {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(text, TrailerMarker[:n]) {
			return n
		}
	}
	return 0
}

func stripEmphasis(s string) string { return strings.ReplaceAll(s, "*", "") }

func isTerminal(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
