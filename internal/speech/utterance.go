// Package speech holds the spoken-output side of a session: utterance preparation and
// the FIFO queue that feeds the text-to-speech capability one item at a time.
package speech

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Utterance is one queued line of speech. It is never mutated after creation.
type Utterance struct {
	ID       string
	Text     string
	Greeting bool
}

// Call-to-action tokens the assistant embeds for the presentation layer.
const (
	ContactButtons = "[CONTACT_BUTTONS]"
	OrderButtons   = "[ORDER_BUTTONS]"
)

var (
	fencedJSON    = regexp.MustCompile("(?s)```json.*?```")
	looseTrailer  = regexp.MustCompile(`(?s)\{.*?"action".*?\}`)
	phoneNumber   = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}|\d{10,}`)
	spaceRun      = regexp.MustCompile(`[ \t]{2,}`)
	digitWords    = [...]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	callsToAction = []string{ContactButtons, OrderButtons}
)

// New prepares text for speaking. ok is false when nothing speakable remains.
func New(text string, greeting bool) (u Utterance, ok bool) {
	spoken := Speakable(text)
	if spoken == "" {
		return Utterance{}, false
	}
	return Utterance{ID: uuid.NewString(), Text: spoken, Greeting: greeting}, true
}

// Speakable removes structured data and call-to-action tokens and spells out phone
// numbers digit by digit. Display text keeps the original formatting.
func Speakable(text string) string {
	s := fencedJSON.ReplaceAllString(text, "")
	s = looseTrailer.ReplaceAllString(s, "")
	for _, tok := range callsToAction {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return SpellPhoneNumbers(s)
}

// SpellPhoneNumbers rewrites 10 and 11 digit phone numbers as space-joined digit words.
func SpellPhoneNumbers(text string) string {
	return phoneNumber.ReplaceAllStringFunc(text, func(match string) string {
		var digits []string
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digits = append(digits, digitWords[r-'0'])
			}
		}
		if len(digits) < 10 || len(digits) > 11 {
			return match
		}
		return strings.Join(digits, " ")
	})
}

// CallsToAction lists the call-to-action tokens present in text, in canonical order.
func CallsToAction(text string) []string {
	var out []string
	for _, tok := range callsToAction {
		if strings.Contains(text, tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Synthesis error codes reported by a Speaker.
var (
	ErrCanceled    = errors.New("speech: canceled")
	ErrInterrupted = errors.New("speech: interrupted")
	ErrNotAllowed  = errors.New("speech: not-allowed")
)

// EventKind is the lifecycle stage of one utterance.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is emitted by a Speaker for the utterance with the given ID.
type Event struct {
	UtteranceID string
	Kind        EventKind
	Err         error
}

// Speaker is the text-to-speech capability. Speak must not block on playback; progress is
// reported on Events. Cancel drops the current and any pending utterance.
type Speaker interface {
	Speak(u Utterance) error
	Cancel()
	Events() <-chan Event
}
