// Package listen owns the speech-to-text side of a session: the single-shot main
// listening controller and the continuous wake-word sentinel.
package listen

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by a Recognizer that has no speech-to-text capability.
var ErrUnsupported = errors.New("listen: speech recognition not supported")

// Config holds the voice-interaction tuning. It is built once at startup and never mutated.
type Config struct {
	WakeWords      []string
	StopCommands   []string
	WakeConfidence float64
	// MinConfidence is the main controller's acceptance threshold.
	MinConfidence float64
	// MinTranscriptChars admits a low-confidence main transcript when it is longer than this.
	MinTranscriptChars int
	RearmDelay         time.Duration
	RestartDelay       time.Duration
	InterruptOnWake    bool
	InterimResults     bool
	// Continuous enables the wake-word sentinel.
	Continuous bool
	Language   string
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		WakeWords:          []string{"hey saddie", "hey", "saddie"},
		StopCommands:       []string{"stop", "pause", "hold on", "wait", "quiet", "silence", "enough", "never mind", "hang on"},
		WakeConfidence:     0.75,
		MinConfidence:      0.75,
		MinTranscriptChars: 3,
		RearmDelay:         8 * time.Second,
		RestartDelay:       time.Second,
		InterruptOnWake:    true,
		InterimResults:     true,
		Continuous:         true,
		Language:           "en-US",
	}
}

// Options configure one recognition session.
type Options struct {
	Continuous bool
	Interim    bool
	Language   string
}

// EventKind is the type of a recognition event.
type EventKind int

const (
	EventStart EventKind = iota
	EventResult
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// ErrorCode classifies recognition failures.
type ErrorCode string

const (
	CodeNoSpeech     ErrorCode = "no-speech"
	CodeAudioCapture ErrorCode = "audio-capture"
	CodeNotAllowed   ErrorCode = "not-allowed"
	CodeNetwork      ErrorCode = "network"
	CodeAborted      ErrorCode = "aborted"
)

// Alternative is one transcript hypothesis. A zero Confidence means the engine did not report one.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Event is emitted by a Session on the channel it was opened with.
type Event struct {
	SessionID    string
	Kind         EventKind
	Alternatives []Alternative
	Final        bool
	Code         ErrorCode
	Err          error
}

// Session is one recognition session. Stop ends it gracefully, delivering any pending
// result; Abort ends it immediately. Both are followed by an EventEnd.
type Session interface {
	ID() string
	Start() error
	Stop()
	Abort()
}

// Recognizer opens recognition sessions that report on events.
type Recognizer interface {
	Open(opts Options, events chan<- Event) (Session, error)
}

// AfterFunc schedules fn after d and returns a function that cancels it. The owner
// decides which goroutine fn runs on.
type AfterFunc func(d time.Duration, fn func()) (stop func())
