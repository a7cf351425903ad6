package listen

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// State of the main listening controller.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateEnding:
		return "ending"
	}
	return "unknown"
}

// ControllerHooks connect the controller to the turn orchestrator. All are optional.
type ControllerHooks struct {
	// BeforeStart runs before a new session opens; the owner silences speech and
	// interrupts any in-flight turn.
	BeforeStart func()
	// OnTranscript receives an accepted transcript.
	OnTranscript func(text string)
	// OnNoSpeech fires when the session heard nothing.
	OnNoSpeech func()
	// OnError reports a failure that should be shown to the user.
	OnError func(code ErrorCode, message string)
	// OnState fires on every state change.
	OnState func(State)
}

// Controller owns the single-shot main listening session. Like the rest of a
// session's state it is driven from one goroutine.
type Controller struct {
	rec    Recognizer
	cfg    Config
	events chan<- Event
	hooks  ControllerHooks

	session Session
	state   State
}

// NewController returns an idle controller whose sessions report on events.
func NewController(rec Recognizer, cfg Config, events chan<- Event, hooks ControllerHooks) *Controller {
	return &Controller{rec: rec, cfg: cfg, events: events, hooks: hooks}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Listening reports whether a session is opening or open.
func (c *Controller) Listening() bool {
	return c.state == StateStarting || c.state == StateListening
}

// Start opens a fresh session. It is a no-op while already listening.
func (c *Controller) Start() error {
	if c.state == StateListening {
		log.Warn().Msg("listen: start requested while already listening")
		return nil
	}
	if c.hooks.BeforeStart != nil {
		c.hooks.BeforeStart()
	}
	c.release()

	sess, err := c.rec.Open(Options{Language: c.cfg.Language}, c.events)
	if err != nil {
		c.setState(StateIdle)
		return fmt.Errorf("listen: open session: %w", err)
	}
	c.session = sess
	c.setState(StateStarting)
	if err := sess.Start(); err != nil {
		c.session = nil
		c.setState(StateIdle)
		return fmt.Errorf("listen: start session: %w", err)
	}
	return nil
}

// Stop ends the session gracefully.
func (c *Controller) Stop() {
	if c.session == nil {
		c.setState(StateIdle)
		return
	}
	c.setState(StateEnding)
	c.session.Stop()
}

// Close abandons the session without waiting for its events.
func (c *Controller) Close() {
	c.release()
	c.setState(StateIdle)
}

// release forgets the current session before aborting it, so its trailing events are
// no longer recognised as ours.
func (c *Controller) release() {
	if c.session == nil {
		return
	}
	sess := c.session
	c.session = nil
	sess.Abort()
}

// Handle processes ev if it belongs to the controller's session and reports whether it did.
func (c *Controller) Handle(ev Event) bool {
	if c.session == nil || ev.SessionID != c.session.ID() {
		return false
	}
	switch ev.Kind {
	case EventStart:
		c.setState(StateListening)
	case EventResult:
		c.onResult(ev)
	case EventError:
		c.onError(ev)
		c.setState(StateIdle)
	case EventEnd:
		c.session = nil
		c.setState(StateIdle)
	}
	return true
}

func (c *Controller) onResult(ev Event) {
	if len(ev.Alternatives) == 0 {
		return
	}
	alt := ev.Alternatives[0]
	conf := alt.Confidence
	if conf == 0 {
		conf = 1
	}
	text := strings.TrimSpace(alt.Transcript)
	if conf < c.cfg.MinConfidence && len(text) <= c.cfg.MinTranscriptChars {
		log.Debug().Str("transcript", text).Float64("confidence", conf).Msg("listen: low confidence transcript ignored")
		return
	}
	if text == "" {
		return
	}
	if c.hooks.OnTranscript != nil {
		c.hooks.OnTranscript(text)
	}
}

func (c *Controller) onError(ev Event) {
	switch ev.Code {
	case CodeNoSpeech:
		log.Info().Msg("listen: no speech detected")
		if c.hooks.OnNoSpeech != nil {
			c.hooks.OnNoSpeech()
		}
	case CodeAborted:
		log.Debug().Msg("listen: session aborted")
	case CodeAudioCapture, CodeNotAllowed, CodeNetwork:
		if c.hooks.OnError != nil {
			c.hooks.OnError(ev.Code, ErrorMessage(ev.Code))
		}
	default:
		log.Warn().Err(ev.Err).Str("code", string(ev.Code)).Msg("listen: recognition error")
	}
}

// ErrorMessage is the user-facing text for a recognition error code.
func ErrorMessage(code ErrorCode) string {
	switch code {
	case CodeNoSpeech:
		return "No speech detected. Please try speaking again."
	case CodeAudioCapture:
		return "Audio capture error. Is the microphone working?"
	case CodeNotAllowed:
		return "Microphone access denied. Please allow microphone access and refresh."
	case CodeNetwork:
		return "Network error during speech recognition."
	case CodeAborted:
		return "Speech recognition aborted."
	}
	return fmt.Sprintf("Speech recognition error: %s.", code)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}
