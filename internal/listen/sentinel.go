package listen

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// missingWakeConfidence stands in when the engine reports no confidence for an
// ambient result.
const missingWakeConfidence = 0.8

// Host is what the sentinel needs from the turn orchestrator.
type Host interface {
	// Speaking reports whether speech output is voicing or queued.
	Speaking() bool
	// TurnInFlight reports whether a reply is still being requested or streamed.
	TurnInFlight() bool
	// Listening reports whether the main controller is opening or open.
	Listening() bool
	// Interrupt hard-cancels speech and abandons the in-flight turn.
	Interrupt(source string)
	// StartListening force-starts the main controller.
	StartListening()
}

// Detection is the outcome of scanning one ambient transcript.
type Detection struct {
	StopCommand string
	WakeWord    string
	// Accepted is set when WakeWord passed the confidence and length checks.
	Accepted bool
}

// Detect scans a lower-cased, trimmed transcript for stop commands and wake phrases.
func (c Config) Detect(transcript string, confidence float64) Detection {
	var d Detection
	for _, cmd := range c.StopCommands {
		if strings.Contains(transcript, strings.ToLower(cmd)) {
			d.StopCommand = cmd
			break
		}
	}
	for _, w := range c.WakeWords {
		phrase := strings.ToLower(strings.TrimSpace(w))
		if phrase == "" || !matchesPhrase(transcript, phrase) {
			continue
		}
		d.WakeWord = phrase
		d.Accepted = confidence >= c.WakeConfidence &&
			len(strings.Split(transcript, " ")) <= len(strings.Split(phrase, " "))+2
		break
	}
	return d
}

func matchesPhrase(t, phrase string) bool {
	return t == phrase ||
		strings.HasPrefix(t, phrase+" ") ||
		strings.HasSuffix(t, " "+phrase) ||
		strings.Contains(t, " "+phrase+" ")
}

// Sentinel runs a continuous ambient session that scans for wake phrases and stop
// commands. It is driven from the same goroutine as the Host.
type Sentinel struct {
	rec    Recognizer
	cfg    Config
	events chan<- Event
	host   Host
	after  AfterFunc

	enabled     bool
	session     Session
	stopRearm   func()
	stopRestart func()
}

// NewSentinel returns an inactive sentinel. Timer callbacks are scheduled with after.
func NewSentinel(rec Recognizer, cfg Config, events chan<- Event, host Host, after AfterFunc) *Sentinel {
	return &Sentinel{rec: rec, cfg: cfg, events: events, host: host, after: after}
}

// Active reports whether the sentinel is enabled.
func (s *Sentinel) Active() bool { return s.enabled }

// Activate opens an ambient session unless one is already running. Failures are
// logged and swallowed; the sentinel is best-effort.
func (s *Sentinel) Activate() {
	if !s.cfg.Continuous || (s.enabled && s.session != nil) {
		return
	}
	s.enabled = true
	s.open()
}

// Deactivate stops the sentinel and cancels its timers.
func (s *Sentinel) Deactivate() {
	s.pause()
	s.cancelTimers()
}

func (s *Sentinel) pause() {
	s.enabled = false
	if s.session != nil {
		sess := s.session
		s.session = nil
		sess.Abort()
	}
}

func (s *Sentinel) cancelTimers() {
	if s.stopRearm != nil {
		s.stopRearm()
		s.stopRearm = nil
	}
	if s.stopRestart != nil {
		s.stopRestart()
		s.stopRestart = nil
	}
}

func (s *Sentinel) open() {
	if s.session != nil {
		s.session.Abort()
		s.session = nil
	}
	sess, err := s.rec.Open(Options{Continuous: true, Interim: s.cfg.InterimResults, Language: s.cfg.Language}, s.events)
	if err != nil {
		log.Debug().Err(err).Msg("sentinel: open failed")
		return
	}
	if err := sess.Start(); err != nil {
		log.Debug().Err(err).Msg("sentinel: start failed")
		return
	}
	s.session = sess
	log.Debug().Str("session_id", sess.ID()).Msg("sentinel: listening for wake words")
}

// Handle processes ev if it belongs to the sentinel's session and reports whether it did.
func (s *Sentinel) Handle(ev Event) bool {
	if s.session == nil || ev.SessionID != s.session.ID() {
		return false
	}
	switch ev.Kind {
	case EventResult:
		s.onResult(ev)
	case EventError:
		if ev.Code != CodeNoSpeech && ev.Code != CodeAborted {
			log.Debug().Err(ev.Err).Str("code", string(ev.Code)).Msg("sentinel: recognition error")
		}
	case EventEnd:
		s.session = nil
		s.scheduleRestart()
	}
	return true
}

func (s *Sentinel) scheduleRestart() {
	if !s.enabled || s.host.Listening() {
		return
	}
	if s.stopRestart != nil {
		s.stopRestart()
	}
	s.stopRestart = s.after(s.cfg.RestartDelay, func() {
		s.stopRestart = nil
		if s.enabled && s.session == nil && !s.host.Listening() {
			s.open()
		}
	})
}

func (s *Sentinel) onResult(ev Event) {
	if len(ev.Alternatives) == 0 {
		return
	}
	alt := ev.Alternatives[0]
	conf := alt.Confidence
	if conf == 0 {
		conf = missingWakeConfidence
	}
	transcript := strings.ToLower(strings.TrimSpace(alt.Transcript))
	d := s.cfg.Detect(transcript, conf)
	busy := s.host.Speaking() || s.host.TurnInFlight()

	if d.StopCommand != "" && busy {
		log.Info().Str("command", d.StopCommand).Msg("sentinel: stop command")
		s.host.Interrupt("stop_command")
		return
	}
	if d.WakeWord == "" {
		return
	}
	if !d.Accepted {
		log.Debug().Str("transcript", transcript).Float64("confidence", conf).Msg("sentinel: wake phrase rejected")
		return
	}

	log.Info().Str("wake_word", d.WakeWord).Msg("sentinel: wake word detected")
	if s.cfg.InterruptOnWake && busy {
		s.host.Interrupt("wake_word")
	}
	s.pause()
	s.host.StartListening()

	if s.stopRearm != nil {
		s.stopRearm()
	}
	s.stopRearm = s.after(s.cfg.RearmDelay, func() {
		s.stopRearm = nil
		if s.cfg.Continuous && !s.host.Listening() {
			s.Activate()
		}
	})
}
