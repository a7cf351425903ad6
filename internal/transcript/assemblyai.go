// Package transcript recognizes speech with AssemblyAI universal streaming. Microphone
// audio is fed once and fanned out to every open recognition session.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/listen"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultURL        = "wss://streaming.assemblyai.com/v3/ws"
	defaultSampleRate = 16000

	// NoSpeechTimeout ends a single-shot session that heard nothing.
	NoSpeechTimeout = 8 * time.Second
	// ContinuationHold delays a final transcript that ends on a word implying more is coming.
	ContinuationHold = 1200 * time.Millisecond
	terminateGrace   = 2 * time.Second
)

// AssemblyAI implements listen.Recognizer. Feed it 16kHz PCM16LE microphone audio.
type AssemblyAI struct {
	APIKey          string
	URL             string
	SampleRate      int
	NoSpeechTimeout time.Duration
	Dialer          *websocket.Dialer

	mu       sync.Mutex
	sessions map[string]*session
	done     chan struct{}
	closed   bool
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{
		APIKey:          apiKey,
		URL:             defaultURL,
		SampleRate:      defaultSampleRate,
		NoSpeechTimeout: NoSpeechTimeout,
		Dialer:          &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sessions:        make(map[string]*session),
		done:            make(chan struct{}),
	}
}

// Open prepares a recognition session; audio flows once Start connects it.
func (a *AssemblyAI) Open(opts listen.Options, events chan<- listen.Event) (listen.Session, error) {
	if a.APIKey == "" {
		return nil, fmt.Errorf("assemblyai: %w: api key missing", listen.ErrUnsupported)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("assemblyai: recognizer closed")
	}
	s := &session{
		id:        uuid.NewString(),
		rec:       a,
		opts:      opts,
		events:    events,
		audio:     make(chan []byte, 64),
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
	a.sessions[s.id] = s
	return s, nil
}

// Feed hands microphone audio to every open session. Sessions that fall behind drop audio.
func (a *AssemblyAI) Feed(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		select {
		case s.audio <- pcm:
		default:
			log.Debug().Str("recognition_id", s.id).Msg("assemblyai: audio backlog, dropping chunk")
		}
	}
}

// Close aborts every session. Pending events are discarded.
func (a *AssemblyAI) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.done)
	open := make([]*session, 0, len(a.sessions))
	for _, s := range a.sessions {
		open = append(open, s)
	}
	a.mu.Unlock()
	for _, s := range open {
		s.Abort()
	}
}

func (a *AssemblyAI) forget(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

func (a *AssemblyAI) endpoint() string {
	q := url.Values{}
	q.Set("sample_rate", strconv.Itoa(a.SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", "false")
	return a.URL + "?" + q.Encode()
}

type wireMessage struct {
	Type                   string  `json:"type"`
	ID                     string  `json:"id"`
	Transcript             string  `json:"transcript"`
	EndOfTurn              bool    `json:"end_of_turn"`
	Words                  []word  `json:"words"`
	Error                  string  `json:"error"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// confidence is the mean word confidence, or zero when no words were scored.
func confidence(words []word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

type session struct {
	id        string
	rec       *AssemblyAI
	opts      listen.Options
	events    chan<- listen.Event
	audio     chan []byte
	terminate chan struct{}
	done      chan struct{}

	mu         sync.Mutex
	conn       *websocket.Conn
	started    bool
	stopping   bool
	finished   bool
	heard      bool
	held       string
	heldConf   float64
	holdTimer  *time.Timer
	quietTimer *time.Timer
	graceTimer *time.Timer
}

func (s *session) ID() string { return s.id }

// Start connects in the background and reports EventStart once audio can flow.
func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("assemblyai: session already started")
	}
	if s.finished {
		return errors.New("assemblyai: session ended")
	}
	s.started = true
	go s.run()
	return nil
}

// Stop delivers any held transcript and asks the service to terminate. Events are
// delivered asynchronously.
func (s *session) Stop() {
	s.mu.Lock()
	if s.finished || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	connected := s.conn != nil
	text, conf := s.takeHeld()
	s.mu.Unlock()

	// the caller may be the loop draining events, so nothing here waits on it
	go func() {
		if text != "" {
			s.emit(listen.Event{Kind: listen.EventResult, Final: true, Alternatives: []listen.Alternative{{Transcript: text, Confidence: conf}}})
		}
		if !connected {
			s.finish()
			return
		}
		close(s.terminate)
		s.mu.Lock()
		if !s.finished {
			s.graceTimer = time.AfterFunc(terminateGrace, s.finish)
		}
		s.mu.Unlock()
	}()
}

// Abort drops the session at once. Its EventEnd is delivered asynchronously.
func (s *session) Abort() {
	if !s.shutdown() {
		return
	}
	go s.emit(listen.Event{Kind: listen.EventEnd})
}

func (s *session) run() {
	header := http.Header{"Authorization": {s.rec.APIKey}}
	conn, resp, err := s.rec.Dialer.Dial(s.rec.endpoint(), header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		log.Error().Err(err).Str("recognition_id", s.id).Msg("assemblyai: connect failed")
		s.emit(listen.Event{Kind: listen.EventError, Code: listen.CodeNetwork, Err: err})
		s.finish()
		return
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	if !s.opts.Continuous && s.rec.NoSpeechTimeout > 0 {
		s.quietTimer = time.AfterFunc(s.rec.NoSpeechTimeout, s.noSpeech)
	}
	s.mu.Unlock()

	s.emit(listen.Event{Kind: listen.EventStart})
	go s.writeLoop(conn)
	s.readLoop(conn)
}

func (s *session) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.done:
			return
		case pcm := <-s.audio:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Warn().Err(err).Str("recognition_id", s.id).Msg("assemblyai: send audio")
				return
			}
		case <-s.terminate:
			if err := conn.WriteJSON(map[string]string{"type": "Terminate"}); err != nil {
				s.finish()
			}
			return
		}
	}
}

func (s *session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			expected := s.finished || s.stopping
			s.mu.Unlock()
			if !expected {
				log.Warn().Err(err).Str("recognition_id", s.id).Msg("assemblyai: connection lost")
				s.emit(listen.Event{Kind: listen.EventError, Code: listen.CodeNetwork, Err: err})
			}
			s.finish()
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("recognition_id", s.id).Msg("assemblyai: bad message")
			continue
		}
		switch msg.Type {
		case "Begin":
			log.Debug().Str("recognition_id", s.id).Str("remote_id", msg.ID).Msg("assemblyai: session began")
		case "Turn":
			s.onTurn(msg)
		case "Termination":
			log.Debug().Str("recognition_id", s.id).
				Float64("audio_seconds", msg.AudioDurationSeconds).
				Float64("session_seconds", msg.SessionDurationSeconds).
				Msg("assemblyai: session terminated")
			s.finish()
			return
		case "Error":
			s.emit(listen.Event{Kind: listen.EventError, Code: listen.CodeNetwork, Err: errors.New(msg.Error)})
			s.finish()
			return
		}
	}
}

func (s *session) onTurn(msg wireMessage) {
	text := strings.TrimSpace(msg.Transcript)
	if text == "" {
		return
	}
	conf := confidence(msg.Words)

	s.mu.Lock()
	if s.finished || s.stopping {
		s.mu.Unlock()
		return
	}
	s.heard = true
	stopTimer(&s.quietTimer)
	stopTimer(&s.holdTimer)
	full := joinTranscript(s.held, text)

	if !msg.EndOfTurn {
		s.mu.Unlock()
		if s.opts.Interim {
			s.emit(listen.Event{Kind: listen.EventResult, Alternatives: []listen.Alternative{{Transcript: full, Confidence: conf}}})
		}
		return
	}
	if !s.opts.Continuous && isContinuationLikely(full) {
		s.held, s.heldConf = full, conf
		s.holdTimer = time.AfterFunc(ContinuationHold, s.releaseHeld)
		s.mu.Unlock()
		return
	}
	s.held, s.heldConf = "", 0
	s.mu.Unlock()
	s.deliver(full, conf)
}

func (s *session) releaseHeld() {
	s.mu.Lock()
	if s.finished || s.stopping {
		s.mu.Unlock()
		return
	}
	text, conf := s.takeHeld()
	s.mu.Unlock()
	if text != "" {
		s.deliver(text, conf)
	}
}

func (s *session) deliver(text string, conf float64) {
	s.emit(listen.Event{Kind: listen.EventResult, Final: true, Alternatives: []listen.Alternative{{Transcript: text, Confidence: conf}}})
	if !s.opts.Continuous {
		s.Stop()
	}
}

// takeHeld must be called with s.mu held.
func (s *session) takeHeld() (string, float64) {
	stopTimer(&s.holdTimer)
	text, conf := s.held, s.heldConf
	s.held, s.heldConf = "", 0
	return text, conf
}

func (s *session) noSpeech() {
	s.mu.Lock()
	silent := !s.heard && !s.finished && !s.stopping
	s.mu.Unlock()
	if !silent {
		return
	}
	s.emit(listen.Event{Kind: listen.EventError, Code: listen.CodeNoSpeech})
	s.finish()
}

// shutdown releases the connection once; it reports whether this call did so.
func (s *session) shutdown() bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	stopTimer(&s.holdTimer)
	stopTimer(&s.quietTimer)
	stopTimer(&s.graceTimer)
	conn := s.conn
	close(s.done)
	s.mu.Unlock()

	s.rec.forget(s.id)
	if conn != nil {
		_ = conn.Close()
	}
	return true
}

func (s *session) finish() {
	if s.shutdown() {
		s.emit(listen.Event{Kind: listen.EventEnd})
	}
}

func (s *session) emit(ev listen.Event) {
	ev.SessionID = s.id
	select {
	case s.events <- ev:
	case <-s.rec.done:
	}
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func joinTranscript(held, text string) string {
	if held == "" {
		return text
	}
	return held + " " + text
}
