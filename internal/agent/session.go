package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/chunker"
	"github.com/Rituearth/SADDIE-2.0/internal/listen"
	"github.com/Rituearth/SADDIE-2.0/internal/metrics"
	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/Rituearth/SADDIE-2.0/internal/speech"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Canned lines.
const (
	StopAcknowledgement   = "Okay, I've stopped. What can I help you with?"
	StopButtonAck         = "Okay."
	unsupportedRecognizer = "Speech recognition is not available right now. You can type your order instead."
	invalidOrderUpdate    = "Saddie provided an invalid order update."
)

// Config tunes a Session. It is not modified after NewSession.
type Config struct {
	Listen        listen.Config
	Catalog       order.Catalog
	Greeting      string
	GreetingDelay time.Duration
	// TurnTimeout bounds one streamed reply.
	TurnTimeout time.Duration
}

// Session runs one conversation. All state is owned by the goroutine executing Run;
// the exported methods post commands to it and are safe to call from anywhere.
type Session struct {
	id       string
	cfg      Config
	llm      LLM
	speaker  speech.Speaker
	observer Observer
	orders   OrderSink
	logger   zerolog.Logger

	ctx       context.Context
	inbox     chan func()
	recEvents chan listen.Event
	done      chan struct{}
	after     listen.AfterFunc

	queue    *speech.Queue
	listener *listen.Controller
	sentinel *listen.Sentinel
	state    *order.State

	turn       *Turn
	history    []Message
	errMessage string
	submitted  bool
	lastStatus Status

	// noRecognizer latches once the recognizer reports it cannot listen.
	noRecognizer bool
}

// NewSession wires a conversation around its capabilities. observer and orders may be nil.
func NewSession(cfg Config, llm LLM, speaker speech.Speaker, rec listen.Recognizer, observer Observer, orders OrderSink) *Session {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 60 * time.Second
	}
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		llm:       llm,
		speaker:   speaker,
		observer:  observer,
		orders:    orders,
		ctx:       context.Background(),
		inbox:     make(chan func(), 64),
		recEvents: make(chan listen.Event, 32),
		done:      make(chan struct{}),
		state:     order.NewState(),
	}
	s.logger = log.With().Str("session_id", s.id).Logger()
	s.after = s.timer
	s.queue = speech.NewQueue(speaker, speech.Hooks{
		OnVoicing: s.onVoicing,
		OnDrained: s.onDrained,
		OnError:   s.onSpeechError,
	})
	s.listener = listen.NewController(rec, cfg.Listen, s.recEvents, listen.ControllerHooks{
		BeforeStart:  s.beforeListening,
		OnTranscript: s.handleVoiceInput,
		OnNoSpeech:   s.onNoSpeech,
		OnError:      func(_ listen.ErrorCode, msg string) { s.setError(msg) },
		OnState:      s.onListenState,
	})
	s.sentinel = listen.NewSentinel(rec, cfg.Listen, s.recEvents, sentinelHost{s}, func(d time.Duration, fn func()) func() {
		return s.after(d, fn)
	})
	return s
}

// ID identifies the session in logs and order hand-offs.
func (s *Session) ID() string { return s.id }

// Run owns the session until ctx is cancelled. The greeting is spoken shortly after start.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	metrics.RecordSessionStarted()
	defer metrics.RecordSessionEnded()
	defer close(s.done)

	if s.cfg.Greeting != "" {
		s.after(s.cfg.GreetingDelay, s.greet)
	}
	s.logger.Info().Msg("session started")

	speakerEvents := s.speaker.Events()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			s.logger.Info().Msg("session ended")
			return nil
		case fn := <-s.inbox:
			fn()
		case ev, ok := <-speakerEvents:
			if !ok {
				speakerEvents = nil
				continue
			}
			s.queue.Handle(ev)
		case ev := <-s.recEvents:
			s.routeRecognition(ev)
		}
		s.publishStatus()
	}
}

// SubmitText starts a turn from typed input.
func (s *Session) SubmitText(text string) {
	s.post(func() {
		if text = strings.TrimSpace(text); text != "" {
			s.startTurn(text)
		}
	})
}

// Stop silences the assistant, abandons the turn and stops listening.
func (s *Session) Stop() { s.post(s.stopButton) }

// ToggleListening opens the microphone when closed and closes it when open.
func (s *Session) ToggleListening() {
	s.post(func() {
		if s.listener.Listening() {
			s.listener.Stop()
			return
		}
		s.startListening()
	})
}

// StartListening force-opens the microphone.
func (s *Session) StartListening() { s.post(s.startListening) }

// ClearError dismisses the error banner.
func (s *Session) ClearError() { s.post(func() { s.setError("") }) }

// Order returns a snapshot of the order state. The read happens on the loop goroutine.
func (s *Session) Order(ctx context.Context) (order.Snapshot, order.Profile, error) {
	type result struct {
		snap    order.Snapshot
		profile order.Profile
	}
	ch := make(chan result, 1)
	s.post(func() { ch <- result{s.state.Order, s.state.Profile} })
	select {
	case r := <-ch:
		return r.snap, r.profile, nil
	case <-ctx.Done():
		return order.Snapshot{}, order.Profile{}, ctx.Err()
	case <-s.done:
		return order.Snapshot{}, order.Profile{}, errors.New("agent: session closed")
	}
}

func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// timer schedules fn on the loop goroutine.
func (s *Session) timer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { s.post(fn) })
	return func() { t.Stop() }
}

func (s *Session) greet() {
	s.speakCanned(s.cfg.Greeting, true, false)
}

func (s *Session) teardown() {
	s.interrupt("teardown")
	s.listener.Close()
	s.sentinel.Deactivate()
}

func (s *Session) handleVoiceInput(text string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, cmd := range s.cfg.Listen.StopCommands {
		if strings.Contains(lower, strings.ToLower(cmd)) {
			s.logger.Info().Str("command", cmd).Msg("stop command heard")
			s.interrupt("stop_command")
			s.addMessage(text, SenderUser)
			s.speakCanned(StopAcknowledgement, false, false)
			return
		}
	}
	s.startTurn(text)
}

func (s *Session) startTurn(text string) {
	s.interrupt("new_input")
	s.state.BeginTurn()
	s.setError("")
	s.addMessage(text, SenderUser)

	t := newTurn(text, s.addMessage("", SenderAssistant))
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
	t.cancel = cancel
	s.turn = t

	history := make([]Message, len(s.history))
	copy(history, s.history)
	s.logger.Info().Str("turn_id", t.ID).Str("input", text).Msg("turn started")
	go s.consume(ctx, t, history, text)
}

// consume reads the stream on its own goroutine and forwards everything to the loop.
// It stops reading as soon as the turn's context is cancelled.
func (s *Session) consume(ctx context.Context, t *Turn, history []Message, text string) {
	stream, err := s.llm.Stream(ctx, history, text)
	if err != nil {
		s.post(func() { s.onStreamError(t, err) })
		return
	}
	defer stream.Close()
	for ctx.Err() == nil {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.post(func() { s.onStreamEnd(t) })
			return
		}
		if err != nil {
			s.post(func() { s.onStreamError(t, err) })
			return
		}
		s.post(func() { s.onFragment(t, frag) })
	}
}

func (s *Session) current(t *Turn) bool {
	return t == s.turn && !t.interrupted && !t.finalized
}

func (s *Session) onFragment(t *Turn, frag string) {
	if !s.current(t) || t.streamDone {
		return
	}
	if !t.gotFragment {
		t.gotFragment = true
		metrics.FirstFragmentLatency.Observe(time.Since(t.started).Seconds())
	}
	t.reply.WriteString(frag)
	s.emit(t, t.chunker.Feed(frag))
}

func (s *Session) onStreamEnd(t *Turn) {
	if !s.current(t) || t.streamDone {
		return
	}
	t.streamDone = true
	s.emit(t, t.chunker.Flush())
	if !s.queue.Busy() {
		s.finalize(t)
	}
}

func (s *Session) emit(t *Turn, res chunker.Result) {
	if res.Display != "" {
		t.displayed.WriteString(res.Display)
		s.observer.OnMessageAppend(t.MessageID, res.Display)
	}
	for _, sentence := range res.Sentences {
		s.say(sentence, false)
	}
}

func (s *Session) onStreamError(t *Turn, err error) {
	if !s.current(t) || t.streamDone {
		return
	}
	msg := apologyFor(err)
	s.logger.Error().Err(err).Str("turn_id", t.ID).Msg("llm stream failed")
	metrics.Turns.WithLabelValues(metrics.OutcomeFailed).Inc()

	t.stop()
	t.streamDone = true
	t.canned = true
	t.relistenSuppressed = true
	s.setError(msg)
	s.observer.OnMessageReplace(t.MessageID, msg)
	s.say(msg, false)
	if !s.queue.Busy() {
		s.finalize(t)
	}
}

// speakCanned voices a fixed line as its own turn.
func (s *Session) speakCanned(text string, greeting, relistenSuppressed bool) {
	t := newCannedTurn(s.addMessage(text, SenderAssistant), relistenSuppressed)
	s.turn = t
	s.say(text, greeting)
	if !s.queue.Busy() {
		s.finalize(t)
	}
}

func (s *Session) say(text string, greeting bool) {
	if u, ok := speech.New(text, greeting); ok {
		s.queue.Enqueue(u)
	}
}

// finalize closes a turn whose speech has drained: apply its trailer, then decide
// whether to listen again.
func (s *Session) finalize(t *Turn) {
	if t.finalized {
		return
	}
	t.finalized = true
	t.stop()
	if s.turn == t {
		s.turn = nil
	}

	hardError := s.errMessage != ""
	if !t.canned {
		s.applyTrailer(t)
		s.history = append(s.history, Message{Role: RoleUser, Text: t.Input}, Message{Role: RoleAssistant, Text: t.Reply()})
		metrics.Turns.WithLabelValues(metrics.OutcomeCompleted).Inc()
		s.logger.Info().Str("turn_id", t.ID).Dur("elapsed", time.Since(t.started)).Msg("turn completed")
	}
	s.maybeSubmitOrder()

	if s.state.Concluded() || t.relistenSuppressed || hardError || s.noRecognizer {
		s.sentinel.Activate()
		return
	}
	s.startListening()
}

func (s *Session) applyTrailer(t *Turn) {
	reply := t.Reply()
	if strings.TrimSpace(reply) == "" {
		return
	}
	_, err := s.state.ApplyReply(reply, s.cfg.Catalog)
	switch {
	case errors.Is(err, order.ErrNoTrailer):
		metrics.TrailerParses.WithLabelValues("missing").Inc()
		s.logger.Warn().Str("turn_id", t.ID).Msg("reply carried no structured trailer")
		return
	case err != nil:
		metrics.TrailerParses.WithLabelValues("malformed").Inc()
		s.logger.Error().Err(err).Str("turn_id", t.ID).Msg("structured trailer rejected")
		s.setError(invalidOrderUpdate)
		return
	}
	metrics.TrailerParses.WithLabelValues("applied").Inc()
	s.observer.OnOrder(s.state.Order, s.state.Profile)
}

func (s *Session) maybeSubmitOrder() {
	st := s.state
	if s.orders == nil || s.submitted || !st.Concluded() || st.Order.Empty() || !st.Profile.HasProvidedDetails {
		return
	}
	s.submitted = true
	snap, profile := st.Order, st.Profile
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 30*time.Second)
		defer cancel()
		if err := s.orders.Submit(ctx, s.id, snap, profile); err != nil {
			metrics.OrdersSubmitted.WithLabelValues("error").Inc()
			s.logger.Error().Err(err).Msg("order hand-off failed")
			return
		}
		metrics.OrdersSubmitted.WithLabelValues("ok").Inc()
		s.logger.Info().Str("total", snap.Total().StringFixed(2)).Msg("order handed off")
	}()
}

// interrupt hard-cancels speech and abandons the turn in flight.
func (s *Session) interrupt(source string) {
	busy := s.queue.Busy() || s.turn != nil
	s.queue.HardCancel()
	if t := s.turn; t != nil {
		t.interrupted = true
		t.stop()
		s.turn = nil
		if !t.canned {
			s.history = append(s.history, Message{Role: RoleUser, Text: t.Input}, Message{Role: RoleAssistant, Text: t.spokenHistory()})
			metrics.Turns.WithLabelValues(metrics.OutcomeInterrupted).Inc()
		}
	}
	if busy {
		metrics.Interruptions.WithLabelValues(source).Inc()
		s.logger.Info().Str("source", source).Msg("assistant interrupted")
	}
}

func (s *Session) stopButton() {
	s.interrupt("stop_button")
	if s.listener.Listening() {
		s.listener.Stop()
	}
	s.speakCanned(StopButtonAck, false, false)
}

func (s *Session) onVoicing(speech.Utterance) {
	metrics.Utterances.Inc()
	s.sentinel.Activate()
}

func (s *Session) onDrained() {
	t := s.turn
	if t == nil || !t.streamDone {
		// more of the reply may still arrive
		return
	}
	s.finalize(t)
}

func (s *Session) onSpeechError(_ speech.Utterance, err error) {
	s.logger.Error().Err(err).Msg("speech synthesis failed")
	s.setError(fmt.Sprintf("Speech synthesis error: %v.", err))
}

func (s *Session) startListening() {
	err := s.listener.Start()
	switch {
	case err == nil:
	case errors.Is(err, listen.ErrUnsupported):
		s.noRecognizer = true
		s.setError(unsupportedRecognizer)
		s.speakCanned(unsupportedRecognizer, false, true)
	default:
		s.logger.Error().Err(err).Msg("could not start listening")
		s.setError("Could not start voice recognition: " + err.Error())
	}
}

// beforeListening silences the assistant before the microphone opens.
func (s *Session) beforeListening() {
	s.interrupt("listen")
	s.sentinel.Deactivate()
}

func (s *Session) onNoSpeech() {
	s.sentinel.Activate()
}

func (s *Session) onListenState(st listen.State) {
	if st == listen.StateIdle && s.turn == nil && !s.queue.Busy() {
		s.sentinel.Activate()
	}
}

func (s *Session) routeRecognition(ev listen.Event) {
	if ev.Kind == listen.EventError {
		metrics.RecognitionErrors.WithLabelValues(string(ev.Code)).Inc()
	}
	if s.listener.Handle(ev) || s.sentinel.Handle(ev) {
		return
	}
	s.logger.Debug().Str("recognition_session", ev.SessionID).Stringer("kind", ev.Kind).Msg("stale recognition event dropped")
}

func (s *Session) addMessage(text string, sender Sender) string {
	id := uuid.NewString()
	s.observer.OnMessage(ChatMessage{ID: id, Text: text, Sender: sender, Time: time.Now()})
	return id
}

func (s *Session) setError(msg string) {
	if s.errMessage == msg {
		return
	}
	s.errMessage = msg
	s.observer.OnError(msg)
}

func (s *Session) phase() Phase {
	switch {
	case s.turn != nil && !s.turn.canned && !s.turn.gotFragment:
		return PhaseAwaiting
	case s.turn != nil || s.queue.Busy():
		return PhaseStreaming
	case s.state.Concluded():
		return PhaseConcluded
	}
	return PhaseIdle
}

func (s *Session) publishStatus() {
	st := Status{
		Phase:         s.phase(),
		Listening:     s.listener.Listening(),
		Speaking:      s.queue.Speaking(),
		WakeListening: s.sentinel.Active(),
	}
	if st == s.lastStatus {
		return
	}
	s.lastStatus = st
	s.observer.OnStatus(st)
}

// sentinelHost exposes the loop state the wake-word sentinel consults.
type sentinelHost struct{ s *Session }

func (h sentinelHost) Speaking() bool { return h.s.queue.Busy() }

func (h sentinelHost) TurnInFlight() bool {
	t := h.s.turn
	return t != nil && !t.streamDone
}

func (h sentinelHost) Listening() bool         { return h.s.listener.Listening() }
func (h sentinelHost) Interrupt(source string) { h.s.interrupt(source) }
func (h sentinelHost) StartListening()         { h.s.startListening() }
