package listen

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id       string
	opts     Options
	started  bool
	stopped  bool
	aborted  bool
	startErr error
}

func (f *fakeSession) ID() string   { return f.id }
func (f *fakeSession) Start() error { f.started = true; return f.startErr }
func (f *fakeSession) Stop()        { f.stopped = true }
func (f *fakeSession) Abort()       { f.aborted = true }

type fakeRecognizer struct {
	sessions []*fakeSession
	openErr  error
}

func (r *fakeRecognizer) Open(opts Options, _ chan<- Event) (Session, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	s := &fakeSession{id: fmt.Sprintf("s%d", len(r.sessions)+1), opts: opts}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecognizer) last() *fakeSession { return r.sessions[len(r.sessions)-1] }

type fakeHost struct {
	speaking, inFlight, listening bool
	interrupts                    []string
	starts                        int
}

func (h *fakeHost) Speaking() bool     { return h.speaking }
func (h *fakeHost) TurnInFlight() bool { return h.inFlight }
func (h *fakeHost) Listening() bool    { return h.listening }
func (h *fakeHost) StartListening()    { h.starts++; h.listening = true }

func (h *fakeHost) Interrupt(source string) {
	h.interrupts = append(h.interrupts, source)
	h.speaking = false
}

type timer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

type fakeClock struct{ timers []*timer }

func (c *fakeClock) after(d time.Duration, fn func()) func() {
	t := &timer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return func() { t.stopped = true }
}

// fire runs the pending timer with duration d.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	for _, tm := range c.timers {
		if tm.d == d && !tm.stopped {
			tm.stopped = true
			tm.fn()
			return
		}
	}
	t.Fatalf("no pending timer for %s", d)
}

func result(id, text string, conf float64) Event {
	return Event{SessionID: id, Kind: EventResult, Alternatives: []Alternative{{Transcript: text, Confidence: conf}}}
}

func TestDetect_WakePhraseRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WakeWords = []string{"saddie"}

	d := cfg.Detect("saddie", 0.9)
	assert.Equal(t, "saddie", d.WakeWord)
	assert.True(t, d.Accepted)

	d = cfg.Detect("can you tell saddie jones something", 1.0)
	assert.Equal(t, "saddie", d.WakeWord)
	assert.False(t, d.Accepted)

	d = cfg.Detect("saddie", 0.5)
	assert.False(t, d.Accepted)

	assert.Empty(t, cfg.Detect("saddiee please", 1).WakeWord)
	assert.True(t, cfg.Detect("okay saddie", 1).Accepted)
	assert.True(t, cfg.Detect("saddie one two", 1).Accepted)
	assert.False(t, cfg.Detect("saddie one two three", 1).Accepted)
}

func TestDetect_StopCommandsBySubstring(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "stop", cfg.Detect("please stop talking", 1).StopCommand)
	assert.Equal(t, "hold on", cfg.Detect("hold on a second", 1).StopCommand)
	assert.Empty(t, cfg.Detect("two pepperoni pizzas", 1).StopCommand)
}

func newSentinel(host *fakeHost) (*Sentinel, *fakeRecognizer, *fakeClock) {
	rec := &fakeRecognizer{}
	clock := &fakeClock{}
	return NewSentinel(rec, DefaultConfig(), make(chan Event, 1), host, clock.after), rec, clock
}

func TestSentinel_StopCommandInterruptsWhileSpeaking(t *testing.T) {
	host := &fakeHost{speaking: true}
	s, rec, _ := newSentinel(host)
	s.Activate()
	require.Len(t, rec.sessions, 1)
	assert.True(t, rec.last().opts.Continuous)

	assert.True(t, s.Handle(result("s1", "Stop", 0)))
	assert.Equal(t, []string{"stop_command"}, host.interrupts)
	assert.Zero(t, host.starts)
	assert.True(t, s.Active())
}

func TestSentinel_StopCommandIgnoredWhenIdle(t *testing.T) {
	host := &fakeHost{}
	s, _, _ := newSentinel(host)
	s.Activate()
	s.Handle(result("s1", "stop", 0.9))
	assert.Empty(t, host.interrupts)
	assert.Zero(t, host.starts)
}

func TestSentinel_WakeWordStartsListeningAndRearms(t *testing.T) {
	host := &fakeHost{inFlight: true}
	s, rec, clock := newSentinel(host)
	s.Activate()

	s.Handle(result("s1", "Hey Saddie", 0.9))
	assert.Equal(t, []string{"wake_word"}, host.interrupts)
	assert.Equal(t, 1, host.starts)
	assert.False(t, s.Active())
	assert.True(t, rec.sessions[0].aborted)

	// later events of the paused session are not ours
	assert.False(t, s.Handle(result("s1", "saddie", 0.9)))

	host.listening = false
	clock.fire(t, 8*time.Second)
	assert.True(t, s.Active())
	assert.Len(t, rec.sessions, 2)
}

func TestSentinel_LongTranscriptDoesNotWake(t *testing.T) {
	host := &fakeHost{speaking: true}
	s, _, _ := newSentinel(host)
	s.Activate()
	s.Handle(result("s1", "can you tell saddie jones something", 1.0))
	assert.Zero(t, host.starts)
	assert.Empty(t, host.interrupts)
	assert.True(t, s.Active())
}

func TestSentinel_RestartsAfterEnd(t *testing.T) {
	host := &fakeHost{}
	s, rec, clock := newSentinel(host)
	s.Activate()

	s.Handle(Event{SessionID: "s1", Kind: EventEnd})
	clock.fire(t, time.Second)
	assert.Len(t, rec.sessions, 2)

	// no restart while the main controller is listening
	host.listening = true
	s.Handle(Event{SessionID: "s2", Kind: EventEnd})
	assert.Len(t, clock.timers, 1)
}

func TestSentinel_RestartFailureIsSwallowed(t *testing.T) {
	host := &fakeHost{}
	s, rec, clock := newSentinel(host)
	s.Activate()
	s.Handle(Event{SessionID: "s1", Kind: EventEnd})
	rec.openErr = errors.New("mic busy")
	clock.fire(t, time.Second)
	assert.True(t, s.Active())
	assert.Len(t, rec.sessions, 1)
}

func TestSentinel_DeactivateCancelsTimers(t *testing.T) {
	host := &fakeHost{}
	s, _, clock := newSentinel(host)
	s.Activate()
	s.Handle(result("s1", "saddie", 0.9))
	s.Deactivate()
	require.Len(t, clock.timers, 1)
	assert.True(t, clock.timers[0].stopped)
}

type controllerSpy struct {
	beforeStart int
	transcripts []string
	noSpeech    int
	errors      []ErrorCode
}

func newController(rec Recognizer) (*Controller, *controllerSpy) {
	return newControllerWith(rec, DefaultConfig())
}

func newControllerWith(rec Recognizer, cfg Config) (*Controller, *controllerSpy) {
	p := &controllerSpy{}
	c := NewController(rec, cfg, make(chan Event, 1), ControllerHooks{
		BeforeStart:  func() { p.beforeStart++ },
		OnTranscript: func(text string) { p.transcripts = append(p.transcripts, text) },
		OnNoSpeech:   func() { p.noSpeech++ },
		OnError:      func(code ErrorCode, _ string) { p.errors = append(p.errors, code) },
	})
	return c, p
}

func TestController_StartLifecycle(t *testing.T) {
	rec := &fakeRecognizer{}
	c, p := newController(rec)

	require.NoError(t, c.Start())
	assert.Equal(t, 1, p.beforeStart)
	assert.Equal(t, StateStarting, c.State())
	assert.False(t, rec.last().opts.Continuous)
	assert.True(t, c.Listening())

	c.Handle(Event{SessionID: "s1", Kind: EventStart})
	assert.Equal(t, StateListening, c.State())

	// rejected while listening
	require.NoError(t, c.Start())
	assert.Len(t, rec.sessions, 1)
	assert.Equal(t, 1, p.beforeStart)

	c.Handle(result("s1", "two garlic knots please", 0.9))
	c.Handle(Event{SessionID: "s1", Kind: EventEnd})
	assert.Equal(t, []string{"two garlic knots please"}, p.transcripts)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_AcceptanceRule(t *testing.T) {
	rec := &fakeRecognizer{}
	c, p := newController(rec)
	require.NoError(t, c.Start())

	c.Handle(result("s1", "yes", 0.4))        // short and unsure
	c.Handle(result("s1", "yes", 0.8))        // confident
	c.Handle(result("s1", "large soda", 0.2)) // long enough
	c.Handle(result("s1", "no", 0))           // missing confidence counts as certain
	assert.Equal(t, []string{"yes", "large soda", "no"}, p.transcripts)
}

func TestController_UsesItsOwnConfidenceThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WakeConfidence = 0.95
	cfg.MinConfidence = 0.5
	c, p := newControllerWith(&fakeRecognizer{}, cfg)
	require.NoError(t, c.Start())

	c.Handle(result("s1", "yes", 0.6))
	c.Handle(result("s1", "no", 0.4))
	assert.Equal(t, []string{"yes"}, p.transcripts)
}

func TestController_ErrorClassification(t *testing.T) {
	rec := &fakeRecognizer{}
	c, p := newController(rec)

	for _, code := range []ErrorCode{CodeNoSpeech, CodeAudioCapture, CodeNotAllowed, CodeNetwork, CodeAborted} {
		require.NoError(t, c.Start())
		id := rec.last().ID()
		c.Handle(Event{SessionID: id, Kind: EventStart})
		c.Handle(Event{SessionID: id, Kind: EventError, Code: code})
		assert.Equal(t, StateIdle, c.State())
	}
	assert.Equal(t, 1, p.noSpeech)
	assert.Equal(t, []ErrorCode{CodeAudioCapture, CodeNotAllowed, CodeNetwork}, p.errors)
}

func TestController_RestartAbortsPreviousSession(t *testing.T) {
	rec := &fakeRecognizer{}
	c, p := newController(rec)
	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	require.Len(t, rec.sessions, 2)
	assert.True(t, rec.sessions[0].aborted)

	// results from the aborted session are ignored
	assert.False(t, c.Handle(result("s1", "hello there", 1)))
	assert.Empty(t, p.transcripts)
}

func TestController_UnsupportedRecognizer(t *testing.T) {
	c, _ := newController(&fakeRecognizer{openErr: ErrUnsupported})
	err := c.Start()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_Stop(t *testing.T) {
	rec := &fakeRecognizer{}
	c, _ := newController(rec)
	require.NoError(t, c.Start())
	c.Stop()
	assert.Equal(t, StateEnding, c.State())
	assert.True(t, rec.last().stopped)
	c.Handle(Event{SessionID: "s1", Kind: EventEnd})
	assert.Equal(t, StateIdle, c.State())
}
