package speech

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpeaker struct {
	spoken   []string
	active   int
	maxAct   int
	cancels  int
	failNext error
	events   chan Event
}

func (f *fakeSpeaker) Speak(u Utterance) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.active++
	if f.active > f.maxAct {
		f.maxAct = f.active
	}
	f.spoken = append(f.spoken, u.Text)
	return nil
}

func (f *fakeSpeaker) Cancel()              { f.cancels++; f.active = 0 }
func (f *fakeSpeaker) Events() <-chan Event { return f.events }

// finish simulates the engine finishing the head utterance.
func finish(q *Queue, f *fakeSpeaker, kind EventKind, err error) {
	head := q.Items()[0]
	f.active--
	q.Handle(Event{UtteranceID: head.ID, Kind: kind, Err: err})
}

func utter(t *testing.T, text string) Utterance {
	t.Helper()
	u, ok := New(text, false)
	require.True(t, ok)
	return u
}

func TestQueue_PlaysInEnqueueOrderOneAtATime(t *testing.T) {
	sp := &fakeSpeaker{}
	drained := 0
	q := NewQueue(sp, Hooks{OnDrained: func() { drained++ }})

	q.Enqueue(utter(t, "one."))
	q.Enqueue(utter(t, "two."))
	q.Enqueue(utter(t, "three."))
	assert.True(t, q.Speaking())
	assert.Equal(t, []string{"one."}, sp.spoken)

	finish(q, sp, EventEnd, nil)
	finish(q, sp, EventError, errors.New("synthesis-failed"))
	assert.Equal(t, 0, drained)
	finish(q, sp, EventEnd, nil)

	assert.Equal(t, []string{"one.", "two.", "three."}, sp.spoken)
	assert.Equal(t, 1, sp.maxAct)
	assert.Equal(t, 1, drained)
	assert.False(t, q.Busy())
}

func TestQueue_StartEventDoesNotAdvance(t *testing.T) {
	sp := &fakeSpeaker{}
	q := NewQueue(sp, Hooks{})
	u := utter(t, "hello.")
	q.Enqueue(u)
	q.Handle(Event{UtteranceID: u.ID, Kind: EventStart})
	assert.True(t, q.Speaking())
}

func TestQueue_HardCancelThenEnqueue(t *testing.T) {
	sp := &fakeSpeaker{}
	drained := 0
	q := NewQueue(sp, Hooks{OnDrained: func() { drained++ }})
	old := utter(t, "old one.")
	q.Enqueue(old)
	q.Enqueue(utter(t, "old two."))

	q.HardCancel()
	assert.False(t, q.Speaking())
	assert.Empty(t, q.Items())
	assert.Equal(t, 1, sp.cancels)

	x := utter(t, "fresh.")
	q.Enqueue(x)
	assert.Equal(t, []Utterance{x}, q.Items())
	assert.True(t, q.Speaking())

	// the engine reports the cancelled utterance late; it must not pop the new head
	q.Handle(Event{UtteranceID: old.ID, Kind: EventError, Err: ErrCanceled})
	assert.Equal(t, []Utterance{x}, q.Items())
	assert.Equal(t, 0, drained)
}

func TestQueue_ErrorReporting(t *testing.T) {
	sp := &fakeSpeaker{}
	var reported []error
	q := NewQueue(sp, Hooks{OnError: func(_ Utterance, err error) { reported = append(reported, err) }})

	greet, _ := New("Hi there.", true)
	q.Enqueue(greet)
	finish(q, sp, EventError, ErrNotAllowed)

	q.Enqueue(utter(t, "a."))
	finish(q, sp, EventError, ErrInterrupted)
	q.Enqueue(utter(t, "b."))
	finish(q, sp, EventError, ErrCanceled)
	assert.Empty(t, reported)

	q.Enqueue(utter(t, "c."))
	finish(q, sp, EventError, ErrNotAllowed)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrNotAllowed)
}

func TestQueue_SpeakFailureSkipsToNext(t *testing.T) {
	sp := &fakeSpeaker{failNext: errors.New("engine busy")}
	drained, errs := 0, 0
	q := NewQueue(sp, Hooks{
		OnDrained: func() { drained++ },
		OnError:   func(Utterance, error) { errs++ },
	})
	q.Enqueue(utter(t, "lost."))
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, drained)
	assert.False(t, q.Busy())
}

func TestQueue_VoicingHookFiresPerUtterance(t *testing.T) {
	sp := &fakeSpeaker{}
	var voiced []string
	q := NewQueue(sp, Hooks{OnVoicing: func(u Utterance) { voiced = append(voiced, u.Text) }})
	q.Enqueue(utter(t, "a."))
	q.Enqueue(utter(t, "b."))
	finish(q, sp, EventEnd, nil)
	assert.Equal(t, []string{"a.", "b."}, voiced)
}
