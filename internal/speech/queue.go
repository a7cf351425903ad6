package speech

import (
	"errors"
)

// Hooks connect the queue to its owner. Every hook is optional and is called
// synchronously from the method that triggered it.
type Hooks struct {
	// OnVoicing fires each time an utterance is handed to the speaker.
	OnVoicing func(u Utterance)
	// OnDrained fires once when the last utterance finishes and the queue goes idle.
	OnDrained func()
	// OnError reports a synthesis failure that should be shown to the user.
	OnError func(u Utterance, err error)
}

// Queue voices utterances strictly in insertion order, one at a time. It is driven by a
// single goroutine: Enqueue, Handle and HardCancel must not be called concurrently.
type Queue struct {
	speaker Speaker
	hooks   Hooks

	pending []Utterance
	current *Utterance
}

// NewQueue returns an idle queue that voices through speaker.
func NewQueue(speaker Speaker, hooks Hooks) *Queue {
	return &Queue{speaker: speaker, hooks: hooks}
}

// Speaking reports whether an utterance is currently being voiced.
func (q *Queue) Speaking() bool { return q.current != nil }

// Busy reports whether anything is voicing or waiting.
func (q *Queue) Busy() bool { return q.current != nil || len(q.pending) > 0 }

// Items returns the voicing head followed by the pending utterances.
func (q *Queue) Items() []Utterance {
	out := make([]Utterance, 0, len(q.pending)+1)
	if q.current != nil {
		out = append(out, *q.current)
	}
	return append(out, q.pending...)
}

// Enqueue appends u and starts voicing it immediately when the queue is idle.
func (q *Queue) Enqueue(u Utterance) {
	q.pending = append(q.pending, u)
	if q.current == nil {
		q.next()
	}
}

// Handle advances the queue on end and error events. Events for anything other than the
// voicing head are leftovers of a hard cancel and are ignored.
func (q *Queue) Handle(ev Event) {
	if q.current == nil || ev.UtteranceID != q.current.ID {
		return
	}
	switch ev.Kind {
	case EventEnd:
	case EventError:
		q.report(*q.current, ev.Err)
	default:
		return
	}
	q.current = nil
	q.next()
}

// HardCancel silences the speaker and empties the queue without signalling a drain.
func (q *Queue) HardCancel() {
	q.pending = nil
	q.current = nil
	q.speaker.Cancel()
}

func (q *Queue) next() {
	for len(q.pending) > 0 {
		u := q.pending[0]
		q.pending = q.pending[1:]
		q.current = &u
		if q.hooks.OnVoicing != nil {
			q.hooks.OnVoicing(u)
		}
		if err := q.speaker.Speak(u); err != nil {
			q.report(u, err)
			q.current = nil
			continue
		}
		return
	}
	if q.hooks.OnDrained != nil {
		q.hooks.OnDrained()
	}
}

func (q *Queue) report(u Utterance, err error) {
	if err == nil || ignorable(u, err) || q.hooks.OnError == nil {
		return
	}
	q.hooks.OnError(u, err)
}

// ignorable filters synthesis errors that are artifacts of cancellation, and a blocked
// greeting before the user has interacted with the page.
func ignorable(u Utterance, err error) bool {
	if errors.Is(err, ErrCanceled) || errors.Is(err, ErrInterrupted) {
		return true
	}
	return u.Greeting && errors.Is(err, ErrNotAllowed)
}
