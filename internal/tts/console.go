package tts

import (
	"fmt"
	"io"
	"sync"

	"github.com/Rituearth/SADDIE-2.0/internal/speech"
)

// ConsoleSpeaker prints utterances instead of voicing them. Every utterance finishes at once.
type ConsoleSpeaker struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
	events chan speech.Event
}

func NewConsoleSpeaker(w io.Writer, prefix string) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, prefix: prefix, events: make(chan speech.Event, 64)}
}

func (c *ConsoleSpeaker) Events() <-chan speech.Event { return c.events }

func (c *ConsoleSpeaker) Speak(u speech.Utterance) error {
	c.mu.Lock()
	_, err := fmt.Fprintf(c.w, "%s%s\n", c.prefix, u.Text)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	go func() {
		c.events <- speech.Event{UtteranceID: u.ID, Kind: speech.EventStart}
		c.events <- speech.Event{UtteranceID: u.ID, Kind: speech.EventEnd}
	}()
	return nil
}

func (c *ConsoleSpeaker) Cancel() {}
