// Package tts voices utterances: a Synthesizer turns text into 48kHz PCM and a Sink plays it.
package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rituearth/SADDIE-2.0/internal/speech"
	"github.com/rs/zerolog/log"
)

// Synthesizer streams 48kHz 16-bit mono PCM for text. Both channels are closed when done.
type Synthesizer interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Sink plays 48kHz PCM and paces delivery itself.
type Sink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops queued audio immediately.
	Reset()
	// WaitDrained blocks until queued audio has played or ctx ends.
	WaitDrained(ctx context.Context) error
}

// Speaker drives one Synthesizer into one Sink, one utterance at a time, and reports
// progress as speech events.
type Speaker struct {
	synth  Synthesizer
	sink   Sink
	events chan speech.Event
	closed chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	once   sync.Once

	// writeMu orders sink writes against Reset so no audio outlives a Cancel.
	writeMu sync.Mutex
}

// NewSpeaker returns a Speaker that plays synth's audio on sink.
func NewSpeaker(synth Synthesizer, sink Sink) *Speaker {
	return &Speaker{
		synth:  synth,
		sink:   sink,
		events: make(chan speech.Event, 64),
		closed: make(chan struct{}),
	}
}

// Events reports start, end and error per utterance.
func (s *Speaker) Events() <-chan speech.Event { return s.events }

// Speak starts voicing u and returns immediately.
func (s *Speaker) Speak(u speech.Utterance) error {
	select {
	case <-s.closed:
		return fmt.Errorf("tts: speaker closed")
	default:
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.play(ctx, u)
	return nil
}

// Cancel silences the current utterance at once.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.writeMu.Lock()
	s.sink.Reset()
	s.writeMu.Unlock()
}

// Close cancels playback and stops event delivery.
func (s *Speaker) Close() {
	s.Cancel()
	s.once.Do(func() { close(s.closed) })
}

func (s *Speaker) play(ctx context.Context, u speech.Utterance) {
	s.emit(speech.Event{UtteranceID: u.ID, Kind: speech.EventStart})

	pcmCh, errCh := s.synth.StreamPCM48k(ctx, u.Text)
	var synthErr error
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			if len(b) > 0 {
				s.write(ctx, b)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && synthErr == nil {
				synthErr = err
			}
		case <-ctx.Done():
			pcmCh, errCh = nil, nil
		}
	}

	switch {
	case ctx.Err() != nil:
		s.emit(speech.Event{UtteranceID: u.ID, Kind: speech.EventError, Err: speech.ErrCanceled})
		return
	case synthErr != nil:
		log.Error().Err(synthErr).Str("utterance_id", u.ID).Msg("tts: synthesis failed")
		s.emit(speech.Event{UtteranceID: u.ID, Kind: speech.EventError, Err: synthErr})
		return
	}

	s.sink.FlushTail()
	if err := s.sink.WaitDrained(ctx); err != nil {
		s.emit(speech.Event{UtteranceID: u.ID, Kind: speech.EventError, Err: speech.ErrInterrupted})
		return
	}
	s.emit(speech.Event{UtteranceID: u.ID, Kind: speech.EventEnd})
}

func (s *Speaker) write(ctx context.Context, b []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if ctx.Err() == nil {
		s.sink.WritePCM(b)
	}
}

func (s *Speaker) emit(ev speech.Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}
