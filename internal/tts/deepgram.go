package tts

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/rs/zerolog/log"
)

const (
	deepgramIdleWindow = 400 * time.Millisecond
	deepgramMaxSpeak   = 20 * time.Second
)

// DeepgramClient synthesizes speech with Deepgram Aura over the speak websocket.
type DeepgramClient struct {
	apiKey string
	voice  Voice
}

// NewDeepgramClient picks the named Aura model, or the preferred en-US voice when model is empty.
func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	v, ok := VoiceByModel(AuraVoices, model)
	if !ok {
		v, _ = SelectVoice(AuraVoices)
		if model != "" {
			v = Voice{Model: model, Lang: "en-US"}
		}
	}
	return &DeepgramClient{apiKey: apiKey, voice: v}
}

// Voice reports the Aura voice in use.
func (d *DeepgramClient) Voice() Voice { return d.voice }

// StreamPCM48k speaks text as linear16 48kHz PCM. Deepgram does not signal the end of
// synthesis on the websocket, so the stream closes once audio stops arriving for a short window.
func (d *DeepgramClient) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- fmt.Errorf("deepgram: API key missing")
			return
		}
		if text == "" {
			return
		}

		var lastAudio atomic.Int64
		cb := &speakCallback{onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			lastAudio.Store(time.Now().UnixNano())
			b := make([]byte, len(data))
			copy(b, data)
			select {
			case pcmCh <- b:
			case <-ctx.Done():
			}
			return nil
		}, onError: func(msg string) {
			log.Warn().Str("voice", d.voice.Model).Str("error", msg).Msg("deepgram: speak error")
		}}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      d.voice.Model,
			Encoding:   "linear16",
			SampleRate: 48000,
		}
		dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- fmt.Errorf("deepgram: create ws client: %w", err)
			return
		}
		defer dg.Stop()

		if ok := dg.Connect(); !ok {
			errCh <- fmt.Errorf("deepgram: connect failed")
			return
		}
		if err := dg.SpeakWithText(text); err != nil {
			errCh <- fmt.Errorf("deepgram: speak text: %w", err)
			return
		}
		if err := dg.Flush(); err != nil {
			log.Warn().Err(err).Msg("deepgram: flush")
		}

		if err := waitQuiet(ctx, &lastAudio, deepgramIdleWindow, deepgramMaxSpeak); err != nil {
			errCh <- err
		}
	}()

	return pcmCh, errCh
}

// waitQuiet returns once audio has arrived and then stayed silent for idle, or when max elapses.
func waitQuiet(ctx context.Context, last *atomic.Int64, idle, max time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(max)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if ts := last.Load(); ts != 0 && now.Sub(time.Unix(0, ts)) > idle {
				return nil
			}
			if now.After(deadline) {
				if last.Load() == 0 {
					return fmt.Errorf("deepgram: no audio within %s", max)
				}
				return nil
			}
		}
	}
}

type speakCallback struct {
	onBinary func([]byte) error
	onError  func(string)
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCallback) Error(er *msginterfaces.ErrorResponse) error {
	if s.onError != nil && er != nil {
		s.onError(er.ErrMsg)
	}
	return nil
}

func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
