package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	sampleRate    = 48000
	frameSamples  = 960 // 20ms at 48kHz
	frameDuration = 20 * time.Millisecond
	tailFrames    = 10
)

type sampleWriter interface {
	WriteSample(media.Sample) error
}

type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// OpusPacedWriter encodes 48kHz mono PCM to 20ms Opus frames and writes them to a track
// in real time. It implements tts.Sink.
type OpusPacedWriter struct {
	enc     frameEncoder
	track   sampleWriter
	frames  chan []byte
	pending atomic.Int64
	stopCh  chan struct{}

	mu      sync.Mutex
	pcmBuf  []int16
	stopped bool
}

// NewOpusPacedWriter starts the pacer for track.
func NewOpusPacedWriter(track sampleWriter) (*OpusPacedWriter, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := newPacedWriter(enc, track)
	go w.pacer()
	return w, nil
}

func newPacedWriter(enc frameEncoder, track sampleWriter) *OpusPacedWriter {
	return &OpusPacedWriter{
		enc:    enc,
		track:  track,
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
}

// WritePCM buffers little-endian PCM and queues every complete frame.
func (w *OpusPacedWriter) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		w.pcmBuf = append(w.pcmBuf, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	for len(w.pcmBuf) >= frameSamples {
		w.encodeFrame(w.pcmBuf[:frameSamples])
		w.pcmBuf = append(w.pcmBuf[:0], w.pcmBuf[frameSamples:]...)
	}
}

// FlushTail pads the partial frame and appends a short silence so the last syllable is not clipped.
func (w *OpusPacedWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pcmBuf) > 0 {
		pad := make([]int16, frameSamples)
		copy(pad, w.pcmBuf)
		w.encodeFrame(pad)
		w.pcmBuf = w.pcmBuf[:0]
	}
	silence := make([]int16, frameSamples)
	for i := 0; i < tailFrames; i++ {
		w.encodeFrame(silence)
	}
}

// WaitDrained blocks until every queued frame has been written to the track.
func (w *OpusPacedWriter) WaitDrained(ctx context.Context) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for w.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Reset drops queued frames and buffered PCM for immediate silence.
func (w *OpusPacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = w.pcmBuf[:0]
	for {
		select {
		case <-w.frames:
			w.pending.Add(-1)
		default:
			return
		}
	}
}

// Close stops the pacer.
func (w *OpusPacedWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

// encodeFrame must be called with w.mu held.
func (w *OpusPacedWriter) encodeFrame(frame []int16) {
	buf := make([]byte, 4000)
	n, err := w.enc.Encode(frame, buf)
	if err != nil || n == 0 {
		return
	}
	w.pushFrame(buf[:n])
}

func (w *OpusPacedWriter) pushFrame(pkt []byte) {
	w.pending.Add(1)
	select {
	case w.frames <- pkt:
	case <-w.stopCh:
		w.pending.Add(-1)
	}
}

func (w *OpusPacedWriter) pacer() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
				w.pending.Add(-1)
			default:
			}
		}
	}
}
