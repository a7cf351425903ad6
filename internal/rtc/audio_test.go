package rtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct{ writes atomic.Int32 }

func (f *fakeTrack) WriteSample(media.Sample) error {
	f.writes.Add(1)
	return nil
}

// fakeEncoder emits one byte per frame carrying the first sample's low byte.
type fakeEncoder struct{ frames int }

func (f *fakeEncoder) Encode(pcm []int16, data []byte) (int, error) {
	f.frames++
	data[0] = byte(pcm[0])
	return 1, nil
}

func pcmBytes(samples int, v int16) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		b[2*i] = byte(v)
		b[2*i+1] = byte(uint16(v) >> 8)
	}
	return b
}

func TestPacedWriter_EncodesWholeFrames(t *testing.T) {
	enc := &fakeEncoder{}
	w := newPacedWriter(enc, &fakeTrack{})

	w.WritePCM(pcmBytes(frameSamples+100, 5))
	assert.Equal(t, 1, enc.frames)
	assert.Len(t, w.pcmBuf, 100)
	assert.EqualValues(t, 1, w.pending.Load())

	w.FlushTail()
	assert.Equal(t, 2+tailFrames, enc.frames)
	assert.Empty(t, w.pcmBuf)
	assert.EqualValues(t, 2+tailFrames, w.pending.Load())
}

func TestPacedWriter_PacerDrains(t *testing.T) {
	ft := &fakeTrack{}
	w := newPacedWriter(&fakeEncoder{}, ft)
	go w.pacer()
	defer w.Close()

	w.WritePCM(pcmBytes(frameSamples*3, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.WaitDrained(ctx))
	assert.EqualValues(t, 3, ft.writes.Load())
}

func TestPacedWriter_ResetDrops(t *testing.T) {
	w := newPacedWriter(&fakeEncoder{}, &fakeTrack{})
	w.WritePCM(pcmBytes(frameSamples*2+10, 1))
	w.Reset()

	assert.Empty(t, w.pcmBuf)
	assert.Zero(t, w.pending.Load())
	select {
	case <-w.frames:
		t.Fatal("expected frames to be dropped")
	default:
	}
	assert.NoError(t, w.WaitDrained(context.Background()))
}

func TestPacedWriter_WaitDrainedHonoursContext(t *testing.T) {
	w := newPacedWriter(&fakeEncoder{}, &fakeTrack{})
	w.WritePCM(pcmBytes(frameSamples, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.WaitDrained(ctx), context.DeadlineExceeded)
}

func TestActivityMeter(t *testing.T) {
	var m ActivityMeter
	assert.Zero(t, m.Observe(make([]int16, 160)))

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 16000
	}
	assert.Equal(t, 1.0, m.Observe(loud))
	decayed := m.Observe(make([]int16, 160))
	assert.InDelta(t, meterDecay, decayed, 1e-9)
	assert.Equal(t, decayed, m.Level())
}

type fakeDecoder struct{ n int }

func (f fakeDecoder) Decode(_ []byte, pcm []int16) (int, error) {
	for i := 0; i < f.n; i++ {
		pcm[i] = 100
	}
	return f.n, nil
}

func TestMicPipeline_ChunksAudio(t *testing.T) {
	var chunks [][]byte
	var levels []float64
	m := &micPipeline{
		dec:     fakeDecoder{n: 320},
		feed:    func(b []byte) { chunks = append(chunks, b) },
		meter:   &ActivityMeter{},
		level:   func(l float64) { levels = append(levels, l) },
		samples: make([]int16, 1920),
	}
	for i := 0; i < 6; i++ {
		m.push([]byte{0xf8})
	}
	m.push(nil)

	// 6 packets * 640 bytes = 3840 bytes: one full chunk, 640 left over
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], micChunkBytes)
	assert.Len(t, m.buf, 640)
	assert.Len(t, levels, 6)
	assert.Equal(t, byte(100), chunks[0][0])
}
