package rtc

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const (
	micSampleRate = 16000
	// micChunkBytes is 100ms of 16kHz PCM16, inside the recognizer's accepted chunk range.
	micChunkBytes = 3200
)

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type frameDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// micPipeline decodes the caller's Opus audio to 16kHz PCM, meters it, and hands it to
// the recognizer in fixed-size chunks.
type micPipeline struct {
	dec   frameDecoder
	feed  func([]byte)
	meter *ActivityMeter
	level func(float64)
	log   zerolog.Logger

	buf     []byte
	samples []int16
}

func newMicPipeline(feed func([]byte), meter *ActivityMeter, level func(float64), logger zerolog.Logger) (*micPipeline, error) {
	dec, err := opus.NewDecoder(micSampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &micPipeline{dec: dec, feed: feed, meter: meter, level: level, log: logger, samples: make([]int16, 1920)}, nil
}

// run reads until the track ends.
func (m *micPipeline) run(src rtpReader) {
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Warn().Err(err).Msg("mic: rtp read")
			}
			return
		}
		m.push(pkt.Payload)
	}
}

func (m *micPipeline) push(payload []byte) {
	if len(payload) == 0 {
		return
	}
	n, err := m.dec.Decode(payload, m.samples)
	if err != nil {
		m.log.Debug().Err(err).Msg("mic: opus decode")
		return
	}
	pcm := m.samples[:n]
	if m.level != nil {
		m.level(m.meter.Observe(pcm))
	}
	for _, s := range pcm {
		m.buf = binary.LittleEndian.AppendUint16(m.buf, uint16(s))
	}
	for len(m.buf) >= micChunkBytes {
		chunk := make([]byte, micChunkBytes)
		copy(chunk, m.buf)
		m.feed(chunk)
		m.buf = append(m.buf[:0], m.buf[micChunkBytes:]...)
	}
}
