package rtc

import (
	"math"
	"sync"
)

const (
	// fullScaleRMS is the RMS that maps to activity level 1.
	fullScaleRMS = 8000.0
	meterDecay   = 0.6
)

// ActivityMeter turns microphone PCM into a smoothed 0..1 activity level.
type ActivityMeter struct {
	mu    sync.Mutex
	level float64
}

// Observe folds one PCM16 chunk into the level and returns it.
func (m *ActivityMeter) Observe(samples []int16) float64 {
	v := math.Min(rms(samples)/fullScaleRMS, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.level {
		m.level = v
	} else {
		m.level = m.level*meterDecay + v*(1-meterDecay)
	}
	return m.level
}

func (m *ActivityMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
