// Package vad decides which microphone frames carry speech and cuts the
// stream into utterances.
package vad

import "math"

// DefaultThreshold is the RMS level above which a frame counts as speech.
// Typical rooms sit between 500 and 2000 for 16-bit samples.
const DefaultThreshold = 1000.0

// Engine is an energy gate over 16-bit PCM frames.
type Engine struct {
	threshold float64
}

// NewEngine returns an Engine; a threshold <= 0 selects DefaultThreshold.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{threshold: threshold}
}

// IsSpeech reports whether the frame's RMS energy is above the threshold.
func (e *Engine) IsSpeech(frame []int16) bool {
	return RMS(frame) > e.threshold
}

func (e *Engine) Threshold() float64 { return e.threshold }

// RMS is the root mean square of the samples.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
