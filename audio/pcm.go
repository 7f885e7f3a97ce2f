// Package audio moves PCM between the process and the sound card: microphone
// capture, playback, and the ready chime.
package audio

import (
	"context"
	"encoding/binary"
	"math"
)

// SampleRate is the capture rate every recognizer in this module expects.
const SampleRate = 16000

// FrameSamples is one 20 ms capture frame at SampleRate.
const FrameSamples = 320

// Source yields mono 16-bit frames from a microphone.
type Source interface {
	ReadFrame(ctx context.Context) ([]int16, error)
}

// Flusher is implemented by sources that buffer audio while nobody reads,
// such as a pipe from arecord. Readers flush them before listening so
// playback echo and stale room noise are not picked up.
type Flusher interface {
	Flush() error
}

// Player plays mono 16-bit samples and returns once they have been heard.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// BytesToInt16 decodes little-endian S16 PCM. A trailing odd byte is dropped.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian S16 PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32ToInt16 converts [-1, 1] float samples, clipping out-of-range values.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * math.MaxInt16
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Int16ToFloat32 scales samples to [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
