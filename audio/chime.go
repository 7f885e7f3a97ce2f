package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// Chime is the short cue played when the box starts or stops listening.
type Chime struct {
	player     Player
	samples    []int16
	sampleRate int
}

// NewChime loads an MP3 cue from path, or synthesises a beep when path is
// empty.
func NewChime(player Player, path string) (*Chime, error) {
	if path == "" {
		return &Chime{player: player, samples: Beep(880, 120, SampleRate), sampleRate: SampleRate}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}
	defer f.Close()
	samples, rate, err := DecodeMP3(f)
	if err != nil {
		return nil, fmt.Errorf("decode chime %s: %w", path, err)
	}
	return &Chime{player: player, samples: samples, sampleRate: rate}, nil
}

// Notify plays the cue and waits for it to finish.
func (c *Chime) Notify(ctx context.Context) error {
	return c.player.Play(ctx, c.samples, c.sampleRate)
}

// DecodeMP3 decodes a whole MP3 stream to mono samples.
func DecodeMP3(r io.Reader) ([]int16, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	return Downmix(BytesToInt16(raw), 2), dec.SampleRate(), nil
}

// Beep is a sine tone with a short linear fade at both ends.
func Beep(freq float64, ms, sampleRate int) []int16 {
	n := sampleRate * ms / 1000
	fade := sampleRate / 200
	out := make([]int16, n)
	for i := range out {
		gain := 0.3
		if i < fade {
			gain *= float64(i) / float64(fade)
		} else if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}
		out[i] = int16(gain * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
