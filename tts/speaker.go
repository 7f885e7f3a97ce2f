// Package tts renders replies as speech. A Speaker strips the optional
// style marker, synthesises sentence by sentence and plays each chunk as
// soon as it is ready.
package tts

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai_voice/audio"
)

// Synthesizer turns text into mono 16-bit samples at the returned rate.
// style is empty when the reply carried no marker.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, style string) (samples []int16, sampleRate int, err error)
}

var (
	leadingStyle  = regexp.MustCompile(`^\s*\[([\p{L}\p{N}_ -]{1,32})\]\s*`)
	trailingStyle = regexp.MustCompile(`\s*\[([\p{L}\p{N}_ -]{1,32})\]\s*$`)
	sentenceEnd   = regexp.MustCompile(`[.!?;。！？；]+["'”’)]*\s+|[。！？；]+`)
)

// ParseStyle splits an optional "[style]" marker off the start or end of
// text. A leading marker wins when both are present.
func ParseStyle(text string) (style, body string) {
	if m := leadingStyle.FindStringSubmatchIndex(text); m != nil {
		return strings.TrimSpace(text[m[2]:m[3]]), strings.TrimSpace(text[m[1]:])
	}
	if m := trailingStyle.FindStringSubmatchIndex(text); m != nil {
		return strings.TrimSpace(text[m[2]:m[3]]), strings.TrimSpace(text[:m[0]])
	}
	return "", strings.TrimSpace(text)
}

// SplitSentences cuts text after sentence punctuation, keeping it.
func SplitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Speaker is the session's Speaker.
type Speaker struct {
	synth  Synthesizer
	player audio.Player
	log    zerolog.Logger
}

func NewSpeaker(synth Synthesizer, player audio.Player, log zerolog.Logger) *Speaker {
	return &Speaker{synth: synth, player: player, log: log}
}

// Speak blocks until the whole reply has been played or ctx is cancelled.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	style, body := ParseStyle(text)
	if body == "" {
		return nil
	}
	start := time.Now()
	for i, sentence := range SplitSentences(body) {
		if err := ctx.Err(); err != nil {
			return err
		}
		samples, rate, err := s.synth.Synthesize(ctx, sentence, style)
		if err != nil {
			return fmt.Errorf("synthesize sentence %d: %w", i+1, err)
		}
		if i == 0 {
			s.log.Debug().Str("style", style).Dur("dur_ms", time.Since(start)).Msg("[TTS] first audio")
		}
		if err := s.player.Play(ctx, samples, rate); err != nil {
			return fmt.Errorf("play sentence %d: %w", i+1, err)
		}
	}
	return nil
}
