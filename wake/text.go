// Package wake holds the wake word detectors: an acoustic keyword spotter
// running locally, and a text matcher layered on top of cloud ASR.
package wake

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Punctuation and spacing that ASR sprinkles into short phrases; stripped
// before matching so "Hey, Jarvis!" still hits "hey jarvis".
var punct = regexp.MustCompile(`[，。！？,.!?\s；;：:“”"'《》()（）【】\[\]、-]`)

// Listener transcribes one utterance.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// TextDetector is the "pseudo wake" mode: it keeps transcribing what it
// hears and fires when a wake phrase shows up in the text.
type TextDetector struct {
	listener Listener
	words    []string
	log      zerolog.Logger
}

func NewTextDetector(listener Listener, words []string, log zerolog.Logger) *TextDetector {
	return &TextDetector{listener: listener, words: words, log: log}
}

// WaitForWakeWord listens until one of the wake words is heard.
func (d *TextDetector) WaitForWakeWord(ctx context.Context) (bool, error) {
	for {
		if ctx.Err() != nil {
			return false, nil
		}
		text, err := d.listener.Listen(ctx)
		if ctx.Err() != nil {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		tail, hit, pure := StripWake(text, d.words)
		if !hit {
			d.log.Debug().Str("text", text).Msg("[Sleep] no wake word, ignored")
			continue
		}
		if !pure {
			d.log.Info().Str("tail", tail).Msg("[Wake] wake word followed by a request; ask again after the greeting")
		}
		return true, nil
	}
}

// Normalize lower-cases text and strips punctuation and spaces.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return punct.ReplaceAllString(s, "")
}

// StripWake looks for a wake word in text:
//   - wake word and nothing after it: hit=true, pure=true
//   - wake word followed by more words: tail holds what came after it
//   - no wake word: hit=false
func StripWake(text string, words []string) (tail string, hit bool, pure bool) {
	normalized := Normalize(text)
	for _, w := range words {
		nw := Normalize(w)
		if nw == "" {
			continue
		}
		idx := strings.Index(normalized, nw)
		if idx < 0 {
			continue
		}

		// Only what follows the wake word counts; filler before it is noise.
		if normalized[idx+len(nw):] == "" {
			return "", true, true
		}

		lower := strings.ToLower(text)
		if pos := strings.Index(lower, strings.ToLower(w)); pos >= 0 {
			rawTail := strings.TrimSpace(text[pos+len(w):])
			rawTail = strings.TrimSpace(strings.TrimLeft(rawTail, ",.!?;: "))
			if rawTail != "" {
				return rawTail, true, false
			}
		}

		// Punctuation inside the wake word itself; hand back the whole text.
		return text, true, false
	}
	return "", false, false
}
