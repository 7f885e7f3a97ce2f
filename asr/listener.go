// Package asr turns microphone audio into text: a VAD-gated Listener cuts
// one utterance and hands it to a cloud Transcriber.
package asr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai_voice/audio"
	"ai_voice/vad"
)

// MinSpeech is the shortest utterance worth sending to a recognizer.
const MinSpeech = 500 * time.Millisecond

// Transcriber converts one 16 kHz mono utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16) (string, error)
}

// Listener captures one utterance per call.
type Listener struct {
	source      audio.Source
	segmenter   *vad.Segmenter
	transcriber Transcriber
	timeout     time.Duration
	log         zerolog.Logger
}

// NewListener builds a Listener. A zero timeout waits for speech forever.
func NewListener(source audio.Source, segmenter *vad.Segmenter, transcriber Transcriber, timeout time.Duration, log zerolog.Logger) *Listener {
	return &Listener{source: source, segmenter: segmenter, transcriber: transcriber, timeout: timeout, log: log}
}

// Listen blocks until an utterance is captured and transcribed. Silence
// until the timeout yields "" and no error.
func (l *Listener) Listen(ctx context.Context) (string, error) {
	if f, ok := l.source.(audio.Flusher); ok {
		if err := f.Flush(); err != nil {
			l.log.Warn().Err(err).Msg("[ASR] flush source")
		}
	}
	l.segmenter.Reset()

	pcm, err := l.capture(ctx)
	if err != nil || pcm == nil {
		return "", err
	}

	start := time.Now()
	text, err := l.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	l.log.Debug().
		Dur("audio", samplesDuration(len(pcm))).
		Dur("dur_ms", time.Since(start)).
		Str("text", text).
		Msg("[ASR] transcribed")
	return text, nil
}

func (l *Listener) capture(ctx context.Context) ([]int16, error) {
	var deadline time.Time
	if l.timeout > 0 {
		deadline = time.Now().Add(l.timeout)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && !l.segmenter.Triggered() && time.Now().After(deadline) {
			l.log.Debug().Dur("timeout", l.timeout).Msg("[ASR] no speech")
			return nil, nil
		}

		frame, err := l.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read microphone: %w", err)
		}

		seg, done := l.segmenter.Push(frame)
		if !done {
			continue
		}
		if samplesDuration(len(seg)) < MinSpeech {
			l.log.Debug().Int("samples", len(seg)).Msg("[ASR] segment too short, dropped")
			continue
		}
		return seg, nil
	}
}

func samplesDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / audio.SampleRate
}
