package tts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai_voice/audio"
	"ai_voice/dashscope"
)

const (
	DefaultDashScopeModel = "cosyvoice-v1"
	DefaultDashScopeVoice = "longwan"
	DefaultSampleRate     = 22050
	DefaultVolume         = 50
)

// DashScopeSynthesizer runs one cosyvoice task per sentence. Style markers
// are dropped; the voice is fixed per configuration.
type DashScopeSynthesizer struct {
	URL        string
	APIKey     string
	Model      string
	Voice      string
	SampleRate int
	Volume     int

	log zerolog.Logger
}

func NewDashScopeSynthesizer(url, apiKey, model, voice string, sampleRate, volume int, log zerolog.Logger) *DashScopeSynthesizer {
	if model == "" {
		model = DefaultDashScopeModel
	}
	if voice == "" {
		voice = DefaultDashScopeVoice
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if volume <= 0 {
		volume = DefaultVolume
	}
	return &DashScopeSynthesizer{URL: url, APIKey: apiKey, Model: model, Voice: voice, SampleRate: sampleRate, Volume: volume, log: log}
}

func (d *DashScopeSynthesizer) Synthesize(ctx context.Context, text, style string) ([]int16, int, error) {
	start := time.Now()
	conn, err := dashscope.Dial(ctx, d.URL, d.APIKey)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	err = conn.Start(dashscope.Task{
		Group:    "audio",
		Task:     "tts",
		Function: "SpeechSynthesizer",
		Model:    d.Model,
		Parameters: map[string]any{
			"text_type":   "PlainText",
			"voice":       d.Voice,
			"format":      "pcm",
			"sample_rate": d.SampleRate,
			"volume":      d.Volume,
			"enable_ssml": false,
		},
	})
	if err != nil {
		return nil, 0, err
	}
	if err := conn.Continue(map[string]any{"text": text}); err != nil {
		return nil, 0, err
	}
	if err := conn.Finish(); err != nil {
		return nil, 0, err
	}

	var pcm []byte
	first := true
	for {
		ev, err := conn.Next()
		if err != nil {
			return nil, 0, err
		}
		if ev.Audio != nil {
			if first {
				d.log.Debug().Dur("dur_ms", time.Since(start)).Msg("[TTS] dashscope first packet")
				first = false
			}
			pcm = append(pcm, ev.Audio...)
			continue
		}
		if ev.Name == dashscope.EventFinished {
			if style != "" {
				d.log.Debug().Str("style", style).Msg("[TTS] style ignored by dashscope voice")
			}
			return audio.BytesToInt16(pcm), d.SampleRate, nil
		}
	}
}
