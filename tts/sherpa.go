package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"ai_voice/audio"
)

// SherpaConfig points at a local VITS model.
type SherpaConfig struct {
	Model      string
	Lexicon    string
	Tokens     string
	DataDir    string
	NumThreads int
	Provider   string
	SpeakerID  int
	Speed      float32
	// Styles maps a reply's style marker to a speaker id.
	Styles map[string]int
}

type generateFunc func(text string, sid int, speed float32) (samples []float32, sampleRate int)

// SherpaSynthesizer runs TTS on-device with sherpa-onnx.
type SherpaSynthesizer struct {
	mu        sync.Mutex
	generate  generateFunc
	release   func()
	speakerID int
	speed     float32
	styles    map[string]int
}

func NewSherpaSynthesizer(cfg SherpaConfig) (*SherpaSynthesizer, error) {
	if cfg.Model == "" || cfg.Tokens == "" {
		return nil, errors.New("sherpa tts: model and tokens are required")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = cfg.Model
	config.Model.Vits.Lexicon = cfg.Lexicon
	config.Model.Vits.Tokens = cfg.Tokens
	config.Model.Vits.DataDir = cfg.DataDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = cfg.Provider
	config.MaxNumSentences = 1

	engine := sherpa.NewOfflineTts(&config)
	if engine == nil {
		return nil, fmt.Errorf("sherpa tts: failed to load model %s", cfg.Model)
	}
	return newSherpaSynthesizer(cfg, func(text string, sid int, speed float32) ([]float32, int) {
		out := engine.Generate(text, sid, speed)
		if out == nil {
			return nil, 0
		}
		return out.Samples, out.SampleRate
	}, func() { sherpa.DeleteOfflineTts(engine) }), nil
}

func newSherpaSynthesizer(cfg SherpaConfig, gen generateFunc, release func()) *SherpaSynthesizer {
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	styles := make(map[string]int, len(cfg.Styles))
	for k, v := range cfg.Styles {
		styles[strings.ToLower(k)] = v
	}
	return &SherpaSynthesizer{generate: gen, release: release, speakerID: cfg.SpeakerID, speed: cfg.Speed, styles: styles}
}

// Synthesize blocks on the model; ctx is only checked around the call.
func (s *SherpaSynthesizer) Synthesize(ctx context.Context, text, style string) ([]int16, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	sid := s.speakerID
	if id, ok := s.styles[strings.ToLower(style)]; ok && style != "" {
		sid = id
	}

	s.mu.Lock()
	samples, rate := s.generate(text, sid, s.speed)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 || rate <= 0 {
		return nil, 0, fmt.Errorf("sherpa tts: no audio for %q", text)
	}
	return audio.Float32ToInt16(samples), rate, nil
}

func (s *SherpaSynthesizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		s.release()
		s.release = nil
	}
}
