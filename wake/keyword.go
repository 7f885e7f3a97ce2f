package wake

import (
	"context"
	"errors"
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"github.com/rs/zerolog"

	"ai_voice/audio"
)

// KeywordConfig points at a streaming zipformer keyword spotting model.
type KeywordConfig struct {
	Encoder      string
	Decoder      string
	Joiner       string
	Tokens       string
	KeywordsFile string
	NumThreads   int
	Provider     string
	Score        float32
	Threshold    float32
}

// keywordStream is one detection pass. Accept returns the keyword once it
// has been spotted.
type keywordStream interface {
	Accept(samples []float32) string
	Close()
}

// KeywordDetector listens for the wake phrase on-device with sherpa-onnx.
type KeywordDetector struct {
	source    audio.Source
	newStream func() keywordStream
	release   func()
	log       zerolog.Logger
}

func NewKeywordDetector(source audio.Source, cfg KeywordConfig, log zerolog.Logger) (*KeywordDetector, error) {
	if cfg.Encoder == "" || cfg.Decoder == "" || cfg.Joiner == "" || cfg.Tokens == "" || cfg.KeywordsFile == "" {
		return nil, errors.New("keyword spotter: encoder, decoder, joiner, tokens and keywords file are required")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}

	config := sherpa.KeywordSpotterConfig{}
	config.FeatConfig.SampleRate = audio.SampleRate
	config.FeatConfig.FeatureDim = 80
	config.ModelConfig.Transducer.Encoder = cfg.Encoder
	config.ModelConfig.Transducer.Decoder = cfg.Decoder
	config.ModelConfig.Transducer.Joiner = cfg.Joiner
	config.ModelConfig.Tokens = cfg.Tokens
	config.ModelConfig.NumThreads = cfg.NumThreads
	config.ModelConfig.Provider = cfg.Provider
	config.KeywordsFile = cfg.KeywordsFile
	config.KeywordsScore = cfg.Score
	config.KeywordsThreshold = cfg.Threshold

	spotter := sherpa.NewKeywordSpotter(&config)
	if spotter == nil {
		return nil, fmt.Errorf("keyword spotter: failed to load %s", cfg.Encoder)
	}
	return &KeywordDetector{
		source: source,
		newStream: func() keywordStream {
			return &sherpaStream{spotter: spotter, stream: sherpa.NewKeywordStream(spotter)}
		},
		release: func() { sherpa.DeleteKeywordSpotter(spotter) },
		log:     log,
	}, nil
}

// WaitForWakeWord reads the microphone until the keyword is spotted. Every
// call starts a fresh stream so nothing from the last conversation leaks in.
func (d *KeywordDetector) WaitForWakeWord(ctx context.Context) (bool, error) {
	if f, ok := d.source.(audio.Flusher); ok {
		if err := f.Flush(); err != nil {
			d.log.Warn().Err(err).Msg("[Wake] flush source")
		}
	}
	stream := d.newStream()
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return false, nil
		}
		frame, err := d.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("read microphone: %w", err)
		}
		if kw := stream.Accept(audio.Int16ToFloat32(frame)); kw != "" {
			d.log.Info().Str("keyword", kw).Msg("[Wake] keyword spotted")
			return true, nil
		}
	}
}

func (d *KeywordDetector) Close() {
	if d.release != nil {
		d.release()
		d.release = nil
	}
}

type sherpaStream struct {
	spotter *sherpa.KeywordSpotter
	stream  *sherpa.OnlineStream
}

func (s *sherpaStream) Accept(samples []float32) string {
	s.stream.AcceptWaveform(audio.SampleRate, samples)
	for s.spotter.IsReady(s.stream) {
		s.spotter.Decode(s.stream)
		if kw := s.spotter.GetResult(s.stream).Keyword; kw != "" {
			return kw
		}
	}
	return ""
}

func (s *sherpaStream) Close() {
	sherpa.DeleteOnlineStream(s.stream)
}
