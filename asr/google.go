package asr

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"ai_voice/audio"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleTranscriber uses Cloud Speech-to-Text synchronous recognition.
// Credentials come from Application Default Credentials.
type GoogleTranscriber struct {
	language  string
	recognize recognizeFunc
	close     func() error
}

func NewGoogleTranscriber(ctx context.Context, language string) (*GoogleTranscriber, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleTranscriber{
		language: language,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		close: client.Close,
	}, nil
}

func (g *GoogleTranscriber) request(pcm []int16) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            audio.SampleRate,
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Int16ToBytes(pcm)},
		},
	}
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	resp, err := g.recognize(ctx, g.request(pcm))
	if err != nil {
		return "", fmt.Errorf("google recognize: %w", err)
	}
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.Join(parts, " "), nil
}

func (g *GoogleTranscriber) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}
