package asr

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai_voice/audio"
	"ai_voice/dashscope"
)

const (
	DefaultDashScopeModel = "paraformer-realtime-v2"

	chunkBytes = 3200 // 100 ms of 16 kHz S16
)

// DashScopeTranscriber runs one paraformer realtime task per utterance.
type DashScopeTranscriber struct {
	URL    string
	APIKey string
	Model  string
	// ChunkDelay paces uploads so the server is not flooded.
	ChunkDelay time.Duration

	log zerolog.Logger
}

func NewDashScopeTranscriber(url, apiKey, model string, log zerolog.Logger) *DashScopeTranscriber {
	if model == "" {
		model = DefaultDashScopeModel
	}
	return &DashScopeTranscriber{URL: url, APIKey: apiKey, Model: model, ChunkDelay: 5 * time.Millisecond, log: log}
}

type sentenceOutput struct {
	Sentence struct {
		Text        string `json:"text"`
		SentenceEnd bool   `json:"sentence_end"`
	} `json:"sentence"`
}

func (t *DashScopeTranscriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	start := time.Now()
	conn, err := dashscope.Dial(ctx, t.URL, t.APIKey)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	err = conn.Start(dashscope.Task{
		Group:    "audio",
		Task:     "asr",
		Function: "recognition",
		Model:    t.Model,
		Parameters: map[string]any{
			"format":      "pcm",
			"sample_rate": audio.SampleRate,
		},
	})
	if err != nil {
		return "", err
	}

	data := audio.Int16ToBytes(pcm)
	for i := 0; i < len(data); i += chunkBytes {
		end := min(i+chunkBytes, len(data))
		if err := conn.WriteAudio(data[i:end]); err != nil {
			return "", err
		}
		if t.ChunkDelay > 0 {
			time.Sleep(t.ChunkDelay)
		}
	}
	if err := conn.Finish(); err != nil {
		return "", err
	}

	var done []string
	partial := ""
	for {
		ev, err := conn.Next()
		if err != nil {
			return "", err
		}
		switch ev.Name {
		case dashscope.EventResult:
			var out sentenceOutput
			if err := json.Unmarshal(ev.Output, &out); err != nil {
				continue
			}
			if out.Sentence.SentenceEnd {
				done = append(done, out.Sentence.Text)
				partial = ""
			} else {
				partial = out.Sentence.Text
			}
		case dashscope.EventFinished:
			if partial != "" {
				done = append(done, partial)
			}
			text := strings.TrimSpace(strings.Join(done, " "))
			t.log.Debug().Str("task_id", conn.TaskID()).Dur("dur_ms", time.Since(start)).Msg("[ASR] dashscope task finished")
			return text, nil
		}
	}
}
