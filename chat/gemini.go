package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiCompleter runs completions against the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, history []Message, settings Settings) (string, error) {
	contents, system := toGeminiContents(history)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       float32Ptr(settings.Temperature),
		TopP:              float32Ptr(settings.TopP),
		FrequencyPenalty:  float32Ptr(settings.FrequencyPenalty),
		PresencePenalty:   float32Ptr(settings.PresencePenalty),
		MaxOutputTokens:   int32(settings.MaxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", mapGeminiError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func toGeminiContents(history []Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			system = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return contents, system
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{StatusCode: apiErrPtr.Code, Code: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini: %w", err)
}

func float32Ptr(v float64) *float32 {
	f := float32(v)
	return &f
}
