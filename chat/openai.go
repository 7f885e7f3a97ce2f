package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is DashScope's OpenAI-compatible endpoint.
const DefaultOpenAIBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

type completionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// OpenAICompleter calls an OpenAI-compatible /chat/completions endpoint.
type OpenAICompleter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAICompleter(baseURL, apiKey, model string, client *http.Client) *OpenAICompleter {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAICompleter{baseURL: baseURL, apiKey: apiKey, model: model, client: client}
}

func (c *OpenAICompleter) Complete(ctx context.Context, history []Message, settings Settings) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:            c.model,
		Messages:         history,
		MaxTokens:        settings.MaxTokens,
		Temperature:      settings.Temperature,
		TopP:             settings.TopP,
		FrequencyPenalty: settings.FrequencyPenalty,
		PresencePenalty:  settings.PresencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", parseOpenAIError(resp)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *OpenAICompleter) completionsURL() string {
	return strings.TrimRight(c.baseURL, "/") + "/chat/completions"
}

func parseOpenAIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	code := env.Error.Type
	if env.Error.Code != nil {
		code = fmt.Sprint(env.Error.Code)
	}
	return &APIError{StatusCode: resp.StatusCode, Code: code, Message: env.Error.Message}
}
