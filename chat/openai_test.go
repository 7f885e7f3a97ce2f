package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleter_Complete(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":" Hi Sam! "}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAICompleter(srv.URL+"/v1/", "sk-test", "qwen-turbo-latest", srv.Client())
	history := []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "Hello"},
	}

	reply, err := c.Complete(context.Background(), history, testSettings)

	require.NoError(t, err)
	assert.Equal(t, "Hi Sam!", reply)
	assert.Equal(t, "qwen-turbo-latest", got.Model)
	assert.Equal(t, history, got.Messages)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.TopP, 1e-9)
	assert.InDelta(t, 0.5, got.FrequencyPenalty, 1e-9)
	assert.InDelta(t, 0.3, got.PresencePenalty, 1e-9)
}

func TestOpenAICompleter_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantMsg    string
		rateLimit  bool
		invalidReq bool
	}{
		{
			name:      "rate limit",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			wantCode:  "rate_limit_exceeded",
			wantMsg:   "Rate limit reached",
			rateLimit: true,
		},
		{
			name:       "invalid request without code",
			status:     http.StatusBadRequest,
			body:       `{"error":{"message":"bad messages","type":"invalid_request_error","code":null}}`,
			wantCode:   "invalid_request_error",
			wantMsg:    "bad messages",
			invalidReq: true,
		},
		{
			name:    "unparseable body",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantMsg: "upstream down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewOpenAICompleter(srv.URL, "", "m", srv.Client())
			_, err := c.Complete(context.Background(), nil, testSettings)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.rateLimit, apiErr.RateLimited())
			assert.Equal(t, tt.invalidReq, apiErr.InvalidRequest())
		})
	}
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAICompleter(srv.URL, "", "m", srv.Client()).Complete(context.Background(), nil, testSettings)

	assert.ErrorIs(t, err, ErrEmptyReply)
}
