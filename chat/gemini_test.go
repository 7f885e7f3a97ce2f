package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiCompleter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)
	return &GeminiCompleter{client: client, model: "gemini-2.0-flash"}
}

func TestGeminiCompleter_Complete(t *testing.T) {
	var body map[string]any
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":" Hi Sam! "}]}}]}`)
	})

	reply, err := g.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "Hello"},
	}, testSettings)

	require.NoError(t, err)
	assert.Equal(t, "Hi Sam!", reply)
	assert.Len(t, body["contents"], 1)
	assert.Contains(t, body, "systemInstruction")
}

func TestGeminiCompleter_APIError(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := g.Complete(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}}, testSettings)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad prompt", apiErr.Message)
}

func TestToGeminiContents(t *testing.T) {
	contents, system := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "Tell me a joke"},
		{Role: RoleAssistant, Content: "Why did the chicken..."},
		{Role: RoleUser, Content: "Goodbye"},
	})

	require.NotNil(t, system)
	assert.Equal(t, "be brief", system.Parts[0].Text)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "Goodbye", contents[2].Parts[0].Text)
}

func TestMapGeminiError(t *testing.T) {
	err := mapGeminiError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "slow down"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Code)
	assert.True(t, apiErr.RateLimited())

	plain := errors.New("dial tcp: refused")
	assert.ErrorIs(t, mapGeminiError(plain), plain)
}
