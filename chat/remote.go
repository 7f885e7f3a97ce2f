package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4096

type remoteRequest struct {
	Prompt    string `json:"prompt"`
	Name      string `json:"name"`
	MessageID string `json:"messageId"`
}

type remoteResponse struct {
	Text *string `json:"text"`
	ID   *string `json:"id"`
}

// RemoteSessionBackend talks to a chat server that keeps the history itself.
// Locally it only holds the session token from the last successful exchange.
type RemoteSessionBackend struct {
	url    string
	client *http.Client
	token  string
	opts   options
}

// NewRemoteSessionBackend posts utterances to url. A nil client gets a
// default one with the given timeout.
func NewRemoteSessionBackend(url string, client *http.Client, timeout time.Duration, opts ...Option) *RemoteSessionBackend {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteSessionBackend{url: url, client: client, opts: buildOptions(opts)}
}

func (b *RemoteSessionBackend) Name() string { return "remote" }

// Exchange sends the utterance with the current token. The token is only
// replaced after a successful round trip, so a failed turn can be retried
// within the same remote session.
func (b *RemoteSessionBackend) Exchange(ctx context.Context, utterance string) string {
	start := time.Now()
	reply, token, err := b.exchange(ctx, utterance, b.token)
	b.opts.observe(b.Name(), start, err)
	if err != nil {
		b.opts.logFailure(ctx, b.Name(), err)
		return Apology
	}
	b.token = token
	b.opts.log.Debug().Str("message_id", token).Dur("dur_ms", time.Since(start)).Msg("[Chat] remote reply")
	return reply
}

// Reset forgets the session token.
func (b *RemoteSessionBackend) Reset() { b.token = "" }

// Token returns the session token the next exchange will send.
func (b *RemoteSessionBackend) Token() string { return b.token }

func (b *RemoteSessionBackend) exchange(ctx context.Context, utterance, token string) (string, string, error) {
	body, err := json.Marshal(remoteRequest{Prompt: utterance, Name: "", MessageID: token})
	if err != nil {
		return "", "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Text == nil || out.ID == nil {
		return "", "", fmt.Errorf("%w: missing text or id", ErrMalformedResponse)
	}
	return *out.Text, *out.ID, nil
}
