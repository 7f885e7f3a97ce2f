// Package chat holds the two conversation backends: a local one that keeps the
// whole chat history and calls a completion API with it, and a remote one that
// only echoes back the session token its server hands out.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Apology is spoken whenever a backend cannot produce a reply.
const Apology = "Sorry, I'm having trouble answering right now. Please try again."

// Role tags a message in a chat history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a chat history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Settings are the sampling parameters sent with every completion call.
// A Settings value is fixed at startup and never changes mid-conversation.
type Settings struct {
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	TopP             float64
}

// Backend turns one user utterance into a reply.
//
// Exchange never returns an error: failures are logged and mapped to Apology
// so the conversation keeps going. Reset drops the session state (history or
// token) at the end of a conversation.
type Backend interface {
	Exchange(ctx context.Context, utterance string) string
	Reset()
	Name() string
}

// Observer receives the outcome of every exchange, e.g. for metrics.
type Observer interface {
	ObserveExchange(backend string, d time.Duration, err error)
}

type options struct {
	log      zerolog.Logger
	observer Observer
}

// Option customises a backend.
type Option func(*options)

// WithLogger sets the logger used for failure reports.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver attaches an exchange observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) observe(backend string, start time.Time, err error) {
	if o.observer != nil {
		o.observer.ObserveExchange(backend, time.Since(start), err)
	}
}

// logFailure reports a failed exchange. Cancellation is not a failure.
func (o options) logFailure(ctx context.Context, backend string, err error) {
	if ctx.Err() != nil {
		o.log.Debug().Str("backend", backend).Msg("[Chat] exchange cancelled")
		return
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		o.log.Error().
			Str("backend", backend).
			Int("status", apiErr.StatusCode).
			Str("code", apiErr.Code).
			Str("message", apiErr.Message).
			Msg("❌ [Chat] backend returned an error")
		return
	}
	o.log.Error().Err(err).Str("backend", backend).Msg("❌ [Chat] exchange failed")
}
