package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	replies  []string
	errs     []error
	calls    int
	history  [][]Message
	settings []Settings
}

func (f *fakeCompleter) Complete(_ context.Context, history []Message, settings Settings) (string, error) {
	i := f.calls
	f.calls++
	f.history = append(f.history, history)
	f.settings = append(f.settings, settings)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return fmt.Sprintf("reply %d", i), nil
}

type recordingObserver struct {
	backends []string
	errs     []error
}

func (r *recordingObserver) ObserveExchange(backend string, _ time.Duration, err error) {
	r.backends = append(r.backends, backend)
	r.errs = append(r.errs, err)
}

var testSettings = Settings{MaxTokens: 150, Temperature: 0.7, FrequencyPenalty: 0.5, PresencePenalty: 0.3, TopP: 0.9}

func TestLocalHistoryBackend_Scenario(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"Nice to meet you, Sam! How is Seattle?"}}
	b := NewLocalHistoryBackend(completer, "You are a helpful voice assistant.", testSettings)

	reply := b.Exchange(context.Background(), "Hello, my name is Sam and I live in Seattle.")

	assert.Equal(t, "Nice to meet you, Sam! How is Seattle?", reply)
	require.Len(t, completer.history, 1)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "You are a helpful voice assistant."},
		{Role: RoleUser, Content: "Hello, my name is Sam and I live in Seattle."},
	}, completer.history[0])
	assert.Equal(t, testSettings, completer.settings[0])
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "You are a helpful voice assistant."},
		{Role: RoleUser, Content: "Hello, my name is Sam and I live in Seattle."},
		{Role: RoleAssistant, Content: "Nice to meet you, Sam! How is Seattle?"},
	}, b.History())
}

func TestLocalHistoryBackend_HistoryGrowsInPairs(t *testing.T) {
	completer := &fakeCompleter{}
	b := NewLocalHistoryBackend(completer, "system", testSettings)

	const n = 5
	for i := 0; i < n; i++ {
		b.Exchange(context.Background(), fmt.Sprintf("utterance %d", i))
	}

	history := b.History()
	require.Len(t, history, 1+2*n)
	assert.Equal(t, RoleSystem, history[0].Role)
	for i := 0; i < n; i++ {
		assert.Equal(t, Message{Role: RoleUser, Content: fmt.Sprintf("utterance %d", i)}, history[1+2*i])
		assert.Equal(t, Message{Role: RoleAssistant, Content: fmt.Sprintf("reply %d", i)}, history[2+2*i])
	}
	for _, s := range completer.settings {
		assert.Equal(t, testSettings, s)
	}
}

func TestLocalHistoryBackend_FailureReturnsApology(t *testing.T) {
	cases := map[string]error{
		"rate limit":      &APIError{StatusCode: 429, Code: "rate_limit_exceeded", Message: "slow down"},
		"invalid request": &APIError{StatusCode: 400, Code: "invalid_request_error", Message: "bad"},
		"service error":   &APIError{StatusCode: 503, Message: "unavailable"},
		"plain error":     errors.New("boom"),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			completer := &fakeCompleter{errs: []error{nil, failure}, replies: []string{"first", "", "third"}}
			obs := &recordingObserver{}
			b := NewLocalHistoryBackend(completer, "system", testSettings, WithObserver(obs))

			assert.Equal(t, "first", b.Exchange(context.Background(), "one"))
			assert.Equal(t, Apology, b.Exchange(context.Background(), "two"))
			assert.Len(t, b.History(), 3, "failed turn must not leave a dangling user message")

			assert.Equal(t, "third", b.Exchange(context.Background(), "three"))
			history := b.History()
			require.Len(t, history, 5)
			assert.Equal(t, "three", history[3].Content)

			require.Len(t, obs.errs, 3)
			assert.NoError(t, obs.errs[0])
			assert.ErrorIs(t, obs.errs[1], failure)
			assert.Equal(t, []string{"local", "local", "local"}, obs.backends)
		})
	}
}

func TestLocalHistoryBackend_EmptyReplyIsFailure(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"   "}}
	b := NewLocalHistoryBackend(completer, "system", testSettings)

	assert.Equal(t, Apology, b.Exchange(context.Background(), "hi"))
	assert.Len(t, b.History(), 1)
}

func TestLocalHistoryBackend_Reset(t *testing.T) {
	b := NewLocalHistoryBackend(&fakeCompleter{}, "system", testSettings)
	b.Exchange(context.Background(), "a")
	b.Exchange(context.Background(), "b")

	b.Reset()

	assert.Equal(t, []Message{{Role: RoleSystem, Content: "system"}}, b.History())
}

func TestLocalHistoryBackend_HistoryIsCopy(t *testing.T) {
	b := NewLocalHistoryBackend(&fakeCompleter{}, "system", testSettings)
	h := b.History()
	h[0].Content = "mutated"

	assert.Equal(t, "system", b.History()[0].Content)
}
