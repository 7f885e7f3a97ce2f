package chat

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Completer produces the next assistant message for a full chat history.
type Completer interface {
	Complete(ctx context.Context, history []Message, settings Settings) (string, error)
}

// LocalHistoryBackend keeps the conversation transcript in memory and sends
// all of it with every completion call.
type LocalHistoryBackend struct {
	completer    Completer
	settings     Settings
	systemPrompt string
	history      []Message
	opts         options
}

// NewLocalHistoryBackend seeds a history with systemPrompt.
func NewLocalHistoryBackend(completer Completer, systemPrompt string, settings Settings, opts ...Option) *LocalHistoryBackend {
	b := &LocalHistoryBackend{
		completer:    completer,
		settings:     settings,
		systemPrompt: systemPrompt,
		opts:         buildOptions(opts),
	}
	b.Reset()
	return b
}

func (b *LocalHistoryBackend) Name() string { return "local" }

// Exchange appends the utterance, asks the completer for a reply and appends
// the reply. On failure the user message is taken back out so the history
// keeps strict user/assistant pairs, and Apology is returned.
func (b *LocalHistoryBackend) Exchange(ctx context.Context, utterance string) string {
	b.history = append(b.history, Message{Role: RoleUser, Content: utterance})

	start := time.Now()
	reply, err := b.completer.Complete(ctx, b.History(), b.settings)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	b.opts.observe(b.Name(), start, err)
	if err != nil {
		b.history = b.history[:len(b.history)-1]
		b.opts.logFailure(ctx, b.Name(), err)
		return Apology
	}

	b.history = append(b.history, Message{Role: RoleAssistant, Content: reply})
	b.opts.log.Debug().Int("history", len(b.history)).Dur("dur_ms", time.Since(start)).Msg("[Chat] local reply")
	return reply
}

// Reset discards the conversation, keeping only the system prompt.
func (b *LocalHistoryBackend) Reset() {
	b.history = []Message{{Role: RoleSystem, Content: b.systemPrompt}}
}

// History returns a copy of the transcript.
func (b *LocalHistoryBackend) History() []Message {
	return slices.Clone(b.history)
}
