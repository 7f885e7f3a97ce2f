// Package session runs the wake -> greet -> converse -> goodbye cycle.
//
// Two nested loops drive it: the outer one arms the wake word detector and
// greets the user, the inner one takes turns (listen, think, speak) until the
// user says the termination word. Everything runs on the caller's goroutine;
// the backend's history or token is owned by that one loop.
package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ai_voice/chat"
)

const (
	DefaultGreeting        = "Hello!"
	DefaultTerminationWord = "goodbye"

	defaultRetryDelay = time.Second
)

// WakeWordDetector blocks until the wake phrase is heard (true) or ctx is
// cancelled (false). It is called again for every conversation.
type WakeWordDetector interface {
	WaitForWakeWord(ctx context.Context) (bool, error)
}

// Listener captures and transcribes one utterance.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Speaker renders a reply as audio and returns when playback is done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Notifier plays the short "ready" chime.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Deps are the collaborators a Session drives. Notifier may be nil.
type Deps struct {
	Wake     WakeWordDetector
	Listener Listener
	Speaker  Speaker
	Notifier Notifier
	Backend  chat.Backend
}

// Session is the conversation state machine.
type Session struct {
	wake     WakeWordDetector
	listener Listener
	speaker  Speaker
	notifier Notifier
	backend  chat.Backend

	greeting        string
	terminationWord string
	retryDelay      time.Duration

	state   atomic.Int32
	onState func(from, to State)
	log     zerolog.Logger
}

// Option customises a Session.
type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithGreeting(text string) Option {
	return func(s *Session) { s.greeting = text }
}

func WithTerminationWord(word string) Option {
	return func(s *Session) { s.terminationWord = word }
}

// WithStateHook is called on every state change, on the loop goroutine.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Session) { s.onState = fn }
}

// WithRetryDelay sets the pause after a detector or listener error.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Session) { s.retryDelay = d }
}

var errMissingDep = errors.New("session: wake detector, listener, speaker and backend are required")

func New(deps Deps, opts ...Option) (*Session, error) {
	if deps.Wake == nil || deps.Listener == nil || deps.Speaker == nil || deps.Backend == nil {
		return nil, errMissingDep
	}
	s := &Session{
		wake:            deps.Wake,
		listener:        deps.Listener,
		speaker:         deps.Speaker,
		notifier:        deps.Notifier,
		backend:         deps.Backend,
		greeting:        DefaultGreeting,
		terminationWord: DefaultTerminationWord,
		retryDelay:      defaultRetryDelay,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run loops until ctx is cancelled and then returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateIdle)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setState(StateIdle)

		s.notify(ctx)
		s.log.Info().Msg("💤 [Wake] waiting for wake word...")
		woke, err := s.wake.WaitForWakeWord(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.log.Error().Err(err).Msg("[Wake] detector failed")
			s.pause(ctx)
			continue
		}
		if !woke {
			continue
		}

		s.log.Info().Msg("✨ [Wake] wake word detected")
		s.notify(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateGreeting)
		s.speak(ctx, s.greeting)

		if err := s.converse(ctx); err != nil {
			return err
		}
	}
}

// converse takes turns until the termination word (nil) or cancellation.
func (s *Session) converse(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setState(StateListening)

		listenStart := time.Now()
		text, err := s.listener.Listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("[ASR] listen failed")
			s.pause(ctx)
			continue
		}
		utterance := strings.TrimSpace(text)
		if utterance == "" {
			continue
		}
		s.log.Info().Str("text", utterance).Dur("dur_ms", time.Since(listenStart)).Msg("✅ [ASR] user said")

		s.setState(StateThinking)
		thinkStart := time.Now()
		reply := s.backend.Exchange(ctx, utterance)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Info().Str("reply", reply).Dur("dur_ms", time.Since(thinkStart)).Msg("🤖 [Chat] reply")

		s.setState(StateSpeaking)
		s.speak(ctx, reply)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if IsTermination(utterance, s.terminationWord) {
			s.backend.Reset()
			s.log.Info().Str("backend", s.backend.Name()).Msg("👋 [Session] conversation ended, re-arming wake word")
			return nil
		}
	}
}

// IsTermination reports whether utterance starts with word, ignoring case
// and surrounding space.
func IsTermination(utterance, word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(utterance)), word)
}

func (s *Session) speak(ctx context.Context, text string) {
	start := time.Now()
	if err := s.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("[TTS] speak failed")
		return
	}
	s.log.Debug().Dur("dur_ms", time.Since(start)).Msg("[TTS] done")
}

func (s *Session) notify(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("[Chime] notification failed")
	}
}

func (s *Session) pause(ctx context.Context) {
	if s.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
