package wake

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice/audio"
)

var words = []string{"hey jarvis", "jarvis"}

func TestStripWake(t *testing.T) {
	tests := []struct {
		text      string
		tail      string
		hit, pure bool
	}{
		{"Hey Jarvis", "", true, true},
		{"hey, jarvis!", "", true, true},
		{"um hey jarvis.", "", true, true},
		{"Hey Jarvis, what time is it?", "what time is it?", true, false},
		{"Jarvis play some music", "play some music", true, false},
		{"hey, jarvis what's up", "hey, jarvis what's up", true, false},
		{"what time is it", "", false, false},
		{"", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tail, hit, pure := StripWake(tt.text, words)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.pure, pure)
			assert.Equal(t, tt.tail, tail)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "heyjarvis", Normalize("  Hey, Jarvis! "))
	assert.Equal(t, "你好小智", Normalize("你好，小智。"))
}

type scriptedListener struct {
	texts []string
	err   error
	calls int
}

func (l *scriptedListener) Listen(context.Context) (string, error) {
	l.calls++
	if l.err != nil {
		return "", l.err
	}
	if len(l.texts) == 0 {
		return "", errors.New("script exhausted")
	}
	t := l.texts[0]
	l.texts = l.texts[1:]
	return t, nil
}

func TestTextDetector_WaitsForWakeWord(t *testing.T) {
	l := &scriptedListener{texts: []string{"", "turn on the lights", "Hey Jarvis, are you there?"}}
	d := NewTextDetector(l, words, zerolog.Nop())

	woke, err := d.WaitForWakeWord(context.Background())

	require.NoError(t, err)
	assert.True(t, woke)
	assert.Equal(t, 3, l.calls)
}

func TestTextDetector_ListenerError(t *testing.T) {
	d := NewTextDetector(&scriptedListener{err: errors.New("asr down")}, words, zerolog.Nop())
	woke, err := d.WaitForWakeWord(context.Background())
	assert.False(t, woke)
	assert.ErrorContains(t, err, "asr down")
}

func TestTextDetector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewTextDetector(&scriptedListener{texts: []string{"jarvis"}}, words, zerolog.Nop())
	woke, err := d.WaitForWakeWord(ctx)
	assert.False(t, woke)
	assert.NoError(t, err)
}

type frameSource struct {
	n       int
	limit   int
	flushes int
	cancel  context.CancelFunc
}

func (s *frameSource) ReadFrame(ctx context.Context) ([]int16, error) {
	s.n++
	if s.limit > 0 && s.n > s.limit {
		s.cancel()
		return nil, ctx.Err()
	}
	return make([]int16, audio.FrameSamples), nil
}

func (s *frameSource) Flush() error {
	s.flushes++
	return nil
}

type fakeStream struct {
	fireAt int
	seen   int
	closed bool
}

func (f *fakeStream) Accept(samples []float32) string {
	f.seen++
	if f.seen == f.fireAt {
		return "hey jarvis"
	}
	return ""
}

func (f *fakeStream) Close() { f.closed = true }

func TestKeywordDetector(t *testing.T) {
	src := &frameSource{}
	var streams []*fakeStream
	d := &KeywordDetector{
		source: src,
		newStream: func() keywordStream {
			s := &fakeStream{fireAt: 5}
			streams = append(streams, s)
			return s
		},
		log: zerolog.Nop(),
	}

	woke, err := d.WaitForWakeWord(context.Background())
	require.NoError(t, err)
	assert.True(t, woke)

	woke, err = d.WaitForWakeWord(context.Background())
	require.NoError(t, err)
	assert.True(t, woke)

	require.Len(t, streams, 2)
	assert.True(t, streams[0].closed)
	assert.Equal(t, 5, streams[1].seen)
	assert.Equal(t, 2, src.flushes)
	assert.Equal(t, 10, src.n)
}

func TestKeywordDetector_CancelReturnsFalse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &frameSource{limit: 3, cancel: cancel}
	d := &KeywordDetector{source: src, newStream: func() keywordStream { return &fakeStream{} }, log: zerolog.Nop()}

	woke, err := d.WaitForWakeWord(ctx)
	assert.False(t, woke)
	assert.NoError(t, err)
}

func TestNewKeywordDetector_RequiresModel(t *testing.T) {
	_, err := NewKeywordDetector(&frameSource{}, KeywordConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
