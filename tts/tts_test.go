package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice/dashscope"
	"ai_voice/dashscope/dashscopetest"
)

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in, style, body string
	}{
		{"Hello there", "", "Hello there"},
		{"[cheerful] Hello there", "cheerful", "Hello there"},
		{"Hello there [sad]", "sad", "Hello there"},
		{"  [whisper]Psst.  ", "whisper", "Psst."},
		{"[calm] Hi [loud]", "calm", "Hi [loud]"},
		{"Use [brackets] inside", "", "Use [brackets] inside"},
		{"[excited]", "excited", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			style, body := ParseStyle(tt.in)
			assert.Equal(t, tt.style, style)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"Hi Sam!", "It is 3.5 degrees.", "Anything else?"},
		SplitSentences("Hi Sam! It is 3.5 degrees. Anything else?"))
	assert.Equal(t, []string{"你好。", "今天天气不错"}, SplitSentences("你好。今天天气不错"))
	assert.Equal(t, []string{"no punctuation"}, SplitSentences("no punctuation"))
	assert.Empty(t, SplitSentences("   "))
}

type fakeSynth struct {
	calls  []string
	styles []string
	err    error
}

func (f *fakeSynth) Synthesize(_ context.Context, text, style string) ([]int16, int, error) {
	f.calls = append(f.calls, text)
	f.styles = append(f.styles, style)
	if f.err != nil {
		return nil, 0, f.err
	}
	return []int16{int16(len(text))}, 24000, nil
}

type fakePlayer struct {
	played [][]int16
	rates  []int
}

func (p *fakePlayer) Play(_ context.Context, samples []int16, rate int) error {
	p.played = append(p.played, samples)
	p.rates = append(p.rates, rate)
	return nil
}

func TestSpeaker_Speak(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	s := NewSpeaker(synth, player, zerolog.Nop())

	require.NoError(t, s.Speak(context.Background(), "[cheerful] Hi Sam! Nice to meet you."))

	assert.Equal(t, []string{"Hi Sam!", "Nice to meet you."}, synth.calls)
	assert.Equal(t, []string{"cheerful", "cheerful"}, synth.styles)
	assert.Equal(t, [][]int16{{7}, {17}}, player.played)
	assert.Equal(t, []int{24000, 24000}, player.rates)
}

func TestSpeaker_EmptyAndErrors(t *testing.T) {
	synth := &fakeSynth{}
	s := NewSpeaker(synth, &fakePlayer{}, zerolog.Nop())
	require.NoError(t, s.Speak(context.Background(), "  [calm] "))
	assert.Empty(t, synth.calls)

	s = NewSpeaker(&fakeSynth{err: errors.New("boom")}, &fakePlayer{}, zerolog.Nop())
	assert.ErrorContains(t, s.Speak(context.Background(), "hello"), "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSpeaker(&fakeSynth{}, &fakePlayer{}, zerolog.Nop()).Speak(ctx, "hello"), context.Canceled)
}

func TestDashScopeSynthesizer(t *testing.T) {
	frames := make(chan dashscope.Frame, 3)
	srv := dashscopetest.NewServer(t, func(s *dashscopetest.Session) {
		run, _, err := s.ReadFrame()
		if err != nil {
			return
		}
		frames <- run
		id := run.Header.TaskID
		_ = s.Send(dashscope.EventStarted, id, nil)
		cont, _, err := s.ReadFrame()
		if err != nil {
			return
		}
		frames <- cont
		_ = s.SendAudio([]byte{1, 0, 2, 0})
		fin, _, err := s.ReadFrame()
		if err != nil {
			return
		}
		frames <- fin
		_ = s.SendAudio([]byte{3, 0})
		_ = s.Send(dashscope.EventFinished, id, nil)
	})

	d := NewDashScopeSynthesizer(srv.URL, "sk-tts", "", "", 0, 0, zerolog.Nop())
	samples, rate, err := d.Synthesize(context.Background(), "Hello!", "cheerful")

	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, samples)
	assert.Equal(t, DefaultSampleRate, rate)

	run := <-frames
	assert.Equal(t, DefaultDashScopeModel, run.Payload.Model)
	assert.Equal(t, "SpeechSynthesizer", run.Payload.Function)
	assert.Equal(t, DefaultDashScopeVoice, run.Payload.Parameters["voice"])
	assert.Equal(t, "pcm", run.Payload.Parameters["format"])
	cont := <-frames
	assert.Equal(t, "Hello!", cont.Payload.Input["text"])
	assert.Equal(t, dashscope.ActionFinish, (<-frames).Header.Action)
}

func TestSherpaSynthesizer(t *testing.T) {
	var sids []int
	var released bool
	s := newSherpaSynthesizer(SherpaConfig{SpeakerID: 3, Styles: map[string]int{"Cheerful": 7}},
		func(text string, sid int, speed float32) ([]float32, int) {
			sids = append(sids, sid)
			assert.Equal(t, float32(1.0), speed)
			if text == "silent" {
				return nil, 0
			}
			return []float32{0, 0.5, -1}, 22050
		},
		func() { released = true })

	samples, rate, err := s.Synthesize(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, 22050, rate)
	assert.Equal(t, []int16{0, 16383, -32767}, samples)

	_, _, err = s.Synthesize(context.Background(), "hi", "cheerful")
	require.NoError(t, err)
	_, _, err = s.Synthesize(context.Background(), "hi", "unknown")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 3}, sids)

	_, _, err = s.Synthesize(context.Background(), "silent", "")
	assert.Error(t, err)

	s.Close()
	s.Close()
	assert.True(t, released)
}

func TestNewSherpaSynthesizer_RequiresModel(t *testing.T) {
	_, err := NewSherpaSynthesizer(SherpaConfig{})
	assert.Error(t, err)
}
