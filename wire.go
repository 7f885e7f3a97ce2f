package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"ai_voice/asr"
	"ai_voice/audio"
	"ai_voice/chat"
	"ai_voice/config"
	"ai_voice/logging"
	"ai_voice/metrics"
	"ai_voice/session"
	"ai_voice/tts"
	"ai_voice/vad"
	"ai_voice/wake"
)

// app owns everything built from the config; Close releases it in reverse
// order of construction.
type app struct {
	session *session.Session
	metrics *metrics.Metrics
	closers []func()
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{metrics: metrics.New("")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Audio.Input == config.DevicePortAudio || cfg.Audio.Output == config.DevicePortAudio {
		terminate, err := audio.Init()
		if err != nil {
			return nil, err
		}
		a.onClose(terminate)
	}

	source, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := source.(interface{ Close() error }); ok {
		a.onClose(func() { _ = c.Close() })
	}
	player := buildPlayer(cfg)
	if m := cfg.Audio.Mixer; m.Control != "" {
		mixer := audio.NewMixer(m.Card, m.Control, m.RawMin, m.RawMax, m.Inverted)
		if err := mixer.SetPercent(ctx, m.Volume); err != nil {
			log.Warn().Err(err).Msg("[Audio] could not set output volume")
		} else {
			log.Info().Int("volume", m.Volume).Str("control", m.Control).Msg("🔊 [Audio] output volume set")
		}
	}

	transcriber, err := buildTranscriber(ctx, cfg, logging.Component(log, "asr"))
	if err != nil {
		return nil, err
	}
	if c, ok := transcriber.(interface{ Close() error }); ok {
		a.onClose(func() { _ = c.Close() })
	}
	segmenter := vad.NewSegmenter(vad.NewEngine(cfg.VAD.Threshold), vad.SegmenterConfig{
		SpeechFrames:  cfg.VAD.SpeechFrames,
		SilenceFrames: cfg.VAD.SilenceFrames,
		MaxSamples:    cfg.VAD.MaxSamples,
		MinSamples:    cfg.VAD.MinSamples,
		PreRoll:       cfg.VAD.PreRoll,
	})
	listener := asr.NewListener(source, segmenter, transcriber, cfg.ASR.Timeout, logging.Component(log, "asr"))

	detector, err := buildWake(cfg, source, listener, logging.Component(log, "wake"))
	if err != nil {
		return nil, err
	}
	if c, ok := detector.(interface{ Close() }); ok {
		a.onClose(c.Close)
	}

	synth, err := buildSynthesizer(cfg, logging.Component(log, "tts"))
	if err != nil {
		return nil, err
	}
	if c, ok := synth.(interface{ Close() }); ok {
		a.onClose(c.Close)
	}
	speaker := tts.NewSpeaker(synth, player, logging.Component(log, "tts"))

	var notifier session.Notifier
	if !cfg.Audio.ChimeDisabled {
		chime, err := audio.NewChime(player, cfg.Audio.Chime)
		if err != nil {
			return nil, err
		}
		notifier = chime
	}

	backend, err := buildBackend(ctx, cfg, logging.Component(log, "chat"), a.metrics)
	if err != nil {
		return nil, err
	}

	a.session, err = session.New(session.Deps{
		Wake:     detector,
		Listener: listener,
		Speaker:  speaker,
		Notifier: notifier,
		Backend:  backend,
	},
		session.WithLogger(logging.Component(log, "session")),
		session.WithGreeting(cfg.Session.Greeting),
		session.WithTerminationWord(cfg.Session.TerminationWord),
		session.WithRetryDelay(cfg.Session.RetryDelay),
		session.WithStateHook(func(from, to session.State) {
			a.metrics.ObserveState(from.String(), to.String())
		}),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildSource(cfg *config.Config) (audio.Source, error) {
	if cfg.Audio.Input == config.DeviceALSA {
		return audio.NewArecordSource(cfg.Audio.Device, cfg.Audio.Channels, cfg.Audio.Channel), nil
	}
	return audio.OpenMicrophone()
}

func buildPlayer(cfg *config.Config) audio.Player {
	if cfg.Audio.Output == config.DeviceALSA {
		p := audio.NewAplayPlayer(cfg.Audio.PlayDevice)
		if cfg.Audio.PlayBufferUS > 0 {
			p.BufferUS = cfg.Audio.PlayBufferUS
		}
		return p
	}
	return audio.NewDevicePlayer()
}

func buildTranscriber(ctx context.Context, cfg *config.Config, log zerolog.Logger) (asr.Transcriber, error) {
	switch cfg.ASR.Provider {
	case config.ProviderGoogle:
		return asr.NewGoogleTranscriber(ctx, cfg.ASR.Language)
	case config.ProviderDashScope:
		return asr.NewDashScopeTranscriber(cfg.DashScope.WSURL, cfg.DashScope.APIKey, cfg.ASR.Model, log), nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", cfg.ASR.Provider)
	}
}

func buildWake(cfg *config.Config, source audio.Source, listener *asr.Listener, log zerolog.Logger) (session.WakeWordDetector, error) {
	switch cfg.Wake.Provider {
	case config.ProviderKWS:
		return wake.NewKeywordDetector(source, wake.KeywordConfig{
			Encoder:      cfg.Wake.Encoder,
			Decoder:      cfg.Wake.Decoder,
			Joiner:       cfg.Wake.Joiner,
			Tokens:       cfg.Wake.Tokens,
			KeywordsFile: cfg.Wake.KeywordsFile,
			NumThreads:   cfg.Wake.NumThreads,
			Score:        float32(cfg.Wake.Score),
			Threshold:    float32(cfg.Wake.Threshold),
		}, log)
	case config.ProviderText:
		return wake.NewTextDetector(listener, cfg.Wake.Words, log), nil
	default:
		return nil, fmt.Errorf("unknown wake provider %q", cfg.Wake.Provider)
	}
}

func buildSynthesizer(cfg *config.Config, log zerolog.Logger) (tts.Synthesizer, error) {
	switch cfg.TTS.Provider {
	case config.ProviderSherpa:
		s := cfg.TTS.Sherpa
		return tts.NewSherpaSynthesizer(tts.SherpaConfig{
			Model:      s.Model,
			Lexicon:    s.Lexicon,
			Tokens:     s.Tokens,
			DataDir:    s.DataDir,
			NumThreads: s.NumThreads,
			SpeakerID:  s.SpeakerID,
			Speed:      float32(s.Speed),
			Styles:     s.Styles,
		})
	case config.ProviderDashScope:
		return tts.NewDashScopeSynthesizer(cfg.DashScope.WSURL, cfg.DashScope.APIKey, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.SampleRate, cfg.TTS.Volume, log), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}
}

// backendConfig resolves the chat backend choice. completer is only used
// for the local backend.
func backendConfig(cfg *config.Config, completer chat.Completer) chat.BackendConfig {
	if cfg.RemoteBackend() {
		return chat.RemoteBackendConfig{URL: cfg.Chat.RemoteURL, Timeout: cfg.Chat.RemoteTimeout}
	}
	return chat.LocalBackendConfig{
		Completer:    completer,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Settings: chat.Settings{
			MaxTokens:        cfg.Chat.MaxTokens,
			Temperature:      cfg.Chat.Temperature,
			FrequencyPenalty: cfg.Chat.FrequencyPenalty,
			PresencePenalty:  cfg.Chat.PresencePenalty,
			TopP:             cfg.Chat.TopP,
		},
	}
}

func buildCompleter(ctx context.Context, cfg *config.Config) (chat.Completer, error) {
	switch cfg.Chat.Provider {
	case config.ProviderGemini:
		return chat.NewGeminiCompleter(ctx, cfg.Chat.APIKey, cfg.Chat.Model)
	case config.ProviderOpenAI:
		return chat.NewOpenAICompleter(cfg.Chat.BaseURL, cfg.Chat.APIKey, cfg.Chat.Model, &http.Client{Timeout: cfg.Chat.Timeout}), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Chat.Provider)
	}
}

func buildBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger, obs chat.Observer) (chat.Backend, error) {
	var completer chat.Completer
	if !cfg.RemoteBackend() {
		var err error
		if completer, err = buildCompleter(ctx, cfg); err != nil {
			return nil, err
		}
	}
	backend, err := chat.NewBackend(backendConfig(cfg, completer), chat.WithLogger(log), chat.WithObserver(obs))
	if err != nil {
		return nil, err
	}
	log.Info().Str("backend", backend.Name()).Msg("🔧 [Chat] backend ready")
	return backend, nil
}
