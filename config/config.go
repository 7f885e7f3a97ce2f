// Package config loads runtime settings from defaults, an optional YAML
// file, an optional env file and AI_VOICE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted in the config.
const (
	ProviderDashScope = "dashscope"
	ProviderGoogle    = "google"
	ProviderSherpa    = "sherpa"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderKWS       = "kws"
	ProviderText      = "text"
	DevicePortAudio   = "portaudio"
	DeviceALSA        = "alsa"
)

var (
	ErrMissingAPIKey = errors.New("config: api key is required")
	ErrMissingModel  = errors.New("config: model path is required")
)

// Config holds all application configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Chat      ChatConfig      `mapstructure:"chat"`
	DashScope DashScopeConfig `mapstructure:"dashscope"`
	Wake      WakeConfig      `mapstructure:"wake"`
	Audio     AudioConfig     `mapstructure:"audio"`
	VAD       VADConfig       `mapstructure:"vad"`
	ASR       ASRConfig       `mapstructure:"asr"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

type SessionConfig struct {
	Greeting        string        `mapstructure:"greeting"`
	TerminationWord string        `mapstructure:"termination_word"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ChatConfig picks the backend: a non-empty RemoteURL selects the remote
// session backend, otherwise the local history backend talks to Provider.
type ChatConfig struct {
	RemoteURL     string        `mapstructure:"remote_url"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`

	Provider         string        `mapstructure:"provider"`
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	TopP             float64       `mapstructure:"top_p"`
	FrequencyPenalty float64       `mapstructure:"frequency_penalty"`
	PresencePenalty  float64       `mapstructure:"presence_penalty"`
}

type DashScopeConfig struct {
	APIKey string `mapstructure:"api_key"`
	WSURL  string `mapstructure:"ws_url"`
}

type WakeConfig struct {
	Provider     string   `mapstructure:"provider"`
	Words        []string `mapstructure:"words"`
	Encoder      string   `mapstructure:"encoder"`
	Decoder      string   `mapstructure:"decoder"`
	Joiner       string   `mapstructure:"joiner"`
	Tokens       string   `mapstructure:"tokens"`
	KeywordsFile string   `mapstructure:"keywords_file"`
	NumThreads   int      `mapstructure:"num_threads"`
	Score        float64  `mapstructure:"score"`
	Threshold    float64  `mapstructure:"threshold"`
}

type AudioConfig struct {
	Input         string      `mapstructure:"input"`
	Output        string      `mapstructure:"output"`
	Device        string      `mapstructure:"device"`
	Channels      int         `mapstructure:"channels"`
	Channel       int         `mapstructure:"channel"`
	PlayDevice    string      `mapstructure:"play_device"`
	PlayBufferUS  int         `mapstructure:"play_buffer_us"`
	Chime         string      `mapstructure:"chime"`
	ChimeDisabled bool        `mapstructure:"chime_disabled"`
	Mixer         MixerConfig `mapstructure:"mixer"`
}

// MixerConfig sets the startup output volume via amixer. An empty Control
// leaves the volume alone.
type MixerConfig struct {
	Card     int    `mapstructure:"card"`
	Control  string `mapstructure:"control"`
	RawMin   int    `mapstructure:"raw_min"`
	RawMax   int    `mapstructure:"raw_max"`
	Inverted bool   `mapstructure:"inverted"`
	Volume   int    `mapstructure:"volume"`
}

type VADConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	SpeechFrames  int     `mapstructure:"speech_frames"`
	SilenceFrames int     `mapstructure:"silence_frames"`
	MaxSamples    int     `mapstructure:"max_samples"`
	MinSamples    int     `mapstructure:"min_samples"`
	PreRoll       int     `mapstructure:"preroll"`
}

type ASRConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TTSConfig struct {
	Provider   string       `mapstructure:"provider"`
	Model      string       `mapstructure:"model"`
	Voice      string       `mapstructure:"voice"`
	SampleRate int          `mapstructure:"sample_rate"`
	Volume     int          `mapstructure:"volume"`
	Sherpa     SherpaConfig `mapstructure:"sherpa"`
}

type SherpaConfig struct {
	Model      string         `mapstructure:"model"`
	Lexicon    string         `mapstructure:"lexicon"`
	Tokens     string         `mapstructure:"tokens"`
	DataDir    string         `mapstructure:"data_dir"`
	NumThreads int            `mapstructure:"num_threads"`
	SpeakerID  int            `mapstructure:"speaker_id"`
	Speed      float64        `mapstructure:"speed"`
	Styles     map[string]int `mapstructure:"styles"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RemoteBackend reports whether the remote session backend is selected.
func (c *Config) RemoteBackend() bool {
	return strings.TrimSpace(c.Chat.RemoteURL) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", "")

	v.SetDefault("session.greeting", "Hello!")
	v.SetDefault("session.termination_word", "goodbye")
	v.SetDefault("session.retry_delay", time.Second)
	v.SetDefault("session.shutdown_timeout", 5*time.Second)

	v.SetDefault("chat.remote_url", "")
	v.SetDefault("chat.remote_timeout", 30*time.Second)
	v.SetDefault("chat.provider", ProviderOpenAI)
	v.SetDefault("chat.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.model", "qwen-turbo-latest")
	v.SetDefault("chat.system_prompt", "You are a friendly voice assistant. Answer in one or two short spoken sentences without markdown.")
	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("chat.max_tokens", 150)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.top_p", 1.0)
	v.SetDefault("chat.frequency_penalty", 0.0)
	v.SetDefault("chat.presence_penalty", 0.0)

	v.SetDefault("dashscope.api_key", "")
	v.SetDefault("dashscope.ws_url", "wss://dashscope.aliyuncs.com/api-ws/v1/inference/")

	v.SetDefault("wake.provider", ProviderText)
	v.SetDefault("wake.words", []string{"hey jarvis", "jarvis"})
	v.SetDefault("wake.encoder", "")
	v.SetDefault("wake.decoder", "")
	v.SetDefault("wake.joiner", "")
	v.SetDefault("wake.tokens", "")
	v.SetDefault("wake.keywords_file", "")
	v.SetDefault("wake.num_threads", 1)
	v.SetDefault("wake.score", 1.0)
	v.SetDefault("wake.threshold", 0.25)

	v.SetDefault("audio.input", DevicePortAudio)
	v.SetDefault("audio.output", DevicePortAudio)
	v.SetDefault("audio.device", "default")
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.channel", 0)
	v.SetDefault("audio.play_device", "default")
	v.SetDefault("audio.play_buffer_us", 20000)
	v.SetDefault("audio.chime", "")
	v.SetDefault("audio.chime_disabled", false)
	v.SetDefault("audio.mixer.card", -1)
	v.SetDefault("audio.mixer.control", "")
	v.SetDefault("audio.mixer.raw_min", 0)
	v.SetDefault("audio.mixer.raw_max", 100)
	v.SetDefault("audio.mixer.inverted", false)
	v.SetDefault("audio.mixer.volume", 60)

	v.SetDefault("vad.threshold", 1000.0)
	v.SetDefault("vad.speech_frames", 10)
	v.SetDefault("vad.silence_frames", 10)
	v.SetDefault("vad.max_samples", 16000*8)
	v.SetDefault("vad.min_samples", 4800)
	v.SetDefault("vad.preroll", 8000)

	v.SetDefault("asr.provider", ProviderDashScope)
	v.SetDefault("asr.model", "paraformer-realtime-v2")
	v.SetDefault("asr.language", "en-US")
	v.SetDefault("asr.timeout", 10*time.Second)

	v.SetDefault("tts.provider", ProviderDashScope)
	v.SetDefault("tts.model", "cosyvoice-v1")
	v.SetDefault("tts.voice", "longwan")
	v.SetDefault("tts.sample_rate", 22050)
	v.SetDefault("tts.volume", 50)
	v.SetDefault("tts.sherpa.model", "")
	v.SetDefault("tts.sherpa.lexicon", "")
	v.SetDefault("tts.sherpa.tokens", "")
	v.SetDefault("tts.sherpa.data_dir", "")
	v.SetDefault("tts.sherpa.num_threads", 2)
	v.SetDefault("tts.sherpa.speaker_id", 0)
	v.SetDefault("tts.sherpa.speed", 1.0)

	v.SetDefault("metrics.addr", "")
}

// Load resolves the configuration. path may be empty, in which case
// ai_voice.yaml is looked up in "." and /userdata/AI_VOICE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AI_VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ai_voice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/userdata/AI_VOICE")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

// applyFallbacks fills keys from the well-known variables other tools use.
func (c *Config) applyFallbacks() {
	c.Wake.Words = splitList(c.Wake.Words)
	if c.DashScope.APIKey == "" {
		c.DashScope.APIKey = strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
	}
	if c.Chat.APIKey == "" {
		switch c.Chat.Provider {
		case ProviderOpenAI:
			if strings.Contains(c.Chat.BaseURL, "dashscope") {
				c.Chat.APIKey = c.DashScope.APIKey
			} else {
				c.Chat.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
			}
		case ProviderGemini:
			c.Chat.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
			if c.Chat.APIKey == "" {
				c.Chat.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
			}
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Session.TerminationWord) == "" {
		add("session.termination_word must not be empty")
	}

	if c.RemoteBackend() {
		u, err := url.Parse(c.Chat.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("chat.remote_url %q is not an http(s) URL", c.Chat.RemoteURL)
		}
	} else {
		switch c.Chat.Provider {
		case ProviderOpenAI, ProviderGemini:
		default:
			add("chat.provider %q must be %s or %s", c.Chat.Provider, ProviderOpenAI, ProviderGemini)
		}
		if c.Chat.APIKey == "" {
			errs = append(errs, fmt.Errorf("chat.api_key: %w", ErrMissingAPIKey))
		}
		if c.Chat.Model == "" {
			add("chat.model must not be empty")
		}
		if c.Chat.MaxTokens <= 0 {
			add("chat.max_tokens must be positive")
		}
		if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
			add("chat.temperature %.2f out of range [0, 2]", c.Chat.Temperature)
		}
		if c.Chat.TopP <= 0 || c.Chat.TopP > 1 {
			add("chat.top_p %.2f out of range (0, 1]", c.Chat.TopP)
		}
		if c.Chat.FrequencyPenalty < -2 || c.Chat.FrequencyPenalty > 2 {
			add("chat.frequency_penalty %.2f out of range [-2, 2]", c.Chat.FrequencyPenalty)
		}
		if c.Chat.PresencePenalty < -2 || c.Chat.PresencePenalty > 2 {
			add("chat.presence_penalty %.2f out of range [-2, 2]", c.Chat.PresencePenalty)
		}
	}

	needDashScope := false
	switch c.ASR.Provider {
	case ProviderDashScope:
		needDashScope = true
	case ProviderGoogle:
	default:
		add("asr.provider %q must be %s or %s", c.ASR.Provider, ProviderDashScope, ProviderGoogle)
	}
	switch c.TTS.Provider {
	case ProviderDashScope:
		needDashScope = true
	case ProviderSherpa:
		if c.TTS.Sherpa.Model == "" || c.TTS.Sherpa.Tokens == "" {
			errs = append(errs, fmt.Errorf("tts.sherpa.model and tts.sherpa.tokens: %w", ErrMissingModel))
		}
	default:
		add("tts.provider %q must be %s or %s", c.TTS.Provider, ProviderDashScope, ProviderSherpa)
	}
	if needDashScope && c.DashScope.APIKey == "" {
		errs = append(errs, fmt.Errorf("dashscope.api_key (or DASHSCOPE_API_KEY): %w", ErrMissingAPIKey))
	}

	switch c.Wake.Provider {
	case ProviderKWS:
		if c.Wake.Encoder == "" || c.Wake.Decoder == "" || c.Wake.Joiner == "" || c.Wake.Tokens == "" || c.Wake.KeywordsFile == "" {
			errs = append(errs, fmt.Errorf("wake encoder, decoder, joiner, tokens and keywords_file: %w", ErrMissingModel))
		}
	case ProviderText:
		if len(c.Wake.Words) == 0 {
			add("wake.words must not be empty")
		}
	default:
		add("wake.provider %q must be %s or %s", c.Wake.Provider, ProviderKWS, ProviderText)
	}

	if c.Audio.Input != DevicePortAudio && c.Audio.Input != DeviceALSA {
		add("audio.input %q must be %s or %s", c.Audio.Input, DevicePortAudio, DeviceALSA)
	}
	if c.Audio.Output != DevicePortAudio && c.Audio.Output != DeviceALSA {
		add("audio.output %q must be %s or %s", c.Audio.Output, DevicePortAudio, DeviceALSA)
	}
	if m := c.Audio.Mixer; m.Control != "" {
		if m.RawMax <= m.RawMin {
			add("audio.mixer.raw_max %d must be above raw_min %d", m.RawMax, m.RawMin)
		}
		if m.Volume < 0 || m.Volume > 100 {
			add("audio.mixer.volume %d must be within 0-100", m.Volume)
		}
	}
	return errors.Join(errs...)
}
