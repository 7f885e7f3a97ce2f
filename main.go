package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ai_voice/config"
	"ai_voice/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ai_voice",
	Short: "Wake word voice assistant",
	Long: `ai_voice waits for a wake word, greets the user and then takes turns:
listen, ask the chat backend, speak the reply. Saying "goodbye" ends the
conversation and re-arms the wake word.

Configuration is read from (later wins):
  1. built-in defaults
  2. --config, or ai_voice.yaml in . or /userdata/AI_VOICE
  3. AI_VOICE_ENV_FILE, /userdata/AI_VOICE/ai_voice.env or ./ai_voice.env
  4. AI_VOICE_* environment variables (AI_VOICE_CHAT_REMOTE_URL, ...)`,
	SilenceUsage: true,
	RunE:         runRoot,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the selected components",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ai_voice.yaml in . or /userdata/AI_VOICE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the env file, reads the config and builds the logger.
func loadConfig() (*config.Config, zerolog.Logger, func() error, error) {
	envFile, envErr := config.LoadEnvFile()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, closeLog, err := logging.New(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console, File: cfg.Log.File})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if envErr != nil {
		log.Warn().Err(envErr).Msg("⚠️ [Config] failed to read env file")
	} else if envFile != "" {
		log.Info().Str("path", envFile).Msg("🔧 [Config] env file loaded")
	}
	return cfg, log, closeLog, nil
}

func runRoot(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Info().
		Str("backend", describeBackend(cfg)).
		Str("wake", cfg.Wake.Provider).
		Str("asr", cfg.ASR.Provider).
		Str("tts", cfg.TTS.Provider).
		Msg("🎤 voice assistant starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Error().Err(err).Msg("[Metrics] server stopped")
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- a.session.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down...")
	select {
	case <-done:
		log.Info().Msg("✅ Shutdown complete")
	case <-time.After(cfg.Session.ShutdownTimeout):
		log.Warn().Dur("timeout", cfg.Session.ShutdownTimeout).Msg("⚠️ Shutdown timeout, forcing exit")
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, _, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend: %s\n", describeBackend(cfg))
	fmt.Fprintf(out, "wake:    %s\n", cfg.Wake.Provider)
	fmt.Fprintf(out, "asr:     %s\n", cfg.ASR.Provider)
	fmt.Fprintf(out, "tts:     %s\n", cfg.TTS.Provider)
	fmt.Fprintf(out, "audio:   in=%s out=%s\n", cfg.Audio.Input, cfg.Audio.Output)
	return nil
}

func describeBackend(cfg *config.Config) string {
	if cfg.RemoteBackend() {
		return "remote " + cfg.Chat.RemoteURL
	}
	return fmt.Sprintf("local %s/%s", cfg.Chat.Provider, cfg.Chat.Model)
}
