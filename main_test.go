package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice/chat"
	"ai_voice/config"
	"ai_voice/metrics"
)

func loadTestConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "ai_voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBackendConfig_Remote(t *testing.T) {
	cfg := loadTestConfig(t, "chat:\n  remote_url: http://localhost:3000/chat\n  remote_timeout: 7s\n")

	got := backendConfig(cfg, nil)

	assert.Equal(t, chat.RemoteBackendConfig{URL: "http://localhost:3000/chat", Timeout: 7 * time.Second}, got)
}

func TestBackendConfig_Local(t *testing.T) {
	cfg := loadTestConfig(t, `
chat:
  system_prompt: be brief
  max_tokens: 200
  temperature: 0.4
  top_p: 0.9
  frequency_penalty: 0.1
  presence_penalty: 0.2
`)
	completer, err := buildCompleter(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &chat.OpenAICompleter{}, completer)

	got, ok := backendConfig(cfg, completer).(chat.LocalBackendConfig)
	require.True(t, ok)
	assert.Equal(t, "be brief", got.SystemPrompt)
	assert.Equal(t, chat.Settings{MaxTokens: 200, Temperature: 0.4, FrequencyPenalty: 0.1, PresencePenalty: 0.2, TopP: 0.9}, got.Settings)
}

func TestBuildBackend(t *testing.T) {
	m := metrics.New("")

	remote, err := buildBackend(context.Background(), loadTestConfig(t, "chat:\n  remote_url: https://chat.example.com/api\n"), zerolog.Nop(), m)
	require.NoError(t, err)
	assert.Equal(t, "remote", remote.Name())

	local, err := buildBackend(context.Background(), loadTestConfig(t, "chat:\n  provider: openai\n"), zerolog.Nop(), m)
	require.NoError(t, err)
	assert.Equal(t, "local", local.Name())
}

func TestBuildCompleter_Unknown(t *testing.T) {
	cfg := loadTestConfig(t, "")
	cfg.Chat.Provider = "ollama"
	_, err := buildCompleter(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv(config.EnvFileVar, filepath.Join(t.TempDir(), "none.env"))
	path := filepath.Join(t.TempDir(), "ai_voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  remote_url: http://localhost:3000/chat\nlog:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", path})
	t.Cleanup(func() { cfgFile = "" })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "backend: remote http://localhost:3000/chat")
	assert.Contains(t, out.String(), "wake:    text")
}

func TestDescribeBackend(t *testing.T) {
	cfg := loadTestConfig(t, "chat:\n  model: qwen-plus\n")
	assert.Equal(t, "local openai/qwen-plus", describeBackend(cfg))
}

func TestAppCloseRunsInReverse(t *testing.T) {
	var order []int
	a := &app{}
	a.onClose(func() { order = append(order, 1) })
	a.onClose(func() { order = append(order, 2) })
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
