package chat

import (
	"fmt"
	"net/url"
	"time"
)

// BackendConfig is the resolved choice of chat backend. It is either a
// RemoteBackendConfig or a LocalBackendConfig, never both.
type BackendConfig interface {
	backendConfig()
}

// RemoteBackendConfig selects RemoteSessionBackend.
type RemoteBackendConfig struct {
	URL     string
	Timeout time.Duration
}

// LocalBackendConfig selects LocalHistoryBackend.
type LocalBackendConfig struct {
	Completer    Completer
	SystemPrompt string
	Settings     Settings
}

func (RemoteBackendConfig) backendConfig() {}
func (LocalBackendConfig) backendConfig()  {}

// NewBackend builds the one backend used for the whole process lifetime.
func NewBackend(cfg BackendConfig, opts ...Option) (Backend, error) {
	switch c := cfg.(type) {
	case RemoteBackendConfig:
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("chat: invalid remote url %q", c.URL)
		}
		return NewRemoteSessionBackend(c.URL, nil, c.Timeout, opts...), nil
	case LocalBackendConfig:
		if c.Completer == nil {
			return nil, ErrNoBackend
		}
		return NewLocalHistoryBackend(c.Completer, c.SystemPrompt, c.Settings, opts...), nil
	default:
		return nil, ErrNoBackend
	}
}
