package config

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// EnvFileVar names an env file to load before anything else.
const EnvFileVar = "AI_VOICE_ENV_FILE"

// DefaultEnvFiles are tried in order when EnvFileVar is unset.
var DefaultEnvFiles = []string{
	"/userdata/AI_VOICE/ai_voice.env",
	"./ai_voice.env",
}

// LoadEnvFile seeds the process environment from the first env file found.
// Variables already set win over the file. It returns the path it loaded,
// or "" when there was none.
func LoadEnvFile() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvFileVar)); p != "" {
		if err := loadEnvFile(p); err != nil {
			return "", err
		}
		return p, nil
	}
	for _, p := range DefaultEnvFiles {
		if err := loadEnvFile(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		return p, nil
	}
	return "", nil
}

// loadEnvFile reads KEY=VALUE lines; "#" comments and "export " prefixes
// are allowed.
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		_ = os.Setenv(key, unquote(strings.TrimSpace(val)))
	}
	return scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if u, err := strconv.Unquote(v); err == nil {
			return u
		}
		return strings.Trim(v, `"`)
	}
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}

// splitList splits on ASCII or full-width commas and drops blanks.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		item = strings.ReplaceAll(item, "，", ",")
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
