package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// resolveHeaders expands $VAR and ${VAR} in header values. Variables of
// envFile take precedence over the process environment.
func resolveHeaders(headers map[string]string, envFile string) (map[string]string, error) {
	env, err := loadEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
	ret := make(map[string]string, len(headers))
	for k, v := range headers {
		ret[k] = os.Expand(v, lookup)
	}
	return ret, nil
}

func loadEnvFile(envFile string) (map[string]string, error) {
	envFile = strings.TrimSpace(envFile)
	if envFile == "" {
		return nil, nil
	}
	resolved, err := expandUserPath(envFile)
	if err != nil {
		return nil, err
	}
	env, err := godotenv.Read(resolved)
	if err != nil {
		return nil, fmt.Errorf("read envfile %q: %w", resolved, err)
	}
	return env, nil
}

func expandUserPath(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:]), nil
	}
	// Don't attempt to expand ~user paths.
	return p, nil
}
