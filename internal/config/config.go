// Package config loads chatmux.yaml with environment overrides and keeps
// it up to date while the service runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/baalimago/chatmux/internal/discovery"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/tools"
	"github.com/baalimago/chatmux/internal/tools/mcp"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultPath = "chatmux.yaml"
	EnvPrefix   = "CHATMUX"
)

type Config struct {
	Addr      string                `mapstructure:"addr"`
	Models    []router.Model        `mapstructure:"models"`
	Providers router.ProviderConfig `mapstructure:"providers"`
	RateLimit RateLimit             `mapstructure:"rate_limit"`
	Tools     Tools                 `mapstructure:"tools"`
	Documents Documents             `mapstructure:"documents"`
	// Integrations are MCP servers whose tools are offered to every user.
	Integrations []mcp.Server `mapstructure:"integrations"`
}

type RateLimit struct {
	ratelimit.Config `mapstructure:",squash"`
	// Store is one of memory, sqlite, postgres or mysql.
	Store         string        `mapstructure:"store"`
	DSN           string        `mapstructure:"dsn"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// TrustTier takes the tier from the request. Only enable it behind a
	// proxy which sets or strips X-User-Tier.
	TrustTier bool `mapstructure:"trust_tier"`
}

type Tools struct {
	tools.StaticConfig `mapstructure:",squash"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxOutputRunes     int           `mapstructure:"max_output_runes"`
	MaxRounds          int           `mapstructure:"max_rounds"`
	MaxDiscoveryDepth  int           `mapstructure:"max_discovery_depth"`
}

// Documents configures the search_documents tool. It's disabled while Dir
// is empty.
type Documents struct {
	Dir            string `mapstructure:"dir"`
	EmbeddingURL   string `mapstructure:"embedding_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	// EmbeddingKeyEnv names the env var holding the embedding API key.
	EmbeddingKeyEnv string `mapstructure:"embedding_key_env"`
}

// Default is the configuration used for keys missing in the file.
func Default() Config {
	return Config{
		Addr:      ":8080",
		Models:    router.DefaultModels(),
		Providers: router.DefaultProviderConfig(),
		RateLimit: RateLimit{
			Config:        ratelimit.DefaultConfig(),
			Store:         "memory",
			SweepInterval: 10 * time.Minute,
		},
		Tools: Tools{
			StaticConfig:      tools.DefaultStaticConfig(),
			Timeout:           tools.DefaultTimeout,
			MaxOutputRunes:    tools.DefaultMaxOutputRunes,
			MaxRounds:         router.DefaultMaxRounds,
			MaxDiscoveryDepth: discovery.DefaultMaxDepth,
		},
		Documents: Documents{
			EmbeddingURL:    "https://api.openai.com/v1",
			EmbeddingModel:  "text-embedding-3-small",
			EmbeddingKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// defaults flattens Default into viper keys. The vendor structs carry
// runtime state, so only their settings are listed.
func defaults() map[string]any {
	d := Default()
	ms := make([]map[string]any, 0, len(d.Models))
	for _, m := range d.Models {
		ms = append(ms, map[string]any{
			"id":       m.ID,
			"provider": m.Provider,
			"capabilities": map[string]any{
				"tools":  m.Capabilities.Tools,
				"vision": m.Capabilities.Vision,
			},
		})
	}
	p := d.Providers
	return map[string]any{
		"addr":   d.Addr,
		"models": ms,

		"providers.openai.url":                  p.OpenAI.URL,
		"providers.openai.temperature":          p.OpenAI.Temperature,
		"providers.openai.top_p":                p.OpenAI.TopP,
		"providers.openai.requests_per_second":  p.OpenAI.RequestsPerSecond,
		"providers.anthropic.url":               p.Anthropic.URL,
		"providers.anthropic.anthropic_version": p.Anthropic.AnthropicVersion,
		"providers.anthropic.temperature":       p.Anthropic.Temperature,
		"providers.anthropic.max_tokens":        p.Anthropic.MaxTokens,
		"providers.mistral.url":                 p.Mistral.URL,
		"providers.mistral.temperature":         p.Mistral.Temperature,
		"providers.mistral.top_p":               p.Mistral.TopP,
		"providers.gemini.url":                  p.Gemini.URL,
		"providers.gemini.temperature":          p.Gemini.Temperature,
		"providers.gemini.top_p":                p.Gemini.TopP,
		"providers.deepseek.url":                p.DeepSeek.URL,
		"providers.deepseek.temperature":        p.DeepSeek.Temperature,
		"providers.deepseek.top_p":              p.DeepSeek.TopP,

		"rate_limit.window":         d.RateLimit.Window.String(),
		"rate_limit.free":           d.RateLimit.Free,
		"rate_limit.pro":            d.RateLimit.Pro,
		"rate_limit.store":          d.RateLimit.Store,
		"rate_limit.dsn":            d.RateLimit.DSN,
		"rate_limit.sweep_interval": d.RateLimit.SweepInterval.String(),
		"rate_limit.trust_tier":     d.RateLimit.TrustTier,

		"tools.enabled":             []string{},
		"tools.web_search_results":  d.Tools.WebSearchResults,
		"tools.stock_url":           d.Tools.StockURL,
		"tools.geocoding_url":       d.Tools.GeocodingURL,
		"tools.forecast_url":        d.Tools.ForecastURL,
		"tools.timeout":             d.Tools.Timeout.String(),
		"tools.max_output_runes":    d.Tools.MaxOutputRunes,
		"tools.max_rounds":          d.Tools.MaxRounds,
		"tools.max_discovery_depth": d.Tools.MaxDiscoveryDepth,

		"integrations": []map[string]any{},

		"documents.dir":               d.Documents.Dir,
		"documents.embedding_url":     d.Documents.EmbeddingURL,
		"documents.embedding_model":   d.Documents.EmbeddingModel,
		"documents.embedding_key_env": d.Documents.EmbeddingKeyEnv,
	}
}

// LoadDotEnv loads the given env files, .env if none are given. Missing
// files are ignored and variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: '%v': %w", f, err)
		}
	}
	return nil
}

// Loader holds the current configuration and notifies watchers when the
// file changes.
type Loader struct {
	v        *viper.Viper
	path     string
	mu       sync.RWMutex
	current  Config
	watchers []func(old, new Config)
	debug    bool
}

// Load reads the file at path, creating it with the defaults if missing.
// Every key may be overridden by CHATMUX_<KEY>, for example
// CHATMUX_RATE_LIMIT_FREE=20.
func Load(path string) (*Loader, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)

	l := &Loader{
		v:     v,
		path:  path,
		debug: misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("DEBUG_CONFIG")),
	}
	if err := l.createWithDefault(); err != nil {
		return nil, fmt.Errorf("failed to create default config: %w", err)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: '%v': %w", path, err)
	}
	conf, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = conf
	if l.debug {
		ancli.Okf("loaded config: '%v', models: %v\n", path, len(conf.Models))
	}
	return l, nil
}

func (l *Loader) createWithDefault() error {
	if _, err := os.Stat(l.path); !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := l.v.SafeWriteConfigAs(l.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	ancli.Noticef("created default config at: '%v'\n", l.path)
	return nil
}

func (l *Loader) decode() (Config, error) {
	conf := Default()
	// Lists are replaced as a whole, never merged by index
	conf.Models = nil
	conf.Tools.Enabled = nil
	conf.Integrations = nil
	if err := l.v.Unmarshal(&conf); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Validate reports configuration errors which would only surface once a
// request arrives.
func (c Config) Validate() error {
	var errs []error
	known := []string{router.ProviderOpenAI, router.ProviderAnthropic, router.ProviderMistral, router.ProviderGemini, router.ProviderDeepSeek}
	for i, m := range c.Models {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("models[%v]: missing id", i))
		}
		if !containsString(known, m.Provider) {
			errs = append(errs, fmt.Errorf("models[%v]: unknown provider: '%v'", i, m.Provider))
		}
	}
	for i, srv := range c.Integrations {
		if srv.Name == "" || srv.URL == "" {
			errs = append(errs, fmt.Errorf("integrations[%v]: name and url are required", i))
		}
	}
	switch c.RateLimit.Store {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.store: unknown store: '%v'", c.RateLimit.Store))
	}
	return errors.Join(errs...)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Get returns the current configuration.
func (l *Loader) Get() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Path of the loaded file.
func (l *Loader) Path() string {
	return l.path
}

// OnChange registers cb to be called with the old and new configuration
// after each successful reload.
func (l *Loader) OnChange(cb func(old, new Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, cb)
}

// Watch starts watching the file. Editors tend to emit several events per
// save, so reloads are debounced.
func (l *Loader) Watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)
	l.v.OnConfigChange(func(ev fsnotify.Event) {
		debounceMu.Lock()
		defer debounceMu.Unlock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
			l.Reload()
		})
	})
	l.v.WatchConfig()
}

// Reload re-reads the file. An invalid file is reported and the previous
// configuration is kept.
func (l *Loader) Reload() {
	if err := l.v.ReadInConfig(); err != nil {
		ancli.Warnf("failed to reload config: %v\n", err)
		return
	}
	conf, err := l.decode()
	if err != nil {
		ancli.Warnf("failed to reload config, keeping previous: %v\n", err)
		return
	}
	l.mu.Lock()
	old := l.current
	l.current = conf
	watchers := append([]func(old, new Config){}, l.watchers...)
	l.mu.Unlock()

	if reflect.DeepEqual(old, conf) {
		return
	}
	ancli.Okf("reloaded config: '%v'\n", l.path)
	for _, cb := range watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					ancli.Errf("config watcher panicked: %v\n", r)
				}
			}()
			cb(old, conf)
		}()
	}
}
