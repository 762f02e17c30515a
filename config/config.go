// Package config loads the playground's settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	rds "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/KamdynS/agent-playground/agent/core"
	"github.com/KamdynS/agent-playground/llm/provider"
	"github.com/KamdynS/agent-playground/memory"
	"github.com/KamdynS/agent-playground/memory/inmemory"
	"github.com/KamdynS/agent-playground/memory/postgres"
	"github.com/KamdynS/agent-playground/memory/redis"
)

const namespace = "PLAYGROUND"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set are left alone and missing files are skipped. With no paths
// it reads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Protected is the set of variables present in the process environment
// before any .env file was read
type Protected map[string]bool

// SnapshotEnv records the current environment. Take it before LoadDotEnv.
func SnapshotEnv() Protected {
	out := Protected{}
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok {
			out[k] = true
		}
	}
	return out
}

// ReloadDotEnv re-reads paths after an edit. Unlike LoadDotEnv it overwrites
// values that came from an earlier read, but never a variable in protected.
func ReloadDotEnv(protected Protected, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		for k, v := range vars {
			if protected[k] {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
	}
	return nil
}

// Settings is the process configuration. Credential fields also accept
// their unprefixed names, e.g. GROQ_API_KEY.
type Settings struct {
	Host         string        `default:"localhost"`
	Port         int           `default:"7777"`
	Reload       bool          `default:"true"`
	AgentsFile   string        `split_words:"true"`
	ReadTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout time.Duration `split_words:"true" default:"5m"`

	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"console"`

	// APIKey protects the playground API when set
	APIKey string `split_words:"true"`

	// Guardrails applied to every agent
	MaxInputChars  int      `split_words:"true"`
	DenySubstrings []string `split_words:"true"`
	DenyTools      []string `split_words:"true"`

	Storage       string        `default:"memory"`
	RedisAddr     string        `split_words:"true" default:"localhost:6379"`
	RedisPassword string        `split_words:"true"`
	RedisDB       int           `split_words:"true"`
	PostgresDSN   string        `envconfig:"POSTGRES_DSN"`
	SessionTTL    time.Duration `split_words:"true"`

	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL      string `envconfig:"GROQ_BASE_URL"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL"`
}

// Load reads Settings from the environment. Missing credentials are not an
// error; they fail the first model call instead.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(namespace, &s); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks enumerated and ranged values
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	switch s.Storage {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage %q", s.Storage)
	}
	if s.Storage == StoragePostgres && s.PostgresDSN == "" {
		return fmt.Errorf("storage %s requires %s_POSTGRES_DSN", StoragePostgres, namespace)
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	return nil
}

// Credentials returns the provider keys
func (s *Settings) Credentials() provider.Credentials {
	return provider.Credentials{
		GroqAPIKey:       s.GroqAPIKey,
		GroqBaseURL:      s.GroqBaseURL,
		OpenAIAPIKey:     s.OpenAIAPIKey,
		OpenAIBaseURL:    s.OpenAIBaseURL,
		AnthropicAPIKey:  s.AnthropicAPIKey,
		AnthropicBaseURL: s.AnthropicBaseURL,
	}
}

// Middleware returns the configured guardrails, or nil when none are set
func (s *Settings) Middleware() []core.Middleware {
	if s.MaxInputChars <= 0 && len(s.DenySubstrings) == 0 && len(s.DenyTools) == 0 {
		return nil
	}
	return []core.Middleware{&core.SimpleGuardrails{
		DenySubstrings: s.DenySubstrings,
		MaxInputChars:  s.MaxInputChars,
		DenyTools:      s.DenyTools,
	}}
}

// Logger builds the process logger writing to w
func (s *Settings) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if s.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SessionStore opens the configured session backend. The returned close
// function releases its connections.
func (s *Settings) SessionStore(ctx context.Context) (memory.SessionStore, func() error, error) {
	switch s.Storage {
	case StorageRedis:
		client := rds.NewClient(&rds.Options{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
		}
		store := redis.NewStore(client, s.SessionTTL, strings.ToLower(namespace))
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.Connect(ctx, s.PostgresDSN, postgres.DefaultTable)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return inmemory.NewStore(), func() error { return nil }, nil
	}
}
