// Package config loads the immutable process configuration from defaults,
// an optional TOML file and CHATGPT_LOCAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/n0madic/claude-chatmock/internal/upstream"
)

const (
	ClientIDDefault     = "app_EMoamEEZ73f0CkXaXp7hrann"
	TokenURLDefault     = "https://auth.openai.com/oauth/token"
	OllamaVersionString = "0.12.10"

	// EnvPrefix marks environment variables read by Load.
	EnvPrefix = "CHATGPT_LOCAL_"
	// ClaudeEnvPrefix marks the attachment and token variables shared with
	// Claude Code setups. CHATGPT_LOCAL_ variables take precedence.
	ClaudeEnvPrefix = "CLAUDE_CODE_"
)

// Config holds all server configuration. It is built once by Load and
// passed to components by value or field.
type Config struct {
	Host                  string `koanf:"host" validate:"required"`
	Port                  int    `koanf:"port" validate:"min=1,max=65535"`
	Verbose               bool   `koanf:"verbose"`
	Debug                 bool   `koanf:"debug"`
	AccessToken           string `koanf:"access_token"`
	DebugModel            string `koanf:"debug_model"`
	ExposeReasoningModels bool   `koanf:"expose_reasoning_models"`
	InstructionsFile      string `koanf:"instructions_file"`
	DefaultMaxTokens      int    `koanf:"default_max_tokens" validate:"gt=0"`
	ForwardMaxTokens      bool   `koanf:"forward_max_tokens"`

	Reasoning ReasoningConfig `koanf:"reasoning"`
	Files     FilesConfig     `koanf:"files"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ReasoningConfig struct {
	Effort  string `koanf:"effort" validate:"oneof=minimal low medium high xhigh"`
	Summary string `koanf:"summary" validate:"oneof=auto concise detailed none"`
	Compat  string `koanf:"compat" validate:"oneof=think-tags o3 legacy current"`
}

// FilesConfig bounds file attachments. An empty Root means the working
// directory.
type FilesConfig struct {
	Root     string `koanf:"root"`
	MaxBytes int    `koanf:"max_bytes" validate:"gt=0"`
}

type UpstreamConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type AuthConfig struct {
	Storage  string `koanf:"storage" validate:"oneof=file keyring"`
	ClientID string `koanf:"client_id" validate:"required"`
	TokenURL string `koanf:"token_url" validate:"required,url"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"host":                    "127.0.0.1",
		"port":                    8000,
		"verbose":                 false,
		"debug":                   false,
		"access_token":            "",
		"debug_model":             "",
		"expose_reasoning_models": false,
		"instructions_file":       "",
		"default_max_tokens":      2048,
		"forward_max_tokens":      false,
		"reasoning.effort":        "medium",
		"reasoning.summary":       "auto",
		"reasoning.compat":        "think-tags",
		"files.root":              "",
		"files.max_bytes":         200000,
		"upstream.url":            upstream.DefaultURL,
		"upstream.timeout":        upstream.DefaultTimeout.String(),
		"auth.storage":            "file",
		"auth.client_id":          ClientIDDefault,
		"auth.token_url":          TokenURLDefault,
		"log.level":               "info",
		"log.format":              "text",
		"metrics.enabled":         true,
	}
}

// envAliases maps the flat variable names used by earlier releases onto
// nested keys.
var envAliases = map[string]string{
	"reasoning_effort":  "reasoning.effort",
	"reasoning_summary": "reasoning.summary",
	"reasoning_compat":  "reasoning.compat",
	"client_id":         "auth.client_id",
	"files_root":        "files.root",
	"files_max_bytes":   "files.max_bytes",
	"log_level":         "log.level",
	"log_format":        "log.format",
}

var claudeEnvKeys = map[string]string{
	"files_root":         "files.root",
	"files_max_bytes":    "files.max_bytes",
	"default_max_tokens": "default_max_tokens",
}

var boolKeys = map[string]bool{
	"verbose":                 true,
	"debug":                   true,
	"expose_reasoning_models": true,
	"forward_max_tokens":      true,
	"metrics.enabled":         true,
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// envKey turns CHATGPT_LOCAL_UPSTREAM__URL into upstream.url.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	return strings.ReplaceAll(key, "__", ".")
}

// claudeEnvKey maps the CLAUDE_CODE_ variables Load understands. Others
// yield "" and are ignored.
func claudeEnvKey(name string) string {
	return claudeEnvKeys[strings.ToLower(strings.TrimPrefix(name, ClaudeEnvPrefix))]
}

func envProvider(prefix string, environ func() []string, keyFn func(string) string) *env.Env {
	return env.Provider(".", env.Opt{
		Prefix:      prefix,
		EnvironFunc: environ,
		TransformFunc: func(k, v string) (string, any) {
			v = strings.TrimSpace(v)
			if v == "" {
				return "", nil
			}
			key := keyFn(k)
			if key == "" {
				return "", nil
			}
			if boolKeys[key] {
				return key, envBool(v)
			}
			return key, v
		},
	})
}

// Load layers defaults, the TOML file at path (skipped when empty), the
// environment and finally overrides, then validates the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	return load(path, os.Environ, overrides)
}

func load(path string, environ func() []string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(envProvider(ClaudeEnvPrefix, environ, claudeEnvKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := k.Load(envProvider(EnvPrefix, environ, envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.Reasoning.Effort = strings.ToLower(strings.TrimSpace(c.Reasoning.Effort))
	c.Reasoning.Summary = strings.ToLower(strings.TrimSpace(c.Reasoning.Summary))
	c.Reasoning.Compat = strings.ToLower(strings.TrimSpace(c.Reasoning.Compat))
	c.Auth.Storage = strings.ToLower(strings.TrimSpace(c.Auth.Storage))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// BaseInstructions returns the contents of InstructionsFile, or fallback
// when none is configured.
func (c *Config) BaseInstructions(fallback string) (string, error) {
	if c.InstructionsFile == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(c.InstructionsFile)
	if err != nil {
		return "", fmt.Errorf("read instructions file: %w", err)
	}
	return string(data), nil
}
