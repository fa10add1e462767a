package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FUNCCALL_MODEL.
const EnvPrefix = "FUNCCALL"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// RetryConfig bounds transport retries.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// Config holds all runtime configuration.
type Config struct {
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Stream  bool          `mapstructure:"stream" yaml:"stream"`

	MaxRounds       int    `mapstructure:"max_rounds" yaml:"max_rounds"`
	MaxTokens       int64  `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxMessages     int    `mapstructure:"max_messages" yaml:"max_messages"`
	MaxMessageBytes int    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxPromptTokens int    `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	ToolChoice      string `mapstructure:"tool_choice" yaml:"tool_choice"`
	Concurrency     int    `mapstructure:"concurrency" yaml:"concurrency"`
	MaxResultBytes  int    `mapstructure:"max_result_bytes" yaml:"max_result_bytes"`
	SystemPrompt    string `mapstructure:"system_prompt" yaml:"system_prompt"`

	// AllowedDirs enables the read_file tool when non-empty.
	AllowedDirs  []string `mapstructure:"allowed_dirs" yaml:"allowed_dirs"`
	MaxReadBytes int64    `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`

	Verbose   bool   `mapstructure:"verbose" yaml:"verbose"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	RedisAddr  string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisTTL   time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
	ListenAddr string        `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		Model:          "gpt-4o-mini",
		Timeout:        60 * time.Second,
		Retry:          RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
		MaxRounds:      8,
		MaxTokens:      512,
		ToolChoice:     "auto",
		Concurrency:    4,
		MaxResultBytes: 30000,
		MaxReadBytes:   16 * 1024,
		LogFormat:      LogFormatText,
		RedisTTL:       24 * time.Hour,
		ListenAddr:     ":8080",
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	defaults := DefaultConfig()
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.ToolChoice = strings.TrimSpace(cfg.ToolChoice)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	dirs := make([]string, 0, len(cfg.AllowedDirs))
	for _, dir := range cfg.AllowedDirs {
		for _, part := range strings.Split(dir, ",") {
			if part = strings.TrimSpace(part); part != "" {
				dirs = append(dirs, part)
			}
		}
	}
	cfg.AllowedDirs = dirs

	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if cfg.MaxTokens < 0 {
		cfg.MaxTokens = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ToolChoice == "" {
		cfg.ToolChoice = defaults.ToolChoice
	}
	if cfg.LogFormat != LogFormatJSON {
		cfg.LogFormat = LogFormatText
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		cfg.Retry.MaxDelay = cfg.Retry.BaseDelay
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = defaults.MaxReadBytes
	}
	return cfg
}

// Validate reports settings that make a model request impossible.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("APIKey is not set (OPENAI_API_KEY or FUNCCALL_API_KEY)"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("Model is not set"))
	}
	if c.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds))
	}
	return errors.Join(errs...)
}

// Load reads configuration with precedence: environment, then the optional
// YAML file at path, then defaults. A .env file in the working directory is
// loaded into the environment first; existing variables win.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("base_url", EnvPrefix+"_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("model", EnvPrefix+"_MODEL", "OPENAI_MODEL")

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return Normalize(cfg), nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("stream", d.Stream)
	v.SetDefault("max_rounds", d.MaxRounds)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("max_messages", d.MaxMessages)
	v.SetDefault("max_message_bytes", d.MaxMessageBytes)
	v.SetDefault("max_prompt_tokens", d.MaxPromptTokens)
	v.SetDefault("tool_choice", d.ToolChoice)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("max_result_bytes", d.MaxResultBytes)
	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("allowed_dirs", d.AllowedDirs)
	v.SetDefault("max_read_bytes", d.MaxReadBytes)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_ttl", d.RedisTTL)
	v.SetDefault("listen_addr", d.ListenAddr)
}
