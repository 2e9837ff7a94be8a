package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the read-only configuration consumed by the export pipeline
type Config struct {
	Backend    string           `mapstructure:"target_backend" validate:"oneof=openwebui notion"`
	OpenWebUI  OpenWebUIConfig  `mapstructure:"openwebui"`
	Notion     NotionConfig     `mapstructure:"notion"`
	Confluence ConfluenceConfig `mapstructure:"confluence"`
	Export     ExportConfig     `mapstructure:"export"`
	Retry      RetryConfig      `mapstructure:"retry"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Circuit    CircuitConfig    `mapstructure:"circuit_breaker"`
	History    HistoryConfig    `mapstructure:"history"`
	Log        LogConfig        `mapstructure:"log"`
}

// OpenWebUIConfig holds the knowledge-base service endpoint
type OpenWebUIConfig struct {
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	APIKey string `mapstructure:"api_key"`
}

// NotionConfig holds the Notion backend settings
type NotionConfig struct {
	APIKey       string `mapstructure:"api_key"`
	ParentPageID string `mapstructure:"parent_page_id"`
}

// ConfluenceConfig holds the source system endpoint
type ConfluenceConfig struct {
	URL      string `mapstructure:"url" validate:"required,url"`
	Username string `mapstructure:"username"`
	APIToken string `mapstructure:"api_token"`
	PAT      string `mapstructure:"pat"`
}

// ExportConfig controls what gets uploaded and how
type ExportConfig struct {
	OutputPath           string `mapstructure:"output_path"`
	AttachmentExtensions string `mapstructure:"attachment_extensions"`
	MaxAttachmentSizeMB  int    `mapstructure:"max_attachment_size_mb" validate:"gte=0"`
	BatchAdd             bool   `mapstructure:"batch_add"`
	Concurrency          int    `mapstructure:"concurrency" validate:"gte=1,lte=32"`
	SearchLimit          int    `mapstructure:"search_limit" validate:"gte=1"`
}

// RetryConfig controls backoff for transient target failures
type RetryConfig struct {
	BackoffFactor     float64 `mapstructure:"backoff_factor" validate:"gte=0"`
	MaxBackoffSeconds int     `mapstructure:"max_backoff_seconds" validate:"gte=0"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0,lte=20"`
	StatusCodes       string  `mapstructure:"status_codes"`
}

// HTTPConfig controls per-call behaviour of the REST clients
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"gte=1"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"gte=0"`
}

// CircuitConfig toggles the circuit breaker around the target client
type CircuitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HistoryConfig points at the optional export history database
type HistoryConfig struct {
	DB string `mapstructure:"db"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
	File   string `mapstructure:"file"`
}

// Timeout returns the per-call HTTP timeout
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxBackoff returns the backoff ceiling
func (c RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// RetryableStatusCodes parses the comma-separated status list
func (c RetryConfig) RetryableStatusCodes() ([]int, error) {
	var codes []int
	for _, part := range strings.Split(c.StatusCodes, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("invalid retry status code %q", part)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Load reads configuration from an optional .env file, an optional config
// file, and the environment. Environment variables win.
func Load(configFile string) (*Config, error) {
	cfg, err := read(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is Load for commands that never reach Confluence or a target,
// such as reading the export history. Only logging settings are checked.
func LoadLocal(configFile string) (*Config, error) {
	cfg, err := read(configFile)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg.Log); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func read(configFile string) (*Config, error) {
	// Missing .env is fine; the environment may already be populated
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config from %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Backend {
	case "openwebui":
		if c.OpenWebUI.URL == "" {
			return fmt.Errorf("OPENWEBUI_URL is not set")
		}
		if c.OpenWebUI.APIKey == "" {
			return fmt.Errorf("OPENWEBUI_API_KEY is not set")
		}
	case "notion":
		if c.Notion.APIKey == "" {
			return fmt.Errorf("NOTION_API_KEY is not set")
		}
		if c.Notion.ParentPageID == "" {
			return fmt.Errorf("NOTION_PARENT_PAGE_ID is not set")
		}
	}

	if _, err := c.Retry.RetryableStatusCodes(); err != nil {
		return err
	}
	return nil
}
