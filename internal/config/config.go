package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-rash-triage/internal/retry"
	"go-rash-triage/internal/upstream"
	"go-rash-triage/pkg/validation"
)

// writeTimeoutMargin keeps the connection writable after the handler
// deadline so the 504 body still reaches the client
const writeTimeoutMargin = 5 * time.Second

// Record storage backends
const (
	RecordStorageNone  = "none"
	RecordStorageLog   = "log"
	RecordStorageAzure = "azure"
)

// ProviderConfig holds one upstream endpoint's settings
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig tunes the upstream retry policy
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// AzureConfig locates the blob container used for record retention
type AzureConfig struct {
	Account   string
	Key       string
	Container string
}

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	CORSAllowedOrigin  string
	LogLevel           string
	SystemPromptFile   string

	Provider        string
	UpstreamTimeout time.Duration
	Gemini          ProviderConfig
	OpenAI          ProviderConfig
	Retry           RetryConfig

	RecordStorage string
	Azure         AzureConfig
}

// WriteTimeout is the server write deadline, later than RequestTimeout
func (c *Config) WriteTimeout() time.Duration {
	return c.RequestTimeout + writeTimeoutMargin
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// ActiveProvider returns the settings of the selected provider
func (c *Config) ActiveProvider() ProviderConfig {
	if c.Provider == upstream.ProviderOpenAI {
		return c.OpenAI
	}
	return c.Gemini
}

// UpstreamConfig converts the selected provider into client configuration
func (c *Config) UpstreamConfig() upstream.Config {
	active := c.ActiveProvider()
	return upstream.Config{
		Provider: c.Provider,
		APIKey:   active.APIKey,
		Model:    active.Model,
		BaseURL:  active.BaseURL,
		Timeout:  c.UpstreamTimeout,
	}
}

// RetryPolicy converts retry tuning into an invoker policy
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Jitter:      c.Retry.Jitter,
	}
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "3000",
		RequestTimeout:     90 * time.Second,
		MaxRequestBodySize: 6 * 1024 * 1024, // 6MB
		CORSAllowedOrigin:  "*",
		LogLevel:           "info",

		Provider:        upstream.ProviderGemini,
		UpstreamTimeout: 60 * time.Second,
		Gemini: ProviderConfig{
			Model:   upstream.DefaultGeminiModel,
			BaseURL: upstream.DefaultGeminiBaseURL,
		},
		OpenAI: ProviderConfig{
			Model:   upstream.DefaultOpenAIModel,
			BaseURL: upstream.DefaultOpenAIBaseURL,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   retry.DefaultBaseDelay,
			MaxDelay:    retry.DefaultMaxDelay,
			Jitter:      retry.DefaultJitter,
		},

		RecordStorage: RecordStorageLog,
		Azure:         AzureConfig{Container: "triage-records"},
	}
}

// LoadFromEnv builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE, then environment variables, and validates it.
func LoadFromEnv() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	duration := func(key string, target *time.Duration) {
		value, err := parseDurationOrDefault(key, *target)
		errs = append(errs, err)
		*target = value
	}

	c.Host = getEnvOrDefault("HOST", c.Host)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.CORSAllowedOrigin = getEnvOrDefault("CORS_ALLOWED_ORIGIN", c.CORSAllowedOrigin)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.SystemPromptFile = getEnvOrDefault("SYSTEM_PROMPT_FILE", c.SystemPromptFile)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	bodySize, err := parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.MaxRequestBodySize)
	errs = append(errs, err)
	c.MaxRequestBodySize = bodySize

	c.Provider = strings.ToLower(getEnvOrDefault("UPSTREAM_PROVIDER", c.Provider))
	duration("UPSTREAM_TIMEOUT", &c.UpstreamTimeout)
	c.Gemini.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = getEnvOrDefault("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.BaseURL = getEnvOrDefault("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.OpenAI.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.Model = getEnvOrDefault("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)

	attempts, err := parseIntOrDefault("RETRY_MAX_ATTEMPTS", int64(c.Retry.MaxAttempts))
	errs = append(errs, err)
	c.Retry.MaxAttempts = int(attempts)
	duration("RETRY_BASE_DELAY", &c.Retry.BaseDelay)
	duration("RETRY_MAX_DELAY", &c.Retry.MaxDelay)
	duration("RETRY_JITTER", &c.Retry.Jitter)

	c.RecordStorage = strings.ToLower(getEnvOrDefault("RECORD_STORAGE", c.RecordStorage))
	c.Azure.Account = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", c.Azure.Account)
	c.Azure.Key = getEnvOrDefault("AZURE_STORAGE_KEY", c.Azure.Key)
	c.Azure.Container = getEnvOrDefault("AZURE_STORAGE_CONTAINER", c.Azure.Container)

	return errors.Join(errs...)
}

// Validate rejects configurations the process cannot start with
func (c *Config) Validate() error {
	var errs []error

	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT: %q", c.Port))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize))
	}
	if c.RequestTimeout <= 0 || c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be > 0 (got request=%s, upstream=%s)",
			c.RequestTimeout, c.UpstreamTimeout))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.Jitter < 0 {
		errs = append(errs, fmt.Errorf("retry delays must be >= 0 (got base=%s, jitter=%s)", c.Retry.BaseDelay, c.Retry.Jitter))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("RETRY_MAX_DELAY %s is below RETRY_BASE_DELAY %s", c.Retry.MaxDelay, c.Retry.BaseDelay))
	}

	switch c.Provider {
	case upstream.ProviderGemini, upstream.ProviderOpenAI:
		active := c.ActiveProvider()
		prefix := strings.ToUpper(c.Provider)
		if strings.TrimSpace(active.APIKey) == "" {
			errs = append(errs, fmt.Errorf("%s_API_KEY is required when UPSTREAM_PROVIDER=%s", prefix, c.Provider))
		}
		if strings.TrimSpace(active.Model) == "" {
			errs = append(errs, fmt.Errorf("%s_MODEL must not be empty", prefix))
		}
		if err := validation.NewEndpointValidator().ValidateEndpoint(active.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("%s_BASE_URL: %w", prefix, err))
		}
	default:
		errs = append(errs, fmt.Errorf("UPSTREAM_PROVIDER must be gemini or openai (got %q)", c.Provider))
	}

	switch c.RecordStorage {
	case RecordStorageNone, RecordStorageLog:
	case RecordStorageAzure:
		if c.Azure.Account == "" || c.Azure.Key == "" || c.Azure.Container == "" {
			errs = append(errs, errors.New("RECORD_STORAGE=azure requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_STORAGE_CONTAINER"))
		}
	default:
		errs = append(errs, fmt.Errorf("RECORD_STORAGE must be none, log or azure (got %q)", c.RecordStorage))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error (got %q)", c.LogLevel))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseIntOrDefault(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

// fileConfig mirrors Config in the YAML overlay. Durations are strings
// such as "400ms".
type fileConfig struct {
	Server struct {
		Host               string `yaml:"host"`
		Port               string `yaml:"port"`
		RequestTimeout     string `yaml:"request_timeout"`
		MaxRequestBodySize int64  `yaml:"max_request_body_size"`
		CORSAllowedOrigin  string `yaml:"cors_allowed_origin"`
	} `yaml:"server"`
	LogLevel         string `yaml:"log_level"`
	SystemPromptFile string `yaml:"system_prompt_file"`

	Upstream struct {
		Provider string     `yaml:"provider"`
		Timeout  string     `yaml:"timeout"`
		Gemini   fileRemote `yaml:"gemini"`
		OpenAI   fileRemote `yaml:"openai"`
	} `yaml:"upstream"`

	Retry struct {
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
		MaxDelay    string `yaml:"max_delay"`
		Jitter      string `yaml:"jitter"`
	} `yaml:"retry"`

	Records struct {
		Storage string `yaml:"storage"`
		Azure   struct {
			Account   string `yaml:"account"`
			Key       string `yaml:"key"`
			Container string `yaml:"container"`
		} `yaml:"azure"`
	} `yaml:"records"`
}

type fileRemote struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var errs []error
	str := func(value string, target *string) {
		if value = strings.TrimSpace(value); value != "" {
			*target = value
		}
	}
	duration := func(name, value string, target *time.Duration) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("config file %s: %w", name, err))
			return
		}
		*target = d
	}
	remote := func(value fileRemote, target *ProviderConfig) {
		str(value.APIKey, &target.APIKey)
		str(value.Model, &target.Model)
		str(value.BaseURL, &target.BaseURL)
	}

	str(fc.Server.Host, &c.Host)
	str(fc.Server.Port, &c.Port)
	duration("server.request_timeout", fc.Server.RequestTimeout, &c.RequestTimeout)
	if fc.Server.MaxRequestBodySize != 0 {
		c.MaxRequestBodySize = fc.Server.MaxRequestBodySize
	}
	str(fc.Server.CORSAllowedOrigin, &c.CORSAllowedOrigin)
	str(fc.LogLevel, &c.LogLevel)
	str(fc.SystemPromptFile, &c.SystemPromptFile)

	str(strings.ToLower(fc.Upstream.Provider), &c.Provider)
	duration("upstream.timeout", fc.Upstream.Timeout, &c.UpstreamTimeout)
	remote(fc.Upstream.Gemini, &c.Gemini)
	remote(fc.Upstream.OpenAI, &c.OpenAI)

	if fc.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = fc.Retry.MaxAttempts
	}
	duration("retry.base_delay", fc.Retry.BaseDelay, &c.Retry.BaseDelay)
	duration("retry.max_delay", fc.Retry.MaxDelay, &c.Retry.MaxDelay)
	duration("retry.jitter", fc.Retry.Jitter, &c.Retry.Jitter)

	str(strings.ToLower(fc.Records.Storage), &c.RecordStorage)
	str(fc.Records.Azure.Account, &c.Azure.Account)
	str(fc.Records.Azure.Key, &c.Azure.Key)
	str(fc.Records.Azure.Container, &c.Azure.Container)

	return errors.Join(errs...)
}
