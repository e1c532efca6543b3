package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Config holds all configuration for the redirect service
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
		BodyLimit    int           `env:"BODY_LIMIT" envDefault:"4194304" validate:"min=1"` // 4MB, room for imports
	}

	Storage struct {
		Driver       string        `env:"STORAGE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite mysql"`
		DSN          string        `env:"STORAGE_DSN" envDefault:"./data/redirector.db"`
		MaxOpenConns int           `env:"STORAGE_MAX_OPEN_CONNS" envDefault:"10" validate:"min=1"`
		SlowQuery    time.Duration `env:"STORAGE_SLOW_QUERY" envDefault:"200ms"`
	}

	Cache struct {
		Driver        string        `env:"CACHE_DRIVER" envDefault:"memory" validate:"oneof=memory redis none"`
		MaxSize       int           `env:"CACHE_MAX_SIZE" envDefault:"10000" validate:"min=100"`
		TTL           time.Duration `env:"CACHE_TTL" envDefault:"1h"`
		RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string        `env:"REDIS_PASSWORD"`
		RedisDB       int           `env:"REDIS_DB" envDefault:"0" validate:"min=0"`
		RedisPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"redirector:"`
		RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"500ms"`
	}

	Redirects struct {
		ExcludePatterns     []string `env:"REDIRECT_EXCLUDE_PATTERNS" envSeparator:","`
		ExtraHeaders        []string `env:"REDIRECT_EXTRA_HEADERS" envSeparator:"," validate:"header_pairs"`
		PreserveQueryString bool     `env:"REDIRECT_PRESERVE_QUERY" envDefault:"false"`
		NoCacheHeaders      bool     `env:"REDIRECT_NO_CACHE_HEADERS" envDefault:"false"`
		BaseURL             string   `env:"REDIRECT_BASE_URL"`
		DefaultSiteID       uint64   `env:"REDIRECT_DEFAULT_SITE_ID" envDefault:"0"`
		ImportDir           string   `env:"REDIRECT_IMPORT_DIR"`
	}

	Lifecycle struct {
		Enabled    bool          `env:"LIFECYCLE_ENABLED" envDefault:"true"`
		UndoWindow time.Duration `env:"LIFECYCLE_UNDO_WINDOW" envDefault:"60m"`
	}

	Analytics struct {
		Enabled      bool          `env:"ANALYTICS_ENABLED" envDefault:"true"`
		BufferSize   int           `env:"ANALYTICS_BUFFER_SIZE" envDefault:"1024" validate:"min=1"`
		HashIPs      bool          `env:"ANALYTICS_HASH_IPS" envDefault:"true"`
		IPSalt       string        `env:"ANALYTICS_IP_SALT"`
		StatsLimit   int           `env:"ANALYTICS_STATS_LIMIT" envDefault:"50000" validate:"min=0"`
		TrimInterval time.Duration `env:"ANALYTICS_TRIM_INTERVAL" envDefault:"1h"`
	}

	Security struct {
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," validate:"cors_origins"`
		EnableHTTPS bool     `env:"ENABLE_HTTPS" envDefault:"false"`
		RateLimit   int      `env:"RATE_LIMIT" envDefault:"100" validate:"min=0"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration using struct tags
func Validate(cfg *Config) error {
	validator := validator.New()

	if err := validator.RegisterValidation("cors_origins", validateCORSOrigins); err != nil {
		return fmt.Errorf("failed to register cors_origins validation: %w", err)
	}
	if err := validator.RegisterValidation("header_pairs", validateHeaderPairs); err != nil {
		return fmt.Errorf("failed to register header_pairs validation: %w", err)
	}

	if err := validator.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCORSOrigins validates CORS origins format
func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins := fl.Field().Interface().([]string)
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return false
		}
	}
	return true
}

// validateHeaderPairs checks every entry is "Name: value"
func validateHeaderPairs(fl validator.FieldLevel) bool {
	pairs := fl.Field().Interface().([]string)
	for _, pair := range pairs {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, _, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return false
		}
	}
	return true
}

// validateCustomRules performs additional validation beyond struct tags
func validateCustomRules(cfg *Config) error {
	if cfg.Server.ReadTimeout < time.Millisecond {
		return fmt.Errorf("read timeout must be at least 1ms")
	}
	if cfg.Server.WriteTimeout < time.Millisecond {
		return fmt.Errorf("write timeout must be at least 1ms")
	}
	if cfg.Cache.TTL < time.Second {
		return fmt.Errorf("cache TTL must be at least 1 second")
	}

	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "mysql" {
		return fmt.Errorf("storage DSN is required for the mysql driver")
	}
	if cfg.Cache.Driver == "redis" && cfg.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address is required for the redis cache driver")
	}

	if cfg.Lifecycle.UndoWindow < 0 {
		return fmt.Errorf("lifecycle undo window cannot be negative")
	}

	if cfg.Redirects.BaseURL != "" {
		u, err := url.Parse(cfg.Redirects.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("redirect base URL must be an absolute http(s) URL")
		}
	}

	if cfg.Analytics.StatsLimit > 0 && cfg.Analytics.TrimInterval < time.Second {
		return fmt.Errorf("analytics trim interval must be at least 1 second")
	}

	return nil
}

// EnsureDirectories creates the directory of a file-backed sqlite database
func (cfg *Config) EnsureDirectories() error {
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN == "" || strings.HasPrefix(cfg.Storage.DSN, "file::memory:") {
		return nil
	}

	path, _, _ := strings.Cut(strings.TrimPrefix(cfg.Storage.DSN, "file:"), "?")
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	return nil
}

// RedirectHeaders returns the configured extra redirect headers in order
func (cfg *Config) RedirectHeaders() []domain.Header {
	headers := make([]domain.Header, 0, len(cfg.Redirects.ExtraHeaders))
	for _, pair := range cfg.Redirects.ExtraHeaders {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		headers = append(headers, domain.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return headers
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			case "cors_origins":
				messages = append(messages, fmt.Sprintf("%s contains invalid origin format", e.Field()))
			case "header_pairs":
				messages = append(messages, fmt.Sprintf("%s entries must look like Name: value", e.Field()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			}
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}
