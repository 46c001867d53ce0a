// Package config loads the server configuration from the environment, an
// optional .env file and an optional YAML or TOML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Database types derived from DATABASE_URL.
const (
	DatabaseMemory   = "memory"
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// the defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		Port:               "8080",
		Environment:        EnvDevelopment,
		CORSAllowedOrigins: []string{"*"},
		DatabaseURL:        DatabaseMemory,
		DBSchema:           "public",
		JWT: JWTConfig{
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		Media: MediaConfig{
			Root:          "./media",
			URL:           "/media/",
			URLStrategy:   "local",
			KeyLayout:     "unique",
			UploadBackend: "fs",
		},
		S3: S3Config{
			Region:          "us-east-1",
			PresignTTL:   time.Hour,
			CacheControl: "public, max-age=31536000",
		},
		Content: ContentConfig{
			MaxUploadBytes: 10 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ServerConfig is the configuration of the zrcp server and its commands.
type ServerConfig struct {
	Host               string   `yaml:"host" toml:"host" env:"HOST" env-description:"bind address"`
	Port               string   `yaml:"port" toml:"port" env:"PORT" env-description:"listen port"`
	Environment        string   `yaml:"environment" toml:"environment" env:"ENVIRONMENT" env-description:"development, production or testing"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-description:"comma separated CORS origins"`

	// DatabaseURL selects the repository: "memory", a sqlite:// URL or file
	// path, or a postgres:// URL.
	DatabaseURL string `yaml:"database_url" toml:"database_url" env:"DATABASE_URL" env-description:"memory, sqlite:///path.db or postgres://..."`
	DBSchema    string `yaml:"db_schema" toml:"db_schema" env:"DB_SCHEMA" env-description:"postgres schema"`

	JWT     JWTConfig     `yaml:"jwt" toml:"jwt"`
	Media   MediaConfig   `yaml:"media" toml:"media"`
	S3      S3Config      `yaml:"s3" toml:"s3"`
	Content ContentConfig `yaml:"content" toml:"content"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret     string        `yaml:"secret" toml:"secret" env:"JWT_SECRET" env-description:"token signing secret"`
	AccessTTL  time.Duration `yaml:"access_ttl" toml:"access_ttl" env:"JWT_ACCESS_TTL" env-description:"access token lifetime"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" toml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-description:"refresh token lifetime"`
}

// MediaConfig configures where uploads go and how their URLs are rendered.
type MediaConfig struct {
	Root          string `yaml:"root" toml:"root" env:"MEDIA_ROOT" env-description:"local media directory"`
	URL           string `yaml:"url" toml:"url" env:"MEDIA_URL" env-description:"local media URL prefix"`
	URLStrategy   string `yaml:"url_strategy" toml:"url_strategy" env:"MEDIA_URL_STRATEGY" env-description:"local, cdn, storage or presigned"`
	CDNBaseURL    string `yaml:"cdn_base_url" toml:"cdn_base_url" env:"MEDIA_CDN_BASE_URL" env-description:"CDN base URL"`
	KeyLayout     string `yaml:"key_layout" toml:"key_layout" env:"MEDIA_KEY_LAYOUT" env-description:"unique or flat"`
	UploadBackend string `yaml:"upload_backend" toml:"upload_backend" env:"UPLOAD_BACKEND" env-description:"fs, s3 or memory"`
}

// S3Config configures the S3-compatible blob store.
type S3Config struct {
	Bucket          string        `yaml:"bucket" toml:"bucket" env:"S3_BUCKET"`
	Region          string        `yaml:"region" toml:"region" env:"S3_REGION"`
	Endpoint        string        `yaml:"endpoint" toml:"endpoint" env:"S3_ENDPOINT"`
	AccessKeyID     string        `yaml:"access_key_id" toml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" toml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool          `yaml:"use_path_style" toml:"use_path_style" env:"S3_USE_PATH_STYLE"`
	PublicBaseURL   string        `yaml:"public_base_url" toml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
	PresignTTL      time.Duration `yaml:"presign_ttl" toml:"presign_ttl" env:"S3_PRESIGN_TTL" env-description:"presigned URL lifetime"`
	CreateBucket    bool          `yaml:"create_bucket" toml:"create_bucket" env:"S3_CREATE_BUCKET"`
	SSE             string        `yaml:"sse" toml:"sse" env:"S3_SSE" env-description:"server-side encryption: AES256 or aws:kms"`
	SSEKMSKeyID     string        `yaml:"sse_kms_key_id" toml:"sse_kms_key_id" env:"S3_SSE_KMS_KEY_ID"`
	CacheControl    string        `yaml:"cache_control" toml:"cache_control" env:"S3_CACHE_CONTROL"`
}

// ContentConfig holds content service switches.
type ContentConfig struct {
	MaxUploadBytes     int64 `yaml:"max_upload_bytes" toml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-description:"upload size limit in bytes"`
	ImageMaxWidth      int   `yaml:"image_max_width" toml:"image_max_width" env:"IMAGE_MAX_WIDTH" env-description:"downscale wider images, 0 disables"`
	StrictBlocks       bool  `yaml:"strict_blocks" toml:"strict_blocks" env:"CONTENT_STRICT_BLOCKS" env-description:"reject unknown body block types"`
	EnableEventLogging bool  `yaml:"enable_event_logging" toml:"enable_event_logging" env:"ENABLE_EVENT_LOGGING"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LOG_LEVEL" env-description:"debug, info, warn or error"`
	Format string `yaml:"format" toml:"format" env:"LOG_FORMAT" env-description:"text or json"`
}

// WithEnv applies environment variable overrides.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML or TOML file, chosen by extension. Environment
// variables still take precedence over the file.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDotEnv loads a .env file into the process environment. Variables that
// are already set are not overridden. Combine with WithEnv.
func WithDotEnv(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
}

// WithDatabaseURL overrides DATABASE_URL.
func WithDatabaseURL(databaseURL string) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" {
			return errors.New("database url cannot be empty")
		}
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// DatabaseType reports which repository DatabaseURL selects.
func (c *ServerConfig) DatabaseType() (string, error) {
	u := c.DatabaseURL
	switch {
	case u == "" || u == DatabaseMemory:
		return DatabaseMemory, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return DatabasePostgres, nil
	case strings.HasPrefix(u, "sqlite://"), strings.HasPrefix(u, "file:"):
		return DatabaseSQLite, nil
	}
	return "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'sqlite:///path.db' or 'postgres://...')", u)
}

// sqlitePath strips the scheme from a sqlite DATABASE_URL.
func (c *ServerConfig) sqlitePath() string {
	path := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	return strings.TrimPrefix(path, "file:")
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// IsDevelopment reports whether the server runs in development mode.
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("environment must be one of development, production, testing, got %q", c.Environment)
	}

	if _, err := c.DatabaseType(); err != nil {
		return err
	}

	if !c.IsDevelopment() && c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}

	switch c.Media.UploadBackend {
	case "fs", "memory":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when UPLOAD_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unsupported upload backend: %s", c.Media.UploadBackend)
	}

	switch c.Media.URLStrategy {
	case "local", "storage", "presigned":
	case "cdn":
		if c.Media.CDNBaseURL == "" {
			return errors.New("MEDIA_CDN_BASE_URL is required for the cdn URL strategy")
		}
	default:
		return fmt.Errorf("unsupported media URL strategy: %s", c.Media.URLStrategy)
	}

	switch c.Media.KeyLayout {
	case "unique", "flat":
	default:
		return fmt.Errorf("unsupported media key layout: %s", c.Media.KeyLayout)
	}

	if c.Content.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Content.ImageMaxWidth < 0 {
		return errors.New("IMAGE_MAX_WIDTH cannot be negative")
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c ServerConfig) Redacted() ServerConfig {
	const mask = "********"
	if c.JWT.Secret != "" {
		c.JWT.Secret = mask
	}
	if c.S3.SecretAccessKey != "" {
		c.S3.SecretAccessKey = mask
	}
	c.DatabaseURL = redactURL(c.DatabaseURL)
	c.CORSAllowedOrigins = append([]string(nil), c.CORSAllowedOrigins...)
	return c
}

// redactURL masks the password of a URL with user info.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
