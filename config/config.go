// Package config loads service configuration with viper.
//
// Values come from defaults, then an optional config file, then the
// environment. Environment names match the keys below, e.g. JWT_SECRET,
// DB_DRIVER, ALLOWED_FILE_TYPES. NODE_ENV is honored as a fallback for APP_ENV.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/safebite/safebite-api/auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Port     int    `mapstructure:"PORT"`
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`

	DBDriver string `mapstructure:"DB_DRIVER"` // sqlite, postgres
	DBDSN    string `mapstructure:"DB_DSN"`

	CORSOrigin           string `mapstructure:"CORS_ORIGIN"`
	RateLimitWindowMS    int    `mapstructure:"RATE_LIMIT_WINDOW_MS"`
	RateLimitMaxRequests int    `mapstructure:"RATE_LIMIT_MAX_REQUESTS"`
	RateLimitRedisURL    string `mapstructure:"RATE_LIMIT_REDIS_URL"`

	StorageDriver    string `mapstructure:"STORAGE_DRIVER"` // disk, s3
	UploadPath       string `mapstructure:"UPLOAD_PATH"`
	MaxFileSize      int64  `mapstructure:"MAX_FILE_SIZE"`
	AllowedFileTypes string `mapstructure:"ALLOWED_FILE_TYPES"`
	S3Bucket         string `mapstructure:"S3_BUCKET"`
	S3Region         string `mapstructure:"S3_REGION"`
	S3Endpoint       string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey      string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey      string `mapstructure:"S3_SECRET_KEY"`
	S3PublicURL      string `mapstructure:"S3_PUBLIC_URL"`

	APIBaseURL  string `mapstructure:"API_BASE_URL"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	EmailHost     string `mapstructure:"EMAIL_HOST"`
	EmailPort     int    `mapstructure:"EMAIL_PORT"`
	EmailUser     string `mapstructure:"EMAIL_USER"`
	EmailPassword string `mapstructure:"EMAIL_PASSWORD"`
	EmailFrom     string `mapstructure:"EMAIL_FROM"`

	UseHashid   bool   `mapstructure:"AUTH_USE_HASHID"`
	PhoneRegion string `mapstructure:"PHONE_DEFAULT_REGION"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3001)
	v.SetDefault("APP_ENV", EnvProduction)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("JWT_ISSUER", "safebite-api")

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "file:safebite.db?cache=shared")

	v.SetDefault("CORS_ORIGIN", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_WINDOW_MS", 15*60*1000)
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_REDIS_URL", "")

	v.SetDefault("STORAGE_DRIVER", "disk")
	v.SetDefault("UPLOAD_PATH", "./uploads")
	v.SetDefault("MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("ALLOWED_FILE_TYPES", "image/jpeg,image/png,image/jpg,image/webp")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_PUBLIC_URL", "")

	v.SetDefault("API_BASE_URL", "http://localhost:3001")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("EMAIL_HOST", "")
	v.SetDefault("EMAIL_PORT", 587)
	v.SetDefault("EMAIL_USER", "")
	v.SetDefault("EMAIL_PASSWORD", "")
	v.SetDefault("EMAIL_FROM", "SafeBite <noreply@safebite.app>")

	v.SetDefault("AUTH_USE_HASHID", false)
	v.SetDefault("PHONE_DEFAULT_REGION", auth.DefaultPhoneRegion)
}

// Load reads configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("APP_ENV", "APP_ENV", "NODE_ENV"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if _, err := auth.ParseTTL(c.JWTExpiresIn); err != nil {
		errs = append(errs, fmt.Errorf("JWT_EXPIRES_IN: %w", err))
	}

	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}

	switch c.StorageDriver {
	case "disk":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_DRIVER=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not supported", c.StorageDriver))
	}

	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}

	if c.RateLimitMaxRequests <= 0 || c.RateLimitWindowMS <= 0 {
		errs = append(errs, errors.New("rate limit window and max requests must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// AccessTTL parses JWT_EXPIRES_IN.
func (c *Config) AccessTTL() time.Duration {
	ttl, err := auth.ParseTTL(c.JWTExpiresIn)
	if err != nil {
		return auth.DefaultAccessTokenTTL
	}
	return ttl
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// AllowedTypes splits ALLOWED_FILE_TYPES.
func (c *Config) AllowedTypes() []string {
	var out []string
	for _, t := range strings.Split(c.AllowedFileTypes, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// UseSMTP reports whether emails are delivered instead of logged.
func (c *Config) UseSMTP() bool {
	return c.EmailHost != "" && !c.IsDevelopment()
}

// Redacted is safe to print.
func (c *Config) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	return map[string]any{
		"port":            c.Port,
		"env":             c.Env,
		"jwt_secret":      mask(c.JWTSecret),
		"jwt_expires_in":  c.JWTExpiresIn,
		"db_driver":       c.DBDriver,
		"db_dsn":          mask(c.DBDSN),
		"cors_origin":     c.CORSOrigin,
		"rate_limit":      fmt.Sprintf("%d/%s", c.RateLimitMaxRequests, c.RateLimitWindow()),
		"rate_limit_kind": map[bool]string{true: "redis", false: "memory"}[c.RateLimitRedisURL != ""],
		"storage":         c.StorageDriver,
		"upload_path":     c.UploadPath,
		"max_file_size":   c.MaxFileSize,
		"allowed_types":   c.AllowedTypes(),
		"api_base_url":    c.APIBaseURL,
		"frontend_url":    c.FrontendURL,
		"email_host":      c.EmailHost,
		"email_password":  mask(c.EmailPassword),
		"s3_secret_key":   mask(c.S3SecretKey),
	}
}
