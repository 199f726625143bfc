package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	OAuth       OAuthConfig     `yaml:"oauth"`
	Email       EmailConfig     `yaml:"email"`
	Uploads     UploadsConfig   `yaml:"uploads"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Logging     LoggingConfig   `yaml:"logging"`
	Bootstrap   BootstrapConfig `yaml:"bootstrap"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenLifetime time.Duration `yaml:"token_lifetime"`
	Issuer        string        `yaml:"issuer"`
	CookieName    string        `yaml:"cookie_name"`
}

// OAuthConfig configures the external identity provider used by moderators.
type OAuthConfig struct {
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	CallbackURL    string   `yaml:"callback_url"`
	AuthURL        string   `yaml:"auth_url"`
	TokenURL       string   `yaml:"token_url"`
	UserInfoURL    string   `yaml:"userinfo_url"`
	AllowedDomains []string `yaml:"allowed_domains"`
	SuccessURL     string   `yaml:"success_url"`
}

func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.CallbackURL != ""
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"` // "smtp" or "resend"
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

type UploadsConfig struct {
	Dir          string `yaml:"dir"`
	PublicPrefix string `yaml:"public_prefix"`
	MaxBytes     int64  `yaml:"max_bytes"`
}

type RateLimitConfig struct {
	PublicPerMinute  int `yaml:"public_per_minute"`
	LoginPerMinute   int `yaml:"login_per_minute"`
	CheckInPerMinute int `yaml:"checkin_per_minute"`

	// TrustedProxyCIDRs lists proxies whose X-Forwarded-For is believed.
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
			MinConnections: getEnvInt("DATABASE_MIN_CONNECTIONS", 0),
			AcquireTimeout: getEnvDuration("DATABASE_ACQUIRE_TIMEOUT", 10*time.Second),
			IdleTimeout:    getEnvDuration("DATABASE_IDLE_TIMEOUT", 30*time.Second),
			MigrateOnStart: getEnvBool("DATABASE_MIGRATE_ON_START", false),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenLifetime: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24*30)) * time.Hour,
			Issuer:        getEnv("JWT_ISSUER", "eventdesk"),
			CookieName:    getEnv("AUTH_COOKIE_NAME", "eventdesk_session"),
		},
		OAuth: OAuthConfig{
			ClientID:       getEnv("OAUTH_CLIENT_ID", ""),
			ClientSecret:   getEnv("OAUTH_CLIENT_SECRET", ""),
			CallbackURL:    getEnv("OAUTH_CALLBACK_URL", ""),
			AuthURL:        getEnv("OAUTH_AUTH_URL", ""),
			TokenURL:       getEnv("OAUTH_TOKEN_URL", ""),
			UserInfoURL:    getEnv("OAUTH_USERINFO_URL", ""),
			AllowedDomains: getEnvList("OAUTH_ALLOWED_DOMAINS"),
			SuccessURL:     getEnv("OAUTH_SUCCESS_URL", "/"),
		},
		Email: EmailConfig{
			Enabled:      getEnvBool("EMAIL_ENABLED", false),
			Provider:     getEnv("EMAIL_PROVIDER", "smtp"),
			From:         getEnv("EMAIL_FROM", ""),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		},
		Uploads: UploadsConfig{
			Dir:          getEnv("UPLOADS_DIR", "uploads"),
			PublicPrefix: getEnv("UPLOADS_PUBLIC_PREFIX", "/uploads/"),
			MaxBytes:     int64(getEnvInt("UPLOADS_MAX_BYTES", 5<<20)),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 120),
			LoginPerMinute:    getEnvInt("RATE_LIMIT_LOGIN", 10),
			CheckInPerMinute:  getEnvInt("RATE_LIMIT_CHECKIN", 240),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "eventdesk-server"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	// Any localhost frontend may call the API during development.
	cfg.CORS.AllowAllOrigins = cfg.Environment == "development" && len(cfg.CORS.AllowedOrigins) == 0

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that would make the server unusable.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.TokenLifetime <= 0 {
		return fmt.Errorf("JWT_EXPIRY_HOURS must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNECTIONS must be positive")
	}
	if c.Database.MinConnections < 0 || c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("DATABASE_MIN_CONNECTIONS must be between 0 and DATABASE_MAX_CONNECTIONS")
	}
	if c.Email.Enabled {
		switch c.Email.Provider {
		case "smtp":
			if c.Email.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
			}
		case "resend":
			if c.Email.ResendAPIKey == "" {
				return fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
			}
		default:
			return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.Email.Provider)
		}
		if c.Email.From == "" {
			return fmt.Errorf("EMAIL_FROM is required when email is enabled")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
