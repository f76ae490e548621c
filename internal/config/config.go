package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string `env:"AUTH_JWT_SECRET" validate:"required"`

	Telemetry TelemetryConfig

	DBType            string `env:"DATABASE_TYPE" validate:"oneof=postgres mysql sqlite"`
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Provider     ProviderConfig
	Webhook      WebhookConfig
	Subscription SubscriptionConfig
	RateLimit    RateLimitConfig

	AccessPolicyFile string
}

// ProviderConfig points at the external billing provider API.
type ProviderConfig struct {
	BaseURL string        `env:"PROVIDER_API_BASE_URL" validate:"required,url"`
	APIKey  string        `env:"PROVIDER_API_KEY" validate:"required"`
	Timeout time.Duration `env:"PROVIDER_TIMEOUT_SECONDS" validate:"gt=0"`
}

type WebhookConfig struct {
	Secret      string        `env:"WEBHOOK_SECRET" validate:"required"`
	HookURL     string        `env:"AUTOMATION_HOOK_URL" validate:"omitempty,url"`
	HookTimeout time.Duration `env:"AUTOMATION_HOOK_TIMEOUT_SECONDS" validate:"gt=0"`
}

// TelemetryConfig covers logs, traces and OTLP metrics export.
type TelemetryConfig struct {
	LogLevel      string  `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat     string  `env:"LOG_FORMAT" validate:"oneof=json console"`
	OTLPEnabled   bool    `env:"OTEL_ENABLED"`
	OTLPEndpoint  string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPProtocol  string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" validate:"oneof=grpc http http/protobuf"`
	SamplingRatio float64 `env:"OTEL_SAMPLING_RATIO" validate:"gt=0,lte=1"`
}

type SubscriptionConfig struct {
	GraceDays int `env:"SUBSCRIPTION_GRACE_DAYS" validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string `env:"RATE_LIMIT_REDIS_ADDR" validate:"required_if=Enabled true"`
	RedisPassword string
	RedisDB       int
	TenantRate    float64       `env:"RATE_LIMIT_TENANT_RATE" validate:"required_if=Enabled true"`
	TenantBurst   int           `env:"RATE_LIMIT_TENANT_BURST" validate:"required_if=Enabled true"`
	CreateLockTTL time.Duration `env:"RATE_LIMIT_CREATE_LOCK_TTL_SECONDS"`
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "clinicsub"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTLPEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "postgres"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		// seconds
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Provider: ProviderConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(getenv("PROVIDER_API_BASE_URL", "")), "/"),
			APIKey:  strings.TrimSpace(getenv("PROVIDER_API_KEY", "")),
			Timeout: time.Duration(getenvInt("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Webhook: WebhookConfig{
			Secret:      strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
			HookURL:     strings.TrimSpace(getenv("AUTOMATION_HOOK_URL", "")),
			HookTimeout: time.Duration(getenvInt("AUTOMATION_HOOK_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Subscription: SubscriptionConfig{
			GraceDays: getenvInt("SUBSCRIPTION_GRACE_DAYS", 3),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			TenantRate:    getenvFloat("RATE_LIMIT_TENANT_RATE", 1),
			TenantBurst:   getenvInt("RATE_LIMIT_TENANT_BURST", 5),
			CreateLockTTL: time.Duration(getenvInt("RATE_LIMIT_CREATE_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		AccessPolicyFile: strings.TrimSpace(getenv("ACCESS_POLICY_FILE", "")),
	}

	return cfg
}

// Validate reports every missing or malformed required setting by its env key.
func (c Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("env"); name != "" {
			return name
		}
		return field.Name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	keys := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		keys = append(keys, fe.Field())
	}
	return fmt.Errorf("invalid configuration: missing or invalid %s", strings.Join(keys, ", "))
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
