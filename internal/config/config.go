// Package config reads the service configuration from the environment, an
// optional .env file and viper defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server needs.
type Config struct {
	AppPort         string
	ServiceName     string
	DatabaseDriver  string
	DatabaseDSN     string
	JWTSecret       string
	JWTTTL          time.Duration
	RazorpayKeyID   string
	RazorpaySecret  string
	RazorpayBaseURL string
	Currency        string
	CatalogFile     string
	RabbitMQURL     string
	TracingExporter string
	OTLPEndpoint    string
	CORSOrigins     string
	RecordCreated   bool
	RequestLog      bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("SERVICE_NAME", "arokya")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "arokya.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RAZORPAY_KEY_ID", "")
	v.SetDefault("RAZORPAY_KEY_SECRET", "")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("CATALOG_FILE", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("TRACING_EXPORTER", "none")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LEDGER_RECORD_CREATED", false)
	v.SetDefault("REQUEST_LOG", true)
}

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("Loaded environment from %s", path)
	return nil
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:         v.GetString("APP_PORT"),
		ServiceName:     v.GetString("SERVICE_NAME"),
		DatabaseDriver:  strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:     v.GetString("DATABASE_DSN"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTTTL:          v.GetDuration("JWT_TTL"),
		RazorpayKeyID:   v.GetString("RAZORPAY_KEY_ID"),
		RazorpaySecret:  v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL: v.GetString("RAZORPAY_BASE_URL"),
		Currency:        strings.ToUpper(v.GetString("CURRENCY")),
		CatalogFile:     v.GetString("CATALOG_FILE"),
		RabbitMQURL:     v.GetString("RABBITMQ_URL"),
		TracingExporter: strings.ToLower(v.GetString("TRACING_EXPORTER")),
		OTLPEndpoint:    v.GetString("OTLP_ENDPOINT"),
		CORSOrigins:     v.GetString("CORS_ORIGINS"),
		RecordCreated:   v.GetBool("LEDGER_RECORD_CREATED"),
		RequestLog:      v.GetBool("REQUEST_LOG"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.JWTTTL < 24*time.Hour || c.JWTTTL > 7*24*time.Hour {
		problems = append(problems, fmt.Sprintf("JWT_TTL must be between 24h and 168h, got %s", c.JWTTTL))
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if len(c.Currency) != 3 {
		problems = append(problems, fmt.Sprintf("CURRENCY must be a 3-letter code, got %q", c.Currency))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
