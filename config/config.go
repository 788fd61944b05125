package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Stripe    StripeConfig
	Supabase  SupabaseConfig
	Messaging MessagingConfig
	Media     MediaConfig
	Telemetry TelemetryConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"3001"`
	GinMode     string `envconfig:"GIN_MODE" default:"debug"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
}

type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL" required:"true"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"50"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

type SupabaseConfig struct {
	URL            string `envconfig:"SUPABASE_URL" required:"true"`
	ServiceRoleKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `envconfig:"SUPABASE_JWT_SECRET"`
}

type MessagingConfig struct {
	AMQPURL  string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"marketplace.events"`
}

type MediaConfig struct {
	CloudinaryURL string `envconfig:"CLOUDINARY_URL"`
	Folder        string `envconfig:"CLOUDINARY_FOLDER" default:"partner_documents"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"luxe-escrow-server"`
	Environment  string `envconfig:"ENV" default:"dev"`
}

type ReconcileConfig struct {
	Interval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	StaleAfter  time.Duration `envconfig:"RECONCILE_STALE_AFTER" default:"2m"`
	MaxAttempts int           `envconfig:"RECONCILE_MAX_ATTEMPTS" default:"5"`
	BatchSize   int           `envconfig:"RECONCILE_BATCH_SIZE" default:"25"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var cfg Config
	sections := []interface{}{
		&cfg.Server,
		&cfg.Database,
		&cfg.Stripe,
		&cfg.Supabase,
		&cfg.Messaging,
		&cfg.Media,
		&cfg.Telemetry,
		&cfg.Reconcile,
	}
	// Sections are processed one by one so keys stay unprefixed (PORT, not SERVER_PORT).
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.Server.FrontendURL = strings.TrimRight(cfg.Server.FrontendURL, "/")
	cfg.Supabase.URL = strings.TrimRight(cfg.Supabase.URL, "/")
	return &cfg, nil
}

// JWTIssuer is the issuer Supabase Auth writes into access tokens.
func (c SupabaseConfig) JWTIssuer() string {
	return c.URL + "/auth/v1"
}

// AuthEnabled reports whether bearer tokens are verified.
func (c SupabaseConfig) AuthEnabled() bool {
	return c.JWTSecret != ""
}
