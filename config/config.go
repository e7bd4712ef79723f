package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string
	Env           string
	LogLevel      string
	Locale        string
	DBUrl         string
	JWTSecret     string
	AllowedOrigin string
	FrontendURL   string // Where payment callbacks redirect the browser
	PublicAPIURL  string // Base URL LINE Pay calls back into
	RedisURL      string
	// DB Config
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration
	// Cache
	CacheSettingsTTL time.Duration
	IdempotencyTTL   time.Duration
	// Business Rules
	MaxCartQuantity       int
	ShippingFlatFee       float64
	ShippingFreeThreshold float64
	// Follow-up worker
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerMaxAttempts  int

	LinePay LinePayConfig
	Mail    MailConfig
}

type LinePayConfig struct {
	ChannelID     string        `envconfig:"LINEPAY_CHANNEL_ID"`
	ChannelSecret string        `envconfig:"LINEPAY_CHANNEL_SECRET"`
	BaseURL       string        `envconfig:"LINEPAY_BASE_URL" default:"https://sandbox-api-pay.line.me"`
	Currency      string        `envconfig:"LINEPAY_CURRENCY" default:"TWD"`
	Timeout       time.Duration `envconfig:"LINEPAY_TIMEOUT" default:"15s"`
}

func (c LinePayConfig) Enabled() bool {
	return c.ChannelID != "" && c.ChannelSecret != ""
}

type MailConfig struct {
	APIURL  string        `envconfig:"MAIL_API_URL"`
	APIKey  string        `envconfig:"MAIL_API_KEY"`
	From    string        `envconfig:"MAIL_FROM" default:"orders@teahouse.local"`
	Timeout time.Duration `envconfig:"MAIL_TIMEOUT" default:"10s"`
}

func (c MailConfig) Enabled() bool {
	return c.APIURL != ""
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: .env is optional outside local dev
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Locale:        getEnv("LOCALE", "zh-TW"),
		DBUrl:         getEnv("DB_DSN", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
		PublicAPIURL:  getEnv("PUBLIC_API_URL", "http://localhost:8080"),
		RedisURL:      getEnv("REDIS_URL", ""),

		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 20),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 2),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),

		// Settings are read on every checkout; 5m keeps admin edits visible quickly
		CacheSettingsTTL: getDurationEnv("CACHE_SETTINGS_TTL", 5*time.Minute),
		IdempotencyTTL:   getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),

		MaxCartQuantity:       getIntEnv("MAX_CART_QUANTITY", 99),
		ShippingFlatFee:       getFloatEnv("SHIPPING_FLAT_FEE", 100),
		ShippingFreeThreshold: getFloatEnv("SHIPPING_FREE_THRESHOLD", 1500),

		WorkerPollInterval: getDurationEnv("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerBatchSize:    getIntEnv("WORKER_BATCH_SIZE", 20),
		WorkerMaxAttempts:  getIntEnv("WORKER_MAX_ATTEMPTS", 8),
	}

	if err := envconfig.Process("", &cfg.LinePay); err != nil {
		log.Fatalf("CRITICAL: invalid LINEPAY_* configuration: %v", err)
	}
	if err := envconfig.Process("", &cfg.Mail); err != nil {
		log.Fatalf("CRITICAL: invalid MAIL_* configuration: %v", err)
	}

	cfg.Validate()
	return cfg
}

func (c *Config) Validate() {
	if c.DBUrl == "" {
		log.Fatal("CRITICAL: DB_DSN environment variable is required")
	}
	if c.JWTSecret == "" {
		log.Fatal("CRITICAL: JWT_SECRET is required to verify access tokens")
	}
	if c.ShippingFlatFee < 0 || c.ShippingFreeThreshold < 0 {
		log.Fatal("CRITICAL: shipping fee and free threshold must not be negative")
	}
	if !c.LinePay.Enabled() {
		log.Println("WARNING: LINEPAY_CHANNEL_ID/SECRET not set, line_pay checkout will fail at the gateway")
	}
	if c.RedisURL == "" {
		log.Println("WARNING: REDIS_URL not set, sync locks and idempotency keys are per-process")
	}
	if c.IsProduction() && strings.Contains(c.LinePay.BaseURL, "sandbox") {
		log.Println("WARNING: production is pointed at the LINE Pay sandbox")
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}
