package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server, worker and CLI read at startup.
type Config struct {
	Port      string
	AppURL    string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	ProviderTimeout      time.Duration
	GatewayTimeout       time.Duration
	ReconcileLockTTL     time.Duration
	SearchCacheTTL       time.Duration
	WorkerInterval       time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	PhonePe    PhonePeConfig
	Razorpay   RazorpayConfig
	Midtrans   MidtransConfig
	Makruzz    OperatorConfig
	GreenOcean OperatorConfig
	Sealink    OperatorConfig

	Kafka KafkaConfig
	Waha  WahaConfig
	SMTP  SMTPConfig

	FirebaseCredentialsPath string
	AdminEmails             []string
}

type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	CallbackURL string
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
}

// OperatorConfig is shared by every ferry operator adapter. Not every operator
// uses every field.
type OperatorConfig struct {
	BaseURL    string
	Username   string
	Password   string
	PublicKey  string
	PrivateKey string
	Token      string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type WahaConfig struct {
	BaseURL string
	APIKey  string
	Session string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:      v.GetString("PORT"),
		AppURL:    strings.TrimRight(v.GetString("APP_URL"), "/"),
		Env:       v.GetString("APP_ENV"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),

		SessionTTL:           v.GetDuration("SESSION_TTL"),
		SessionSweepInterval: v.GetDuration("SESSION_SWEEP_INTERVAL"),
		ProviderTimeout:      v.GetDuration("PROVIDER_TIMEOUT"),
		GatewayTimeout:       v.GetDuration("GATEWAY_TIMEOUT"),
		ReconcileLockTTL:     v.GetDuration("RECONCILE_LOCK_TTL"),
		SearchCacheTTL:       v.GetDuration("SEARCH_CACHE_TTL"),
		WorkerInterval:       v.GetDuration("WORKER_INTERVAL"),

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		PhonePe: PhonePeConfig{
			MerchantID:  v.GetString("PHONEPE_MERCHANT_ID"),
			SaltKey:     v.GetString("PHONEPE_SALT_KEY"),
			SaltIndex:   v.GetString("PHONEPE_SALT_INDEX"),
			BaseURL:     v.GetString("PHONEPE_BASE_URL"),
			CallbackURL: v.GetString("PHONEPE_CALLBACK_URL"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         v.GetString("RAZORPAY_KEY_ID"),
			KeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
			WebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       v.GetString("RAZORPAY_BASE_URL"),
		},
		Midtrans: MidtransConfig{
			ServerKey:    v.GetString("MIDTRANS_SERVER_KEY"),
			ClientKey:    v.GetString("MIDTRANS_CLIENT_KEY"),
			IsProduction: v.GetBool("MIDTRANS_IS_PRODUCTION"),
		},
		Makruzz:    operatorConfig(v, "MAKRUZZ"),
		GreenOcean: operatorConfig(v, "GREENOCEAN"),
		Sealink:    operatorConfig(v, "SEALINK"),

		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Waha: WahaConfig{
			BaseURL: v.GetString("WAHA_BASE_URL"),
			APIKey:  v.GetString("WAHA_API_KEY"),
			Session: v.GetString("WAHA_SESSION"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASS"),
			From:     v.GetString("EMAIL_FROM"),
		},

		FirebaseCredentialsPath: v.GetString("FIREBASE_CREDENTIALS_PATH"),
		AdminEmails:             splitList(v.GetString("ADMIN_EMAILS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_URL", "http://localhost:8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "5m")
	v.SetDefault("PROVIDER_TIMEOUT", "25s")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("RECONCILE_LOCK_TTL", "60s")
	v.SetDefault("SEARCH_CACHE_TTL", "60s")
	v.SetDefault("WORKER_INTERVAL", "1m")

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 30)

	v.SetDefault("PHONEPE_SALT_INDEX", "1")
	v.SetDefault("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("KAFKA_TOPIC", "booking-outcomes")
	v.SetDefault("WAHA_BASE_URL", "http://waha:3000")
	v.SetDefault("WAHA_SESSION", "default")
	v.SetDefault("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json")
}

func operatorConfig(v *viper.Viper, prefix string) OperatorConfig {
	return OperatorConfig{
		BaseURL:    v.GetString(prefix + "_BASE_URL"),
		Username:   v.GetString(prefix + "_USERNAME"),
		Password:   v.GetString(prefix + "_PASSWORD"),
		PublicKey:  v.GetString(prefix + "_PUBLIC_KEY"),
		PrivateKey: v.GetString(prefix + "_PRIVATE_KEY"),
		Token:      v.GetString(prefix + "_TOKEN"),
	}
}

func (c *Config) validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", c.GatewayTimeout)
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %s", c.SessionSweepInterval)
	}
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("WORKER_INTERVAL must be positive, got %s", c.WorkerInterval)
	}
	return nil
}

// RequireDatabase returns an error when DATABASE_URL is not configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
