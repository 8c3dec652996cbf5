package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Realtime drivers supported by the chat push channel.
const (
	RealtimeDriverMemory = "memory"
	RealtimeDriverRedis  = "redis"
	RealtimeDriverNATS   = "nats"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	RealtimeDriver         string
	RealtimeChannelBase    string
	JWTSecret              string
	PaystackSecretKey      string
	PaystackBaseURL        string
	PaystackCallbackURL    string
	CashbackRate           float64
	ChatRequestTimeout     time.Duration
	TypingTTL              time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	AttachmentMaxSizeMB    int
	OpenAIAPIKey           string
	OpenAIModel            string
	WalletOpeningBalance   float64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STUDYQUEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "StudyQuest API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.driver", RealtimeDriverMemory)
	v.SetDefault("realtime.channel", "studyquest")
	v.SetDefault("paystack.base_url", "https://api.paystack.co")
	v.SetDefault("cashback.rate", 0.1)
	v.SetDefault("chat.request_timeout", "15s")
	v.SetDefault("chat.typing_ttl", "3s")
	v.SetDefault("cloudinary.folder", "studyquest/chat")
	v.SetDefault("attachment.max_size_mb", 10)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("wallet.opening_balance", 0)

	timeout, err := parseDuration(v.GetString("chat.request_timeout"), 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid chat request timeout: %w", err)
	}

	typingTTL, err := parseDuration(v.GetString("chat.typing_ttl"), 3*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid typing ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeDriver:         strings.ToLower(strings.TrimSpace(v.GetString("realtime.driver"))),
		RealtimeChannelBase:    v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		PaystackSecretKey:      v.GetString("paystack.secret_key"),
		PaystackBaseURL:        v.GetString("paystack.base_url"),
		PaystackCallbackURL:    v.GetString("paystack.callback_url"),
		CashbackRate:           v.GetFloat64("cashback.rate"),
		ChatRequestTimeout:     timeout,
		TypingTTL:              typingTTL,
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		AttachmentMaxSizeMB:    v.GetInt("attachment.max_size_mb"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		WalletOpeningBalance:   v.GetFloat64("wallet.opening_balance"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.RealtimeDriver {
	case RealtimeDriverMemory:
	case RealtimeDriverRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis realtime driver requires redis url")
		}
	case RealtimeDriverNATS:
		if cfg.NATSURL == "" {
			return Config{}, fmt.Errorf("nats realtime driver requires nats url")
		}
	default:
		return Config{}, fmt.Errorf("unsupported realtime driver %q", cfg.RealtimeDriver)
	}

	if cfg.CashbackRate < 0 || cfg.CashbackRate > 1 {
		return Config{}, fmt.Errorf("cashback rate must be between 0 and 1")
	}

	if cfg.AttachmentMaxSizeMB <= 0 {
		cfg.AttachmentMaxSizeMB = 10
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
