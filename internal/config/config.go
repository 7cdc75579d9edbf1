// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "MENUFLOW_"

type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// AutomationsPath is a YAML file or directory, hot reloaded.
	AutomationsPath string `env:"AUTOMATIONS"`
	// BoltPath enables the durable config store, contact registry and turn log.
	BoltPath string `env:"BOLT_PATH"`

	Sessions SessionConfig
	WhatsApp WhatsAppConfig
	Notify   NotifyConfig

	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	ConfigRefresh  time.Duration `env:"CONFIG_REFRESH" envDefault:"30s"`
	SweepSchedule  string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	MaxInFlight    int64         `env:"MAX_IN_FLIGHT" envDefault:"64"`
	RecentTurns    int           `env:"RECENT_TURNS" envDefault:"10"`
	MaxInputSize   int           `env:"MAX_INPUT_SIZE" envDefault:"4096"`
	FirstContactDB bool          `env:"FIRST_CONTACT_REGISTRY" envDefault:"true"`

	// PIIPatterns are regular expressions masked out of the turn log.
	// Separated by ";" since patterns may contain commas.
	PIIPatterns []string `env:"PII_PATTERNS" envSeparator:";"`
}

type SessionConfig struct {
	Backend       string `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"menuflow:session:"`

	// EncryptionKey is a base64 AES-256 key. When set, captured variables
	// are encrypted at rest. FallbackKeys still decrypt during rotation.
	EncryptionKey string   `env:"SESSION_KEY"`
	FallbackKeys  []string `env:"SESSION_KEY_FALLBACKS" envSeparator:","`
}

type WhatsAppConfig struct {
	PhoneNumberID string `env:"WA_PHONE_NUMBER_ID"`
	AccessToken   string `env:"WA_ACCESS_TOKEN"`
	VerifyToken   string `env:"WA_VERIFY_TOKEN"`
	// AppSecret enables X-Hub-Signature-256 checks on webhook posts.
	AppSecret string `env:"WA_APP_SECRET"`
	APIBase       string `env:"WA_API_BASE" envDefault:"https://graph.facebook.com/v21.0"`
	// OrganizationID owns events arriving on the WhatsApp webhook.
	OrganizationID string `env:"WA_ORGANIZATION_ID"`
}

type NotifyConfig struct {
	AssistantURL  string        `env:"ASSISTANT_URL"`
	EscalationURL string        `env:"ESCALATION_URL"`
	IssuesURL     string        `env:"ISSUES_URL"`
	Timeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	RatePerSecond float64       `env:"NOTIFY_RATE" envDefault:"20"`
	Burst         int           `env:"NOTIFY_BURST" envDefault:"40"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("%sREDIS_ADDR is required for the redis session backend", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%sSESSION_BACKEND: unknown backend %q", Prefix, c.Sessions.Backend))
	}
	if c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID == "" {
		errs = append(errs, fmt.Errorf("%sWA_PHONE_NUMBER_ID is required with an access token", Prefix))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sSTORE_TIMEOUT must be positive", Prefix))
	}
	if c.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_IN_FLIGHT must be positive", Prefix))
	}
	return errors.Join(errs...)
}
