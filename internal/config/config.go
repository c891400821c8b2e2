package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

const envDevelopment = "development"

// Config holds application configuration sourced from environment variables.
// Zero values are filled from the default tags.
type Config struct {
	Env           string        `default:"development"`
	Port          string        `default:"8080"`
	DBPath        string        `default:"./dev.db"`
	MigrationsDir string        `default:"migrations"`
	SessionSecret string
	SessionTTL    time.Duration `default:"168h"`
	OTPTTL        time.Duration `default:"5m"`
	LogLevel      string        `default:"info"`

	// RatesPath is an optional YAML rate book overriding the built-in rates.
	RatesPath          string
	CalculatorStrategy string `default:"category"`

	// ProductionStatusURL enables the remote production-status service.
	// Without it production rows are read from the local database.
	ProductionStatusURL string
	ProductionStatusKey string

	WhatsAppNumber string `default:"6282234707911"`
	SeedDemo       bool

	warnings []string
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// A local .env only fills variables the environment leaves empty.
	_, dotEnvErr := loadDotEnv(".env")

	cfg := Config{
		Env:                 os.Getenv("APP_ENV"),
		Port:                os.Getenv("PORT"),
		DBPath:              os.Getenv("DB_PATH"),
		MigrationsDir:       os.Getenv("MIGRATIONS_DIR"),
		SessionSecret:       os.Getenv("SESSION_SECRET"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		RatesPath:           os.Getenv("RATES_PATH"),
		CalculatorStrategy:  strings.ToLower(os.Getenv("CALCULATOR_STRATEGY")),
		ProductionStatusURL: os.Getenv("PRODUCTION_STATUS_URL"),
		ProductionStatusKey: os.Getenv("PRODUCTION_STATUS_KEY"),
		WhatsAppNumber:      os.Getenv("WHATSAPP_NUMBER"),
	}
	cfg.SessionTTL = cfg.duration("SESSION_TTL")
	cfg.OTPTTL = cfg.duration("OTP_TTL")
	cfg.SeedDemo = cfg.boolean("SEED_DEMO")
	if dotEnvErr != nil {
		cfg.warn(dotEnvErr.Error())
	}

	if err := defaults.Set(&cfg); err != nil {
		cfg.warn(fmt.Sprintf("apply config defaults: %v", err))
	}

	if cfg.SessionSecret == "" {
		cfg.warn("SESSION_SECRET is not set")
	}

	return cfg
}

// IsDev reports whether the server runs in development mode, where
// migrations and demo data are applied at startup.
func (c Config) IsDev() bool {
	return c.Env == envDevelopment
}

// Warnings lists the problems found while loading.
func (c Config) Warnings() []string {
	return c.warnings
}

func (c *Config) warn(msg string) {
	c.warnings = append(c.warnings, msg)
}

func (c *Config) duration(key string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warn(fmt.Sprintf("%s=%q is not a positive duration, using default", key, raw))
		return 0
	}
	return d
}

func (c *Config) boolean(key string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		c.warn(fmt.Sprintf("%s=%q is not a boolean", key, raw))
		return false
	}
	return b
}
