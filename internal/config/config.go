package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile          string
	AdminAddr       string
	APIAddr         string
	BaseURL         string
	AuthSecret      string
	TokenExpiry     time.Duration
	ProfileCacheTTL time.Duration

	LiveWriteTimeout time.Duration
	LiveSendBuffer   int
	LiveTrustUserID  bool

	RequireFriendship bool

	// RedisURL enables the shared presence mirror when set.
	RedisURL    string
	RedisDB     int
	PresenceTTL time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// Load reads the configuration from the environment.
// A .env file in the working directory is applied first if present;
// variables that are already set win.
func Load(cliMode bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var p parser
	cfg := &Config{
		DBFile:            getEnv("PROPTALK_DB", "proptalk.db"),
		AdminAddr:         getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:           getEnv("API_ADDR", ":8080"),
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		AuthSecret:        os.Getenv("AUTH_SECRET"),
		TokenExpiry:       p.duration("TOKEN_EXPIRY", "24h"),
		ProfileCacheTTL:   p.duration("PROFILE_CACHE_TTL", "1m"),
		LiveWriteTimeout:  p.duration("LIVE_WRITE_TIMEOUT", "10s"),
		LiveSendBuffer:    p.integer("LIVE_SEND_BUFFER", "64"),
		LiveTrustUserID:   p.boolean("LIVE_TRUST_USER_ID", "true"),
		RequireFriendship: p.boolean("MESSAGING_REQUIRE_FRIENDSHIP", "true"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisDB:           p.integer("REDIS_DB", "0"),
		PresenceTTL:       p.duration("PRESENCE_TTL", "120s"),
		LogLevel:          p.level("LOG_LEVEL", "info"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be greater than 0")
	}

	if c.LiveWriteTimeout <= 0 {
		return fmt.Errorf("LIVE_WRITE_TIMEOUT must be greater than 0")
	}

	if c.LiveSendBuffer <= 0 {
		return fmt.Errorf("LIVE_SEND_BUFFER must be greater than 0")
	}

	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be greater than 0")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) duration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) integer(key, fallback string) int {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) boolean(key, fallback string) bool {
	b, err := strconv.ParseBool(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) level(key, fallback string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(getEnv(key, fallback))); err != nil {
		p.fail(key, err)
	}
	return l
}
