package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Policy holds the comment policy constants.
type Policy struct {
	EditWindow       time.Duration // non-elevated authors may edit within this span
	MaxBodyLength    int           // characters, after trimming
	DefaultPageLimit int
	MaxPageLimit     int
	MaxDisplayDepth  int // indentation cap at render time only
	ArticleCacheTTL  time.Duration
	IdempotencyTTL   time.Duration
}

type Config struct {
	Port          string
	DatabaseURL   string
	SessionSecret string
	RedisURL      string // optional, enables idempotent create
	NATSURL       string // optional, enables event publishing
	LogLevel      string
	LogFormat     string // console or json
	AutoMigrate   bool

	Policy Policy
}

func Defaults() Config {
	return Config{
		Port:          "8080",
		DatabaseURL:   "host=localhost user=postgres password=postgres dbname=zhutalk port=5432 sslmode=disable TimeZone=Asia/Shanghai",
		SessionSecret: "secret_key_change_me",
		LogLevel:      "info",
		LogFormat:     "console",
		AutoMigrate:   true,
		Policy: Policy{
			EditWindow:       15 * time.Minute,
			MaxBodyLength:    5000,
			DefaultPageLimit: 50,
			MaxPageLimit:     100,
			MaxDisplayDepth:  6,
			ArticleCacheTTL:  time.Minute,
			IdempotencyTTL:   24 * time.Hour,
		},
	}
}

// fileConfig mirrors the optional TOML overlay. Durations are strings such
// as "15m" so the file reads the same as the environment.
type fileConfig struct {
	Server struct {
		Port          string `toml:"port"`
		DatabaseURL   string `toml:"database_url"`
		SessionSecret string `toml:"session_secret"`
		RedisURL      string `toml:"redis_url"`
		NATSURL       string `toml:"nats_url"`
		LogLevel      string `toml:"log_level"`
		LogFormat     string `toml:"log_format"`
		AutoMigrate   *bool  `toml:"auto_migrate"`
	} `toml:"server"`
	Policy struct {
		EditWindow       string `toml:"edit_window"`
		MaxBodyLength    int    `toml:"max_body_length"`
		DefaultPageLimit int    `toml:"default_page_limit"`
		MaxPageLimit     int    `toml:"max_page_limit"`
		MaxDisplayDepth  int    `toml:"max_display_depth"`
		ArticleCacheTTL  string `toml:"article_cache_ttl"`
		IdempotencyTTL   string `toml:"idempotency_ttl"`
	} `toml:"policy"`
}

// Load builds the configuration: defaults, then the TOML file named by
// ZHUTALK_CONFIG, then environment variables (a .env file is loaded first
// if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("ZHUTALK_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	s := fc.Server
	setString(&cfg.Port, s.Port)
	setString(&cfg.DatabaseURL, s.DatabaseURL)
	setString(&cfg.SessionSecret, s.SessionSecret)
	setString(&cfg.RedisURL, s.RedisURL)
	setString(&cfg.NATSURL, s.NATSURL)
	setString(&cfg.LogLevel, s.LogLevel)
	setString(&cfg.LogFormat, s.LogFormat)
	if s.AutoMigrate != nil {
		cfg.AutoMigrate = *s.AutoMigrate
	}

	p := fc.Policy
	if err := setDuration(&cfg.Policy.EditWindow, p.EditWindow, "policy.edit_window"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Policy.ArticleCacheTTL, p.ArticleCacheTTL, "policy.article_cache_ttl"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Policy.IdempotencyTTL, p.IdempotencyTTL, "policy.idempotency_ttl"); err != nil {
		return err
	}
	setInt(&cfg.Policy.MaxBodyLength, p.MaxBodyLength)
	setInt(&cfg.Policy.DefaultPageLimit, p.DefaultPageLimit)
	setInt(&cfg.Policy.MaxPageLimit, p.MaxPageLimit)
	setInt(&cfg.Policy.MaxDisplayDepth, p.MaxDisplayDepth)
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, os.Getenv("PORT"))
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.SessionSecret, os.Getenv("SESSION_SECRET"))
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	setString(&cfg.NATSURL, os.Getenv("NATS_URL"))
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("LOG_FORMAT"))

	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_MIGRATE: %w", err)
		}
		cfg.AutoMigrate = b
	}
	if err := setDuration(&cfg.Policy.EditWindow, os.Getenv("COMMENT_EDIT_WINDOW"), "COMMENT_EDIT_WINDOW"); err != nil {
		return err
	}
	if v := os.Getenv("COMMENT_MAX_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COMMENT_MAX_LENGTH: %w", err)
		}
		cfg.Policy.MaxBodyLength = n
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Policy.EditWindow < 0 {
		problems = append(problems, "edit window must not be negative")
	}
	if c.Policy.MaxBodyLength < 1 {
		problems = append(problems, "max body length must be positive")
	}
	if c.Policy.DefaultPageLimit < 1 || c.Policy.MaxPageLimit < c.Policy.DefaultPageLimit {
		problems = append(problems, "page limits must satisfy 1 <= default <= max")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
