package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds server settings. Sources, lowest to highest precedence:
// defaults, the YAML file named by CONFIG_FILE, environment (.env included).
type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	RedisURL       string        `yaml:"redis_url"`    // empty: in-memory session store
	DatabaseURL    string        `yaml:"database_url"` // empty: in-memory challenge repository
	SessionTTL     time.Duration `yaml:"session_ttl"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"` // json | console
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		HTTPAddr:   ":8080",
		SessionTTL: 24 * time.Hour,
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.RedisURL = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup("SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		c.SessionTTL = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
