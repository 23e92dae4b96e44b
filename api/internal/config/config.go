package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = "8000"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultDatabaseURL    = "sqlite:///./mindlens.db"
	DefaultAnalyzeTimeout = 120 * time.Second
	DefaultMaxUploadBytes = 32 << 20
	DefaultMaxOpenConns   = 10
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	PromptDir    string `yaml:"prompt_dir"`

	DatabaseURL     string `yaml:"database_url"`
	DBLivenessCheck bool   `yaml:"db_liveness_check"`
	DBMaxOpenConns  int    `yaml:"db_max_open_conns"`

	AnalyzeTimeout time.Duration `yaml:"analyze_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		LogLevel:        "info",
		GeminiModel:     DefaultGeminiModel,
		DatabaseURL:     DefaultDatabaseURL,
		DBLivenessCheck: true,
		DBMaxOpenConns:  DefaultMaxOpenConns,
		AnalyzeTimeout:  DefaultAnalyzeTimeout,
		MaxUploadBytes:  DefaultMaxUploadBytes,
	}
}

// Load: значения по умолчанию → YAML из path (если задан) → переменные окружения.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.GeminiAPIKey))
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.PromptDir = getEnv("PROMPT_DIR", c.PromptDir)
	c.DatabaseURL = resolveDSN(c.DatabaseURL)

	var err error
	if c.DBLivenessCheck, err = getBool("DB_LIVENESS_CHECK", c.DBLivenessCheck); err != nil {
		return err
	}
	if c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", c.DBMaxOpenConns); err != nil {
		return err
	}
	if c.AnalyzeTimeout, err = getDuration("ANALYZE_TIMEOUT", c.AnalyzeTimeout); err != nil {
		return err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes))
	if err != nil {
		return err
	}
	c.MaxUploadBytes = int64(maxUpload)
	return nil
}

// Validate проверяет то, без чего сервер не стартует.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		errs = append(errs, errors.New("missing required env GEMINI_API_KEY"))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars"))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("bad PORT %q", c.Port))
	}
	if c.AnalyzeTimeout <= 0 {
		errs = append(errs, errors.New("ANALYZE_TIMEOUT must be > 0"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be > 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string { return "0.0.0.0:" + c.Port }

// resolveDSN: DATABASE_URL, затем POSTGRES_*/PG*, иначе текущее значение.
func resolveDSN(current string) string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := strings.TrimSpace(os.Getenv("PGHOST"))
	if pass == "" && host == "" {
		return current
	}
	if host == "" {
		host = "db"
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "mindlens"), pass),
		Host:     net.JoinHostPort(host, getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "mindlens"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: bad %s=%q: %w", k, v, err)
	}
	return b, nil
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: bad %s=%q: %w", k, v, err)
	}
	return n, nil
}

// getDuration принимает "90s"/"2m" или просто число секунд.
func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: bad %s=%q: %w", k, v, err)
	}
	return d, nil
}
