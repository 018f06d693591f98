package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv          string
	ListenAddr      string
	OriginURLDev    string
	OriginURLProd   string
	MaxPayloadBytes int64

	DBPath           string
	OutputDir        string
	ReferenceCSVPath string
	FieldMapDir      string
	MatchWorkers     int

	LogLevel  string
	LogFormat string

	SkiddleAPIBaseURL string
	SkiddleAPIKey     string
	SkiddleRateEvery  time.Duration
	SkiddleTimeoutMs  int
	SkiddlePageSize   int

	ListenerVendor      string
	ListenerIntervalSec int
	ListenerParams      string
	ListenerAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          strings.ToLower(getEnv("APP_ENV", "development")),
		ListenAddr:      getEnv("LISTEN_ADDR", ":3000"),
		OriginURLDev:    getEnv("ORIGIN_URL_DEV", "http://localhost:5173"),
		OriginURLProd:   getEnv("ORIGIN_URL_PROD", ""),
		MaxPayloadBytes: int64(getEnvInt("MAX_PAYLOAD_BYTES", 32<<20)),

		DBPath:           getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir:        getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ReferenceCSVPath: getEnv("REFERENCE_CSV_PATH", ""),
		FieldMapDir:      getEnv("FIELDMAP_DIR", ""),
		MatchWorkers:     getEnvInt("MATCH_WORKERS", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		SkiddleAPIBaseURL: getEnv("SKIDDLE_API_BASE_URL", "https://www.skiddle.com/api/v1"),
		SkiddleAPIKey:     getEnv("SKIDDLE_API_KEY", ""),
		SkiddleRateEvery:  getEnvDuration("SKIDDLE_RATE_INTERVAL_MS", 2000*time.Millisecond),
		SkiddleTimeoutMs:  getEnvInt("SKIDDLE_TIMEOUT_MS", 30000),
		SkiddlePageSize:   getEnvInt("SKIDDLE_PAGE_SIZE", 100),

		ListenerVendor:      getEnv("LISTENER_VENDOR", "skiddle"),
		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 3600),
		ListenerParams:      getEnv("LISTENER_PARAMS", ""),
		ListenerAutoExport:  getEnvBool("LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowedOrigin is the CORS origin for the current environment.
func (c Config) AllowedOrigin() string {
	if c.IsProduction() {
		return c.OriginURLProd
	}
	return c.OriginURLDev
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
