package common

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnv = "dev"

type Config struct {
	Env           string
	DBDriver      string
	DatabaseURL   string
	SessionSecret string
	Port          string
	Domain        string
	CacheDir      string
	CacheMaxAge   time.Duration
	LogLevel      string
	AdminEmail    string
	AdminPassword string
}

// Env returns the runtime environment name, "dev" when WEBLOG_ENV is unset.
func Env() string {
	if env := os.Getenv("WEBLOG_ENV"); env != "" {
		return env
	}
	return defaultEnv
}

// LoadDotEnvs loads .env files in priority order. Variables already present
// in the environment are never overwritten.
func LoadDotEnvs() {
	env := Env()
	godotenv.Load(".env." + env + ".local")
	godotenv.Load(".env.local")
	godotenv.Load(".env." + env)
	godotenv.Load(".env")
}

func LoadConfig() Config {
	cfg := Config{
		Env:           Env(),
		DBDriver:      getenv("DB_DRIVER", "sqlite"),
		DatabaseURL:   getenv("DATABASE_URL", "weblog.db"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		Port:          getenv("PORT", "8080"),
		Domain:        strings.TrimSuffix(getenv("DOMAIN", "http://localhost:8080"), "/"),
		CacheDir:      getenv("CACHE_DIR", "cache"),
		CacheMaxAge:   10 * time.Minute,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if raw := os.Getenv("CACHE_MAX_AGE"); raw != "" {
		d, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			Log.WithError(err).Warn("ignoring invalid CACHE_MAX_AGE")
		case d <= 0:
			Log.WithField("value", raw).Warn("ignoring non-positive CACHE_MAX_AGE")
		default:
			cfg.CacheMaxAge = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
