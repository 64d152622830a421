package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	Env               string
	Addr              string
	DatabasePath      string
	TailnetHostname   string // empty listens on Addr over plain TCP
	StateDir          string
	AdminUser         string
	AdminPasswordHash string // bcrypt; empty falls back to the demo password
	ChatPerMinute     int
	ChatBurst         int
	LogLevel          string
	ShutdownTimeout   time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	return &Config{
		Env:               getEnv("MINDCARE_ENV", "development"),
		Addr:              getEnv("MINDCARE_ADDR", ":8080"),
		DatabasePath:      getEnv("MINDCARE_DB", "mindcare.db"),
		TailnetHostname:   getEnv("MINDCARE_TAILNET_HOSTNAME", ""),
		StateDir:          getEnv("MINDCARE_STATE_DIR", defaultStateDir()),
		AdminUser:         getEnv("MINDCARE_ADMIN_USER", "admin"),
		AdminPasswordHash: getEnv("MINDCARE_ADMIN_PASSWORD_HASH", ""),
		ChatPerMinute:     getEnvInt("MINDCARE_CHAT_RATE", 20),
		ChatBurst:         getEnvInt("MINDCARE_CHAT_BURST", 5),
		LogLevel:          getEnv("MINDCARE_LOG_LEVEL", "info"),
		ShutdownTimeout:   getEnvDuration("MINDCARE_SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/mindcare"
	}
	return ".mindcare"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
