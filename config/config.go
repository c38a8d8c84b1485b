// ABOUTME: Environment-driven application configuration
// ABOUTME: Loads .env, provider OAuth credentials, and storage defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// OAuthClient holds one provider's OAuth app credentials.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether the provider can be used at all.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	Google    OAuthClient
	Microsoft OAuthClient

	// SyncSpec is the cron expression for the periodic sync pass.
	SyncSpec string

	// SyncTimeout bounds a manually triggered sync.
	SyncTimeout time.Duration

	LogLevel string
}

// Load reads configuration from the environment, with a .env file loaded
// first if present.
func Load() (*Config, error) {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        envInt("PORT", 3001),
		DBPath:      os.Getenv("DB_PATH"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SyncSpec:    os.Getenv("SYNC_CRON"),
		SyncTimeout: envDuration("SYNC_TIMEOUT", 2*time.Minute),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Google: OAuthClient{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
		},
		Microsoft: OAuthClient{
			ClientID:     os.Getenv("MICROSOFT_CLIENT_ID"),
			ClientSecret: os.Getenv("MICROSOFT_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("MICROSOFT_REDIRECT_URI"),
		},
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(xdg.DataHome, "habitly", "habitly.db")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	return cfg, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
