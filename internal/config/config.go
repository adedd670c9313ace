package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	AuthAPIBase       string
	GameServerAPIBase string
	GameServerSocket  string
	DeckAPIBase       string
	ListenAddr        string
	DatabaseURL       string
	LogLevel          zapcore.Level
	HandshakeTimeout  time.Duration
}

// Load reads the environment, after merging in the given .env files. Missing
// files are skipped; variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		AuthAPIBase:       getEnv("AUTH_API_BASE", "http://localhost:8081/api/v1/auth"),
		GameServerAPIBase: getEnv("GAME_SERVER_API_BASE", "http://localhost:8082/api/v1"),
		GameServerSocket:  getEnv("GAME_SERVER_SOCKET", "ws://localhost:8082/ws"),
		DeckAPIBase:       getEnv("DECKER_API_BASE", "http://localhost:8083/api/v1"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
	}

	level, err := zapcore.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.HandshakeTimeout, err = time.ParseDuration(getEnv("HANDSHAKE_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("HANDSHAKE_TIMEOUT: %w", err)
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("HANDSHAKE_TIMEOUT: must be positive, got %s", cfg.HandshakeTimeout)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
