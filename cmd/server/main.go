// Package main is the entry point for the CognitivePath API server.
//
// main's job is deliberately small: read configuration from the
// environment, build the logger, and hand both to internal/server. All
// actual behavior lives in the imported packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/server"
)

func main() {
	logger := newLogger()
	// The handler package's response helpers log unexpected errors through
	// the default logger.
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Ensure the data directory exists before SQLite tries to create the
	// file inside it.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(cfg.DBPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger. LOG_LEVEL: debug|info|warn|error,
// default info.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the environment. The two JWT secrets are mandatory —
// the process refuses to start without them rather than falling back to a
// baked-in default that would ship to production unnoticed. Equal secrets
// are rejected later by auth.NewTokenService.
//
// Generate secrets with: openssl rand -hex 32
func loadConfig() (server.Config, error) {
	cfg := server.Config{
		Port:   3001,
		DBPath: "data/cognitivepath.db",
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return cfg, errEnv("PORT", portStr)
		}
		cfg.Port = port
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	cfg.Tokens.AccessSecret = os.Getenv("JWT_SECRET")
	cfg.Tokens.RefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.Tokens.AccessSecret == "" {
		return cfg, errEnv("JWT_SECRET", "(unset)")
	}
	if cfg.Tokens.RefreshSecret == "" {
		return cfg, errEnv("JWT_REFRESH_SECRET", "(unset)")
	}

	// Token lifetimes as duration strings; days supported ("7d", "30d").
	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" {
		d, err := auth.ParseLifetime(v)
		if err != nil {
			return cfg, errEnv("JWT_EXPIRES_IN", v)
		}
		cfg.Tokens.AccessLifetime = d
	}
	if v := os.Getenv("JWT_REFRESH_EXPIRES_IN"); v != "" {
		d, err := auth.ParseLifetime(v)
		if err != nil {
			return cfg, errEnv("JWT_REFRESH_EXPIRES_IN", v)
		}
		cfg.Tokens.RefreshLifetime = d
	}

	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errEnv("BCRYPT_COST", v)
		}
		cfg.BcryptCost = cost
	}

	return cfg, nil
}

type envError struct {
	key, value string
}

func (e envError) Error() string {
	return "invalid or missing env var " + e.key + "=" + e.value
}

func errEnv(key, value string) error {
	return envError{key: key, value: value}
}
