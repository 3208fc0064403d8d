package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"wps/internal/app/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on process environment")
	}
	slog.SetDefault(newLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")))

	if err := server.Run(); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
