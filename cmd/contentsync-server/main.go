// Command contentsync-server runs the webhook server, configured from the
// environment and flags when no contentsync.toml is present.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/cli"
	"github.com/kilupskalvis/contentsync/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONTENTSYNC_CONFIG"), "Path to "+config.ConfigFile)
	listen := flag.String("listen", os.Getenv("CONTENTSYNC_LISTEN"), "Listen address (default from config)")
	logLevel := flag.String("log-level", envOrDefault("CONTENTSYNC_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("CONTENTSYNC_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("CONTENTSYNC_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("CONTENTSYNC_TLS_KEY"), "TLS key file")
	flag.Parse()

	logger := app.NewLogger(config.LogConfig{Level: *logLevel, Format: *logFormat}, os.Stdout)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Log = config.LogConfig{Level: *logLevel, Format: *logFormat}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	a, err := app.Build(context.Background(), cfg, app.Options{WaitForNewContent: true, Logger: logger})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	serveErr := cli.Serve(a, cfg.Server.Listen, *tlsCert, *tlsKey)
	if err := a.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
	if serveErr != nil {
		logger.Error("server error", "error", serveErr)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
