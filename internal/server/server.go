// Package server implements the contentsync HTTP entrypoints: the CMS
// webhook receiver and the full reindex trigger.
package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kilupskalvis/contentsync/internal/core"
	"github.com/kilupskalvis/contentsync/internal/models"
)

// SignatureHeader carries the base64 HMAC-SHA256 of a webhook body
const SignatureHeader = "X-KC-Signature"

// Syncer runs the index updates behind the endpoints.
type Syncer interface {
	ProcessCodenames(ctx context.Context, kind models.RunKind, codenames []string) (*core.SyncResult, error)
	FullReindex(ctx context.Context, opts core.ReindexOptions) (*core.SyncResult, error)
}

// Config holds configurable limits and secrets for the server.
type Config struct {
	// WebhookSecret authenticates /api/webhook. Empty disables the check.
	WebhookSecret string
	// ReindexSecret authenticates /api/reindex. Empty disables the check.
	ReindexSecret     string
	MaxRequestBody    int64 // bytes
	RequestsPerMinute int   // per client host
	// Ready reports whether the search index is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBody:    1 << 20,
		RequestsPerMinute: 120,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(syncer Syncer, cfg *Config, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret not set, /api/webhook accepts unauthenticated requests")
	}
	if cfg.ReindexSecret == "" {
		logger.Warn("reindex secret not set, /api/reindex accepts unauthenticated requests")
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready: search index unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Methods are checked in the handlers so that anything but POST gets
	// the JSON 405 body rather than the mux's plain text one.
	mux.Handle("/api/webhook", rl.middleware(makeWebhookHandler(syncer, cfg, logger)))
	mux.Handle("/api/reindex", rl.middleware(makeReindexHandler(syncer, cfg, logger)))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func makeWebhookHandler(syncer Syncer, cfg *Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}

		body, err := readBody(w, r, cfg.MaxRequestBody)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		if !webhookAuthorized(r, body, cfg.WebhookSecret) {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if len(bytes.TrimSpace(body)) == 0 {
			writeMessage(w, http.StatusBadRequest, "Missing Data")
			return
		}

		var payload models.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
			return
		}

		codenames := payload.Codenames()
		logger.Info("webhook received",
			"codenames", len(codenames),
			"request_id", RequestID(r.Context()))

		result, err := syncer.ProcessCodenames(r.Context(), models.RunWebhook, codenames)
		if err != nil {
			logger.Error("webhook sync failed", "error", err, "request_id", RequestID(r.Context()))
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result.ObjectIDs)
	}
}

func makeReindexHandler(syncer Syncer, cfg *Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		if !secretMatches(r.URL.Query().Get("secret"), cfg.ReindexSecret) {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		var opts core.ReindexOptions
		if v := r.URL.Query().Get("prune"); v != "" {
			prune, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "prune must be a boolean")
				return
			}
			opts.Prune = prune
		}

		result, err := syncer.FullReindex(r.Context(), opts)
		if err != nil {
			logger.Error("reindex failed", "error", err, "request_id", RequestID(r.Context()))
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result.ObjectIDs)
	}
}

// webhookAuthorized accepts a valid signature header or a matching
// ?secret= query parameter.
func webhookAuthorized(r *http.Request, body []byte, secret string) bool {
	if secret == "" {
		return true
	}
	if sig := r.Header.Get(SignatureHeader); sig != "" {
		return hmac.Equal([]byte(sig), []byte(Sign(body, secret)))
	}
	return secretMatches(r.URL.Query().Get("secret"), secret)
}

// Sign returns the base64 HMAC-SHA256 of body keyed with secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func secretMatches(given, secret string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func readBody(w http.ResponseWriter, r *http.Request, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxRequestBody
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxSize))
}
