package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Run the HTTP server receiving CMS webhooks.

Endpoints:
  POST /api/webhook   reconcile the items named in a webhook payload
  POST /api/reindex   run a full reindex (?secret=...&prune=true)
  GET  /healthz       liveness
  GET  /readyz        search index reachability

Examples:
  contentsync serve
  contentsync serve --listen 0.0.0.0:8720`,
	Run: runServe,
}

var (
	serveListen  string
	serveTLSCert string
	serveTLSKey  string
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "Listen address (default from config)")
	f.StringVar(&serveTLSCert, "tls-cert", os.Getenv("CONTENTSYNC_TLS_CERT"), "TLS certificate file")
	f.StringVar(&serveTLSKey, "tls-key", os.Getenv("CONTENTSYNC_TLS_KEY"), "TLS key file")
}

func runServe(_ *cobra.Command, _ []string) {
	c := initContext()
	logger := app.NewLogger(c.Config.Log, os.Stdout)

	// webhook deliveries arrive right after publishing, ahead of the CDN
	a, err := app.Build(context.Background(), c.Config, app.Options{WaitForNewContent: true, Logger: logger})
	if err != nil {
		exitError("%v", err)
	}
	c.App = a
	defer c.Close()

	listen := serveListen
	if listen == "" {
		listen = c.Config.Server.Listen
	}

	if err := Serve(a, listen, serveTLSCert, serveTLSKey); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully.
func Serve(a *app.App, listen, tlsCert, tlsKey string) error {
	logger := a.Logger

	h, handlerCleanup := server.Handler(a.Syncer, a.ServerConfig(), logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting contentsync server",
			"listen", listen,
			"backend", a.Config.Index.Backend,
			"project_id", a.Config.Delivery.ProjectID)
		var err error
		if tlsCert != "" && tlsKey != "" {
			err = srv.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-done:
	}
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
