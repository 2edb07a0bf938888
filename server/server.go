// Package server exposes the overlay-facing HTTP API: health, per-platform
// connection status, the current message window, an SSE push stream, metrics,
// and the visibility hint consumed by the polling adapter. It injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	gorilla "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers carries the read models and hooks the API serves from.
type Handlers struct {
	Store  MessageStore
	Status StatusSource

	// SetVisibility is invoked on POST /visibility; nil disables the route's
	// effect (the request still succeeds so the renderer does not error).
	SetVisibility func(visible bool)
}

// NewMux returns the HTTP handler with all routes. allowedOrigins feeds the
// CORS layer; empty means same-origin only plus the dev wildcard.
func NewMux(h *Handlers, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc("/messages", h.HandleMessages).Methods(http.MethodGet)
	r.HandleFunc("/stream", h.HandleStream).Methods(http.MethodGet)
	r.HandleFunc("/visibility", h.HandleVisibility).Methods(http.MethodPost)

	r.Use(correlationMiddleware)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := gorilla.CORS(
		gorilla.AllowedOrigins(allowedOrigins),
		gorilla.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorilla.AllowedHeaders([]string{"Content-Type", "X-Correlation-ID"}),
	)
	return cors(r)
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation. WriteTimeout stays unset because /stream holds its response
// open indefinitely.
func Start(ctx context.Context, h *Handlers, addr string, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     NewMux(h, allowedOrigins),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
