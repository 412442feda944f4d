// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the HTTP surface: routing, the resolver
// middleware and the listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/events"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/server/handlers"
	"github.com/uitsmijter/uitsmijter/pkg/server/middleware"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Router builds the full route table. Every request passes the resolver
// so handlers can rely on a populated request context.
func Router(
	settings *config.Settings,
	resolver *middleware.Resolver,
	h *handlers.Handlers,
	recorder *events.Recorder,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		accessLog,
		resolver.Handler,
	)

	r.Get("/", h.Landing)
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Get("/authorize", h.Authorize)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/logout", h.LogoutPage)
	r.Post("/logout", h.LogoutFinalize)
	r.Get("/logout/finalize", h.LogoutFinalize)
	r.Post("/logout/finalize", h.LogoutFinalize)

	r.Post("/token", h.Token)
	r.Get("/token/info", h.TokenInfo)

	r.Get("/interceptor", h.Interceptor)
	r.Post("/interceptor", h.Interceptor)

	r.Get("/.well-known/openid-configuration", h.Discovery)
	r.Get("/.well-known/jwks.json", h.JWKS)

	if settings.DisplayVersion {
		r.Get("/versions", h.Versions)
	}
	if settings.Metrics {
		r.Method(http.MethodGet, "/metrics", recorder.Handler())
	}

	return r
}

// accessLog writes one structured line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"host", r.Host,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// Serve runs the HTTP server until the context is canceled, then shuts
// down gracefully. The caller sets up signal handling.
func Serve(ctx context.Context, settings *config.Settings, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", settings.Hostname, settings.Port)
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
