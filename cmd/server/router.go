package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	invoicehandler "invoicevault/internal/invoice/handler"
	platformmetrics "invoicevault/internal/platform/metrics"
	"invoicevault/internal/platform/middleware"
	"invoicevault/pkg/platform/httputil"
)

// readinessCheck reports whether one backing dependency is reachable.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

type routerDeps struct {
	logger       *slog.Logger
	invoices     *invoicehandler.Handler
	httpMetrics  *platformmetrics.HTTP
	auth         middleware.JWTValidator // nil disables bearer auth
	metrics      http.Handler
	readiness    []readinessCheck
	readyTimeout time.Duration
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recovery(deps.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(deps.readiness, deps.readyTimeout))
	if deps.metrics == nil {
		deps.metrics = promhttp.Handler()
	}
	r.Handle("/metrics", deps.metrics)

	r.Group(func(r chi.Router) {
		if deps.httpMetrics != nil {
			r.Use(deps.httpMetrics.Middleware)
		}
		if deps.auth != nil {
			r.Use(middleware.RequireAuth(deps.auth, deps.logger))
		}
		deps.invoices.Register(r)
	})
	return r
}

func readyHandler(checks []readinessCheck, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[c.name] = err.Error()
				continue
			}
			report[c.name] = "ok"
		}
		httputil.WriteJSON(w, status, report)
	}
}
