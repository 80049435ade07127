package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	invoicehandler "invoicevault/internal/invoice/handler"
	"invoicevault/internal/invoice/models"
	platformmetrics "invoicevault/internal/platform/metrics"
	"invoicevault/internal/platform/middleware"
	dErrors "invoicevault/pkg/domain-errors"
	"invoicevault/pkg/testutil"
)

type notFoundService struct{}

func (notFoundService) Submit(context.Context, *models.Submission) (*models.Result, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "failed to register invoice")
}

func (notFoundService) Get(context.Context, string) (*models.InvoiceDetails, error) {
	return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
}

type denyAll struct{}

func (denyAll) ValidateToken(string) (*middleware.JWTClaims, error) {
	return nil, errors.New("denied")
}

func testDeps(checks ...readinessCheck) routerDeps {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return routerDeps{
		logger:       log,
		invoices:     invoicehandler.New(notFoundService{}, log, 1<<20),
		httpMetrics:  platformmetrics.NewWith(prometheus.NewRegistry()),
		metrics:      http.NotFoundHandler(),
		readiness:    checks,
		readyTimeout: time.Second,
	}
}

func TestRouterHealth(t *testing.T) {
	rr := testutil.DoRequest(newRouter(testDeps()), testutil.NewRequest(t, http.MethodGet, "/healthz"))

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestRouterReadiness(t *testing.T) {
	ok := readinessCheck{name: "postgres", check: func(context.Context) error { return nil }}
	down := readinessCheck{name: "redis", check: func(context.Context) error { return errors.New("connection refused") }}

	rr := testutil.DoRequest(newRouter(testDeps(ok)), testutil.NewRequest(t, http.MethodGet, "/readyz"))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(newRouter(testDeps(ok, down)), testutil.NewRequest(t, http.MethodGet, "/readyz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	testutil.AssertJSONContains(t, rr, "postgres", "ok")
	testutil.AssertJSONContains(t, rr, "redis", "connection refused")
}

func TestRouterMountsInvoiceRoutes(t *testing.T) {
	rr := testutil.DoRequest(newRouter(testDeps()), testutil.NewRequest(t, http.MethodGet, "/invoices/6f1d2c3b-0a4e-4b5c-9d8e-7f6a5b4c3d2e"))

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestRouterAuthGuardsInvoicesOnly(t *testing.T) {
	deps := testDeps()
	deps.auth = denyAll{}
	router := newRouter(deps)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/invoices/6f1d2c3b-0a4e-4b5c-9d8e-7f6a5b4c3d2e"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)
}
