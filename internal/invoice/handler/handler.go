package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"invoicevault/internal/invoice/models"
	dErrors "invoicevault/pkg/domain-errors"
	"invoicevault/pkg/platform/httputil"
	"invoicevault/pkg/requestcontext"
)

// Service defines the invoice operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, sub *models.Submission) (*models.Result, error)
	Get(ctx context.Context, documentID string) (*models.InvoiceDetails, error)
}

// Handler serves invoice submission and lookup.
type Handler struct {
	svc          Service
	logger       *slog.Logger
	maxBodyBytes int64
}

// New creates a Handler. Request bodies larger than maxBodyBytes are rejected.
func New(svc Service, logger *slog.Logger, maxBodyBytes int64) *Handler {
	return &Handler{svc: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

// Register registers the invoice routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/invoices", h.handleSubmit)
	r.Get("/invoices/{uuid}", h.handleGet)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sub, ok := httputil.DecodeJSON[models.Submission](w, r, h.logger, h.maxBodyBytes)
	if !ok {
		return
	}

	res, err := h.svc.Submit(ctx, sub)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			h.logger.InfoContext(ctx, "invoice submission rejected",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	if res.Outcome == models.OutcomeDuplicate {
		httputil.WriteJSON(w, http.StatusConflict, duplicateResponse{
			Error:            duplicateInvoiceCode,
			ErrorDescription: "an invoice with this uuid is already registered",
			InvoiceID:        res.InvoiceID.String(),
			UUID:             res.UUID,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toSubmitResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	details, err := h.svc.Get(ctx, chi.URLParam(r, "uuid"))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to load invoice",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toInvoiceResponse(details))
}
