// Package handler exposes address validation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/address/models"
	"rollguard/internal/platform/middleware"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service validates addresses.
type Service interface {
	ValidateAddress(ctx context.Context, raw models.Components) (*models.Result, error)
}

type Handler struct {
	addresses Service
	logger    *slog.Logger
}

func New(addresses Service, logger *slog.Logger) *Handler {
	return &Handler{addresses: addresses, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/addresses/validate", h.HandleValidate)
}

// ValidateRequest carries the raw components. At least one must be set;
// anything further is scored, not rejected.
type ValidateRequest struct {
	HouseNumber string `json:"house_number" validate:"max=64"`
	Street      string `json:"street" validate:"max=256"`
	Locality    string `json:"locality" validate:"max=128"`
	District    string `json:"district" validate:"max=128"`
	State       string `json:"state" validate:"max=64"`
	PostalCode  string `json:"postal_code" validate:"max=16"`
}

func (r *ValidateRequest) components() models.Components {
	return models.Components{
		HouseNumber: r.HouseNumber,
		Street:      r.Street,
		Locality:    r.Locality,
		District:    r.District,
		State:       r.State,
		PostalCode:  r.PostalCode,
	}
}

// HandleValidate implements POST /v1/addresses/validate. A rejected address
// is a 200 with validation_result "rejected".
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.addresses.ValidateAddress(ctx, req.components())
	if err != nil {
		h.logger.ErrorContext(ctx, "address validation failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
