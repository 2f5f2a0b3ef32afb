// Package handler exposes name validation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/name/models"
	"rollguard/internal/platform/middleware"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service scores names.
type Service interface {
	ValidateName(ctx context.Context, name string, role models.Role) (*models.Result, error)
}

type Handler struct {
	names  Service
	logger *slog.Logger
}

func New(names Service, logger *slog.Logger) *Handler {
	return &Handler{names: names, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/names/validate", h.HandleValidate)
}

type ValidateRequest struct {
	Name     string `json:"name" validate:"notblank,max=256"`
	RoleType string `json:"role_type" validate:"required,oneof=first_name last_name parent_name guardian_name"`
}

// HandleValidate implements POST /v1/names/validate.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.names.ValidateName(ctx, req.Name, models.Role(req.RoleType))
	if err != nil {
		h.logger.ErrorContext(ctx, "name validation failed",
			"error", err,
			"request_id", requestID,
			"role", req.RoleType,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
