// Package handler exposes voter registration intake over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	addressmodels "rollguard/internal/address/models"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/voter/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service accepts registrations and reads voters.
type Service interface {
	SubmitRegistration(ctx context.Context, reg models.Registration) (*models.SubmitResult, error)
	GetVoter(ctx context.Context, voterID id.VoterID) (*models.Record, error)
}

type Handler struct {
	voters Service
	logger *slog.Logger
}

func New(voters Service, logger *slog.Logger) *Handler {
	return &Handler{voters: voters, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/voters", h.HandleRegister)
	r.Get("/v1/voters/{voter_id}", h.HandleGet)
}

type RegisterRequest struct {
	UniqueIdentifier string                   `json:"unique_identifier" validate:"notblank,max=64"`
	FirstName        string                   `json:"first_name" validate:"notblank,max=128"`
	LastName         string                   `json:"last_name" validate:"notblank,max=128"`
	DateOfBirth      string                   `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender           string                   `json:"gender" validate:"max=16"`
	Email            string                   `json:"email" validate:"omitempty,email,max=254"`
	Phone            string                   `json:"phone" validate:"omitempty,phone"`
	Region           string                   `json:"region" validate:"max=64"`
	Address          addressmodels.Components `json:"address"`
}

// HandleRegister implements POST /v1/voters. The response status is 201 for
// every outcome, including rejected registrations; the body carries it.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.voters.SubmitRegistration(ctx, models.Registration{
		UniqueIdentifier: req.UniqueIdentifier,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		Email:            req.Email,
		Phone:            req.Phone,
		Region:           req.Region,
		Address:          req.Address,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "registration failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "registration received",
		"request_id", requestID,
		"voter_id", res.Voter.ID.String(),
		"status", string(res.Status),
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleGet implements GET /v1/voters/{voter_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID, err := id.ParseVoterID(chi.URLParam(r, "voter_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid voter id"))
		return
	}
	v, err := h.voters.GetVoter(ctx, voterID)
	if err != nil {
		h.logger.WarnContext(ctx, "voter lookup failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
