// Package handler exposes revision batches over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/platform/middleware"
	"rollguard/internal/revision/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service runs and applies revision batches.
type Service interface {
	RunDryRun(ctx context.Context, scope models.Scope) (*models.DryRunResult, error)
	CommitBatch(ctx context.Context, batchID id.BatchID) (*models.CommitResult, error)
	CancelBatch(ctx context.Context, batchID id.BatchID, reason string) (*models.Batch, error)
	CloseFlag(ctx context.Context, flagID id.RevisionFlagID, status models.FlagStatus, notes string) (*models.Flag, error)
	GetBatch(ctx context.Context, batchID id.BatchID) (*models.DryRunResult, error)
	ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]*models.Batch, error)
}

type Handler struct {
	revisions Service
	logger    *slog.Logger
}

func New(revisions Service, logger *slog.Logger) *Handler {
	return &Handler{revisions: revisions, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/revisions/dry-run", h.HandleDryRun)
	r.Get("/v1/revisions", h.HandleList)
	r.Get("/v1/revisions/{batch_id}", h.HandleGet)
	r.Post("/v1/revisions/{batch_id}/commit", h.HandleCommit)
	r.Post("/v1/revisions/{batch_id}/cancel", h.HandleCancel)
	r.Post("/v1/revisions/flags/{flag_id}/close", h.HandleCloseFlag)
}

type DryRunRequest struct {
	Region  string     `json:"region" validate:"max=64"`
	From    *time.Time `json:"from"`
	To      *time.Time `json:"to"`
	ScanCap int        `json:"scan_cap" validate:"min=0,max=10000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type CloseFlagRequest struct {
	Status string `json:"status" validate:"required,oneof=resolved rejected"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// HandleDryRun implements POST /v1/revisions/dry-run.
func (h *Handler) HandleDryRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DryRunRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.revisions.RunDryRun(ctx, models.Scope{Region: req.Region, From: req.From, To: req.To, ScanCap: req.ScanCap})
	if err != nil {
		h.fail(ctx, w, "revision dry run failed", err)
		return
	}
	h.logger.InfoContext(ctx, "revision dry run requested",
		"request_id", requestID,
		"batch_id", res.Batch.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleCommit implements POST /v1/revisions/{batch_id}/commit.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}
	res, err := h.revisions.CommitBatch(ctx, batchID)
	if err != nil {
		h.fail(ctx, w, "revision commit failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleCancel implements POST /v1/revisions/{batch_id}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CancelRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	batch, err := h.revisions.CancelBatch(ctx, batchID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "revision cancel failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

// HandleCloseFlag implements POST /v1/revisions/flags/{flag_id}/close.
func (h *Handler) HandleCloseFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flagID, err := id.ParseRevisionFlagID(chi.URLParam(r, "flag_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid flag id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseFlagRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	flag, err := h.revisions.CloseFlag(ctx, flagID, models.FlagStatus(req.Status), req.Notes)
	if err != nil {
		h.fail(ctx, w, "revision flag close failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flag)
}

// HandleGet implements GET /v1/revisions/{batch_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}
	res, err := h.revisions.GetBatch(ctx, batchID)
	if err != nil {
		h.fail(ctx, w, "revision batch lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleList implements GET /v1/revisions?status=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	batches, err := h.revisions.ListBatches(ctx, models.BatchStatus(q.Get("status")), limit)
	if err != nil {
		h.fail(ctx, w, "revision batch listing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) batchID(w http.ResponseWriter, r *http.Request) (id.BatchID, bool) {
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batch_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid batch id"))
		return id.BatchID{}, false
	}
	return batchID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", middleware.GetRequestID(ctx),
	)
	httputil.WriteError(w, err)
}
