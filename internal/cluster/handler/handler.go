// Package handler exposes address-cluster detection over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/cluster/models"
	"rollguard/internal/platform/middleware"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service detects and manages cluster flags.
type Service interface {
	Thresholds() models.Thresholds
	DetectAddressClusters(ctx context.Context, override *models.Thresholds) (*models.Result, error)
	GetFlag(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error)
	ListFlags(ctx context.Context, status models.Status, limit int) ([]*models.Flag, error)
	ReopenFlag(ctx context.Context, flagID id.ClusterFlagID, reason string) (*models.Flag, error)
}

type Handler struct {
	clusters Service
	logger   *slog.Logger
}

func New(clusters Service, logger *slog.Logger) *Handler {
	return &Handler{clusters: clusters, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/clusters/detect", h.HandleDetect)
	r.Get("/v1/clusters/flags", h.HandleList)
	r.Get("/v1/clusters/flags/{flag_id}", h.HandleGet)
	r.Post("/v1/clusters/flags/{flag_id}/reopen", h.HandleReopen)
}

// DetectRequest optionally overrides the count tiers for one run. Omitted
// tiers keep their configured value.
type DetectRequest struct {
	Low    *int `json:"low" validate:"omitempty,min=1"`
	Medium *int `json:"medium" validate:"omitempty,min=1"`
	High   *int `json:"high" validate:"omitempty,min=1"`
}

func (r *DetectRequest) override(base models.Thresholds) *models.Thresholds {
	if r.Low == nil && r.Medium == nil && r.High == nil {
		return nil
	}
	if r.Low != nil {
		base.Low = *r.Low
	}
	if r.Medium != nil {
		base.Medium = *r.Medium
	}
	if r.High != nil {
		base.High = *r.High
	}
	return &base
}

type ReopenRequest struct {
	Reason string `json:"reason" validate:"notblank,max=2000"`
}

// HandleDetect implements POST /v1/clusters/detect.
func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DetectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.clusters.DetectAddressClusters(ctx, req.override(h.clusters.Thresholds()))
	if err != nil {
		h.fail(ctx, w, "cluster detection failed", err)
		return
	}
	h.logger.InfoContext(ctx, "cluster detection requested",
		"request_id", requestID,
		"flags_created", res.FlagsCreated,
		"flags_updated", res.FlagsUpdated,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleList implements GET /v1/clusters/flags?status=&limit=.
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
	flags, err := h.clusters.ListFlags(ctx, models.Status(q.Get("status")), limit)
	if err != nil {
		h.fail(ctx, w, "cluster flag listing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

// HandleGet implements GET /v1/clusters/flags/{flag_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flagID, ok := h.flagID(w, r)
	if !ok {
		return
	}
	flag, err := h.clusters.GetFlag(ctx, flagID)
	if err != nil {
		h.fail(ctx, w, "cluster flag lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flag)
}

// HandleReopen implements POST /v1/clusters/flags/{flag_id}/reopen.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flagID, ok := h.flagID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReopenRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	flag, err := h.clusters.ReopenFlag(ctx, flagID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "cluster flag reopen failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flag)
}

func (h *Handler) flagID(w http.ResponseWriter, r *http.Request) (id.ClusterFlagID, bool) {
	flagID, err := id.ParseClusterFlagID(chi.URLParam(r, "flag_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid flag id"))
		return id.ClusterFlagID{}, false
	}
	return flagID, true
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
