// Package handler exposes audit chain verification and entity history over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/auditchain/models"
	"rollguard/internal/platform/middleware"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Verifier,History

type Verifier interface {
	VerifyHashChain(ctx context.Context) (*models.Verification, error)
	Blocks(ctx context.Context, verificationID id.VerificationID) ([]*models.Block, error)
}

type History interface {
	History(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Entry, error)
}

type Handler struct {
	verifier Verifier
	history  History
	logger   *slog.Logger
}

func New(verifier Verifier, history History, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, history: history, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/audit/verify", h.HandleVerify)
	r.Get("/v1/audit/verifications/{verification_id}/blocks", h.HandleBlocks)
	r.Get("/v1/audit/history/{entity_type}/{entity_id}", h.HandleHistory)
}

type VerificationResponse struct {
	VerificationID  string `json:"verification_id"`
	TotalBlocks     int    `json:"total_blocks"`
	InvalidBlocks   int    `json:"invalid_blocks"`
	FirstInvalidSeq int64  `json:"first_invalid_seq,omitempty"`
	HeadMismatch    bool   `json:"head_mismatch,omitempty"`
	ChainHealth     string `json:"chain_health"`
	VerifiedAt      string `json:"verified_at"`
}

type BlockResponse struct {
	Seq          int64  `json:"seq"`
	EntryID      string `json:"entry_id"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
	IsValid      bool   `json:"is_valid"`
}

type EntryResponse struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	OccurredAt   string          `json:"occurred_at"`
	Action       string          `json:"action"`
	Actor        string          `json:"actor"`
	Details      json.RawMessage `json:"details"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
}

// HandleVerify implements POST /v1/audit/verify. A compromised chain is a
// 200 whose chain_health says so.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := h.verifier.VerifyHashChain(ctx)
	if err != nil {
		h.fail(ctx, w, "hash chain verification failed", err)
		return
	}
	if v.ChainHealth != models.ChainHealthy {
		h.logger.WarnContext(ctx, "audit chain compromised",
			"request_id", middleware.GetRequestID(ctx),
			"invalid_blocks", v.InvalidBlocks,
			"first_invalid_seq", v.FirstInvalidSeq,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, VerificationResponse{
		VerificationID:  v.VerificationID.String(),
		TotalBlocks:     v.TotalBlocks,
		InvalidBlocks:   v.InvalidBlocks,
		FirstInvalidSeq: v.FirstInvalidSeq,
		HeadMismatch:    v.HeadMismatch,
		ChainHealth:     string(v.ChainHealth),
		VerifiedAt:      v.VerifiedAt.UTC().Format(time.RFC3339Nano),
	})
}

// HandleBlocks implements GET /v1/audit/verifications/{verification_id}/blocks.
func (h *Handler) HandleBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verification_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification id"))
		return
	}
	blocks, err := h.verifier.Blocks(ctx, verificationID)
	if err != nil {
		h.fail(ctx, w, "verification block lookup failed", err)
		return
	}
	out := make([]BlockResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockResponse{
			Seq:          b.Seq,
			EntryID:      b.EntryID.String(),
			StoredHash:   b.StoredHash,
			ComputedHash: b.ComputedHash,
			IsValid:      b.IsValid,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"blocks": out})
}

// HandleHistory implements GET /v1/audit/history/{entity_type}/{entity_id}.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityType := models.EntityType(chi.URLParam(r, "entity_type"))
	entityID := chi.URLParam(r, "entity_id")
	if entityType == "" || entityID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entity type and id are required"))
		return
	}
	entries, err := h.history.History(ctx, entityType, entityID)
	if err != nil {
		h.fail(ctx, w, "audit history lookup failed", err)
		return
	}
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			Seq:          e.Seq,
			ID:           e.ID.String(),
			OccurredAt:   e.OccurredAt.UTC().Format(time.RFC3339Nano),
			Action:       string(e.Action),
			Actor:        e.Actor,
			Details:      json.RawMessage(e.Details),
			PreviousHash: e.PreviousHash,
			EntryHash:    e.EntryHash,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", middleware.GetRequestID(ctx),
	)
	httputil.WriteError(w, err)
}
