// Package handler exposes the review task queue over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rollguard/internal/platform/middleware"
	"rollguard/internal/review/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service manages review tasks.
type Service interface {
	CreateTask(ctx context.Context, req models.CreateRequest) (*models.Task, error)
	AssignTask(ctx context.Context, taskID id.TaskID, assigneeID, assigneeRole string) (*models.Task, error)
	ResolveTask(ctx context.Context, taskID id.TaskID, action models.Action, notes string) (*models.Task, error)
	GetTask(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	ListTasks(ctx context.Context, f models.Filter) ([]*models.Task, error)
}

type Handler struct {
	tasks  Service
	logger *slog.Logger
}

func New(tasks Service, logger *slog.Logger) *Handler {
	return &Handler{tasks: tasks, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/tasks", h.HandleCreate)
	r.Get("/v1/tasks", h.HandleList)
	r.Get("/v1/tasks/{task_id}", h.HandleGet)
	r.Post("/v1/tasks/{task_id}/assign", h.HandleAssign)
	r.Post("/v1/tasks/{task_id}/resolve", h.HandleResolve)
}

// HandleCreate implements POST /v1/tasks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	task, err := h.tasks.CreateTask(ctx, req.toModel())
	if err != nil {
		h.fail(ctx, w, "task creation failed", err)
		return
	}
	h.logger.InfoContext(ctx, "review task created",
		"request_id", requestID,
		"task_id", task.ID.String(),
		"task_type", string(task.Type),
	)
	httputil.WriteJSON(w, http.StatusCreated, toResponse(task))
}

// HandleAssign implements POST /v1/tasks/{task_id}/assign.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	task, err := h.tasks.AssignTask(ctx, taskID, req.AssigneeID, req.AssigneeRole)
	if err != nil {
		h.fail(ctx, w, "task assignment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(task))
}

// HandleResolve implements POST /v1/tasks/{task_id}/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	task, err := h.tasks.ResolveTask(ctx, taskID, models.Action(req.Action), req.Notes)
	if err != nil {
		h.fail(ctx, w, "task resolution failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(task))
}

// HandleGet implements GET /v1/tasks/{task_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.GetTask(ctx, taskID)
	if err != nil {
		h.fail(ctx, w, "task lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(task))
}

// HandleList implements GET /v1/tasks?status=&type=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := models.Filter{Status: models.Status(q.Get("status")), Type: models.TaskType(q.Get("type"))}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	tasks, err := h.tasks.ListTasks(ctx, f)
	if err != nil {
		h.fail(ctx, w, "task listing failed", err)
		return
	}
	out := make([]*TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (id.TaskID, bool) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "task_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid task id"))
		return id.TaskID{}, false
	}
	return taskID, true
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
