package handler

import (
	"time"

	"rollguard/internal/review/models"
	id "rollguard/pkg/domain"
)

type CreateRequest struct {
	Type           string             `json:"type" validate:"required,oneof=address_cluster name_verification document_check biometric_verification duplicate_review"`
	VoterID        *id.VoterID        `json:"voter_id"`
	ClusterFlagID  *id.ClusterFlagID  `json:"cluster_flag_id"`
	RevisionFlagID *id.RevisionFlagID `json:"revision_flag_id"`
	Priority       string             `json:"priority" validate:"omitempty,oneof=normal high critical"`
	Evidence       models.Evidence    `json:"evidence"`
}

func (r *CreateRequest) toModel() models.CreateRequest {
	return models.CreateRequest{
		Type:           models.TaskType(r.Type),
		VoterID:        r.VoterID,
		ClusterFlagID:  r.ClusterFlagID,
		RevisionFlagID: r.RevisionFlagID,
		Evidence:       r.Evidence,
		Priority:       models.Priority(r.Priority),
	}
}

type AssignRequest struct {
	AssigneeID   string `json:"assignee_id" validate:"notblank,max=128"`
	AssigneeRole string `json:"assignee_role" validate:"max=64"`
}

type ResolveRequest struct {
	Action string `json:"action" validate:"required,oneof=approved rejected escalated needs_more_info"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID               id.TaskID          `json:"id"`
	Type             models.TaskType    `json:"type"`
	VoterID          *id.VoterID        `json:"voter_id,omitempty"`
	ClusterFlagID    *id.ClusterFlagID  `json:"cluster_flag_id,omitempty"`
	RevisionFlagID   *id.RevisionFlagID `json:"revision_flag_id,omitempty"`
	Evidence         models.Evidence    `json:"evidence"`
	Status           models.Status      `json:"status"`
	Priority         models.Priority    `json:"priority"`
	AssigneeID       string             `json:"assignee_id,omitempty"`
	AssigneeRole     string             `json:"assignee_role,omitempty"`
	ResolutionAction models.Action      `json:"resolution_action,omitempty"`
	ResolutionNotes  string             `json:"resolution_notes,omitempty"`
	CreatedBy        string             `json:"created_by"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
}

func toResponse(t *models.Task) *TaskResponse {
	return &TaskResponse{
		ID:               t.ID,
		Type:             t.Type,
		VoterID:          t.VoterID,
		ClusterFlagID:    t.ClusterFlagID,
		RevisionFlagID:   t.RevisionFlagID,
		Evidence:         t.Evidence,
		Status:           t.Status,
		Priority:         t.Priority,
		AssigneeID:       t.AssigneeID,
		AssigneeRole:     t.AssigneeRole,
		ResolutionAction: t.ResolutionAction,
		ResolutionNotes:  t.ResolutionNotes,
		CreatedBy:        t.CreatedBy,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ResolvedAt:       t.ResolvedAt,
	}
}
