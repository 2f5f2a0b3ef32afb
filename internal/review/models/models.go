package models

import (
	"time"

	id "rollguard/pkg/domain"
)

// TaskType names the kind of finding a task reviews.
type TaskType string

const (
	TypeAddressCluster        TaskType = "address_cluster"
	TypeNameVerification      TaskType = "name_verification"
	TypeDocumentCheck         TaskType = "document_check"
	TypeBiometricVerification TaskType = "biometric_verification"
	TypeDuplicateReview       TaskType = "duplicate_review"
)

func (t TaskType) IsValid() bool {
	switch t {
	case TypeAddressCluster, TypeNameVerification, TypeDocumentCheck, TypeBiometricVerification, TypeDuplicateReview:
		return true
	}
	return false
}

// Status is the task lifecycle state.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInProgress    Status = "in_progress"
	StatusResolved      Status = "resolved"
	StatusRejected      Status = "rejected"
	StatusEscalated     Status = "escalated"
	StatusNeedsMoreInfo Status = "needs_more_info"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusRejected, StatusEscalated, StatusNeedsMoreInfo:
		return true
	}
	return false
}

// IsTerminal reports whether the task can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// CanAssign reports whether a task in s may be (re)assigned. Reassigning an
// in-progress task hands it to another reviewer.
func (s Status) CanAssign() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusEscalated, StatusNeedsMoreInfo:
		return true
	}
	return false
}

// CanResolve reports whether a task in s may be resolved.
func (s Status) CanResolve() bool {
	return s == StatusInProgress
}

// Action is a reviewer's decision.
type Action string

const (
	ActionApproved      Action = "approved"
	ActionRejected      Action = "rejected"
	ActionEscalated     Action = "escalated"
	ActionNeedsMoreInfo Action = "needs_more_info"
)

// ResultingStatus maps an action onto the task status it produces. ok is
// false for unknown actions.
func (a Action) ResultingStatus() (Status, bool) {
	switch a {
	case ActionApproved:
		return StatusResolved, true
	case ActionRejected:
		return StatusRejected, true
	case ActionEscalated:
		return StatusEscalated, true
	case ActionNeedsMoreInfo:
		return StatusNeedsMoreInfo, true
	}
	return "", false
}

// Priority orders the review queue.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Task is a unit of human review.
type Task struct {
	ID               id.TaskID
	Type             TaskType
	VoterID          *id.VoterID
	ClusterFlagID    *id.ClusterFlagID
	RevisionFlagID   *id.RevisionFlagID
	Evidence         Evidence
	Status           Status
	Priority         Priority
	AssigneeID       string
	AssigneeRole     string
	ResolutionAction Action
	ResolutionNotes  string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ResolvedAt       *time.Time
}

// CreateRequest opens a task.
type CreateRequest struct {
	Type           TaskType
	VoterID        *id.VoterID
	ClusterFlagID  *id.ClusterFlagID
	RevisionFlagID *id.RevisionFlagID
	Evidence       Evidence
	Priority       Priority
}

// Filter narrows ListTasks. Zero values match everything.
type Filter struct {
	Status Status
	Type   TaskType
	Limit  int
}
