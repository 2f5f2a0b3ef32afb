// Package service implements registration intake: a submitted record is
// scored by the address and name scorers, stored with the resulting status
// and routed to review when any check is inconclusive.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	addressmodels "rollguard/internal/address/models"
	auditmodels "rollguard/internal/auditchain/models"
	namemodels "rollguard/internal/name/models"
	"rollguard/internal/platform/middleware"
	reviewmodels "rollguard/internal/review/models"
	"rollguard/internal/sentinel"
	"rollguard/internal/voter/metrics"
	"rollguard/internal/voter/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/middleware/requesttime"
)

const dateLayout = "2006-01-02"

type AddressValidator interface {
	ValidateAddress(ctx context.Context, raw addressmodels.Components) (*addressmodels.Result, error)
}

type NameValidator interface {
	ValidateName(ctx context.Context, name string, role namemodels.Role) (*namemodels.Result, error)
}

// Store persists voters. FindByID returns sentinel.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, v *models.Record) error
	FindByID(ctx context.Context, voterID id.VoterID) (*models.Record, error)
}

// TaskOpener opens review tasks inside the caller's transaction.
type TaskOpener interface {
	CreateTask(ctx context.Context, req reviewmodels.CreateRequest) (*reviewmodels.Task, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev auditmodels.Event) (*auditmodels.Entry, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	addresses AddressValidator
	names     NameValidator
	store     Store
	tasks     TaskOpener
	audit     AuditRecorder
	tx        TxRunner
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func(ctx context.Context) time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func(context.Context) time.Time { return now() }
		}
	}
}

func New(addresses AddressValidator, names NameValidator, store Store, tasks TaskOpener, audit AuditRecorder, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		addresses: addresses,
		names:     names,
		store:     store,
		tasks:     tasks,
		audit:     audit,
		tx:        tx,
		logger:    slog.Default(),
		now:       requesttime.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scoredName pairs a name check with the field it came from.
type scoredName struct {
	field  string
	result *namemodels.Result
}

// SubmitRegistration scores reg and stores it. Any rejected check rejects
// the record; any flagged check leaves it pending review with a task per
// flagged item. Scoring happens before the transaction opens so geocoder
// latency never holds a database lock.
func (s *Service) SubmitRegistration(ctx context.Context, reg models.Registration) (*models.SubmitResult, error) {
	if err := validateRegistration(&reg); err != nil {
		return nil, err
	}

	addr, err := s.addresses.ValidateAddress(ctx, reg.Address)
	if err != nil {
		return nil, err
	}
	first, err := s.names.ValidateName(ctx, reg.FirstName, namemodels.RoleFirstName)
	if err != nil {
		return nil, err
	}
	last, err := s.names.ValidateName(ctx, reg.LastName, namemodels.RoleLastName)
	if err != nil {
		return nil, err
	}
	names := []scoredName{{"first_name", first}, {"last_name", last}}

	status, flags, reason := decide(addr, names)
	now := s.now(ctx).UTC().Truncate(time.Microsecond)
	record := &models.Record{
		ID:                id.VoterID(uuid.New()),
		UniqueIdentifier:  reg.UniqueIdentifier,
		FirstName:         reg.FirstName,
		LastName:          reg.LastName,
		DateOfBirth:       reg.DateOfBirth,
		Gender:            reg.Gender,
		Email:             reg.Email,
		Phone:             reg.Phone,
		Address:           reg.Address,
		NormalizedAddress: addr.Canonical,
		AddressDigest:     addr.Digest,
		AddressScore:      addr.QualityScore,
		NameScore:         min(first.Score, last.Score),
		PhoneticCode:      last.PhoneticCode,
		Region:            reg.Region,
		Status:            status,
		RejectionReason:   reason,
		ValidationFlags:   flags,
		IsActive:          true,
		RegisteredAt:      now,
		UpdatedAt:         now,
	}

	result := &models.SubmitResult{Voter: record, Status: status, Flags: flags}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		result.OpenedTasks = nil
		if err := s.store.Insert(ctx, record); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionVoterRegistered,
			EntityType: auditmodels.EntityVoter,
			EntityID:   record.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details: map[string]any{
				"status":         record.Status,
				"address_digest": record.AddressDigest,
				"address_score":  record.AddressScore,
				"name_score":     record.NameScore,
				"region":         record.Region,
			},
		})
		if err != nil {
			return err
		}
		if status != models.StatusPendingReview {
			return nil
		}
		opened, err := s.openTasks(ctx, record.ID, addr, names)
		result.OpenedTasks = opened
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to register voter")
	}

	if s.metrics != nil {
		s.metrics.IncRegistration(string(status))
		s.metrics.AddTasks(len(result.OpenedTasks))
	}
	s.logger.InfoContext(ctx, "registration submitted",
		"voter_id", record.ID.String(),
		"status", status,
		"tasks_opened", len(result.OpenedTasks),
	)
	return result, nil
}

// GetVoter returns one voter record.
func (s *Service) GetVoter(ctx context.Context, voterID id.VoterID) (*models.Record, error) {
	v, err := s.store.FindByID(ctx, voterID)
	if err != nil {
		return nil, translate(err, "voter not found")
	}
	return v, nil
}

func (s *Service) openTasks(ctx context.Context, voterID id.VoterID, addr *addressmodels.Result, names []scoredName) ([]id.TaskID, error) {
	var opened []id.TaskID
	open := func(req reviewmodels.CreateRequest) error {
		req.VoterID = &voterID
		task, err := s.tasks.CreateTask(ctx, req)
		if err != nil {
			return err
		}
		opened = append(opened, task.ID)
		return nil
	}

	for _, n := range names {
		if n.result.ValidationResult != namemodels.ResultFlagged {
			continue
		}
		err := open(reviewmodels.CreateRequest{
			Type: reviewmodels.TypeNameVerification,
			Evidence: reviewmodels.ForNameVerification(reviewmodels.NameVerificationEvidence{
				Field:        n.field,
				Name:         n.result.Name,
				Score:        n.result.Score,
				Flags:        n.result.Flags,
				PhoneticCode: n.result.PhoneticCode,
			}),
		})
		if err != nil {
			return opened, err
		}
	}

	if addr.ValidationResult == addressmodels.ResultFlagged {
		err := open(reviewmodels.CreateRequest{
			Type: reviewmodels.TypeDocumentCheck,
			Evidence: reviewmodels.Evidence{
				Type: reviewmodels.TypeDocumentCheck,
				DocumentCheck: &reviewmodels.DocumentCheckEvidence{
					DocumentType: "address_proof",
					DocumentRef:  addr.Digest,
					Issue:        strings.Join(addr.Flags, ","),
				},
			},
		})
		if err != nil {
			return opened, err
		}
	}
	return opened, nil
}

// decide combines the check outcomes. Name flags are prefixed with their
// field so the stored set stays unambiguous.
func decide(addr *addressmodels.Result, names []scoredName) (models.Status, []string, string) {
	flags := append([]string{}, addr.Flags...)
	rejected := addr.ValidationResult == addressmodels.ResultRejected
	flagged := addr.ValidationResult == addressmodels.ResultFlagged
	var reasons []string
	if rejected {
		reasons = append(reasons, "address quality below threshold")
	}

	for _, n := range names {
		for _, f := range n.result.Flags {
			flags = append(flags, n.field+"."+f)
		}
		switch n.result.ValidationResult {
		case namemodels.ResultRejected:
			rejected = true
			reasons = append(reasons, n.field+" failed validation")
		case namemodels.ResultFlagged:
			flagged = true
		}
	}

	switch {
	case rejected:
		return models.StatusRejected, flags, strings.Join(reasons, "; ")
	case flagged:
		return models.StatusPendingReview, flags, ""
	default:
		return models.StatusActive, flags, ""
	}
}

func validateRegistration(reg *models.Registration) error {
	reg.UniqueIdentifier = strings.TrimSpace(reg.UniqueIdentifier)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.DateOfBirth = strings.TrimSpace(reg.DateOfBirth)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Phone = strings.TrimSpace(reg.Phone)

	switch {
	case reg.UniqueIdentifier == "":
		return dErrors.New(dErrors.CodeInvalidInput, "unique identifier is required")
	case reg.FirstName == "" || reg.LastName == "":
		return dErrors.New(dErrors.CodeInvalidInput, "first and last name are required")
	}
	if _, err := time.Parse(dateLayout, reg.DateOfBirth); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "date of birth must be YYYY-MM-DD")
	}
	return nil
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
