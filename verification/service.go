package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vendorflow/apperr"
	"vendorflow/role"
)

// Agreement status required before any verification may be recorded. Mirrors
// the agreement_status enum value.
const agreementStatusDraftUploaded = "DRAFT_UPLOADED"

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AgreementAdvancer moves the owning agreement to its fully-approved state
// once the required-role set is covered. Implemented by the agreement
// lifecycle service; must be idempotent when already fully approved.
type AgreementAdvancer interface {
	AdvanceToFullyApproved(ctx context.Context, tx pgx.Tx, agreementID int64) error
}

// TimelineWriter appends an immutable business event inside the active transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, agreementID int64, eventType string, payload map[string]any) error
}

// OutboxWriter enqueues a transactional outbox entry.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service is the verification sequencer. It records one decision per
// required role and detects full approval by role-set coverage, not by
// submission order.
type Service struct {
	pool     TxBeginner
	repo     Repository
	advancer AgreementAdvancer
	timeline TimelineWriter
	outbox   OutboxWriter
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, advancer AgreementAdvancer, timeline TimelineWriter, outbox OutboxWriter) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		advancer: advancer,
		timeline: timeline,
		outbox:   outbox,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit records one role's decision on a circulated draft. The agreement
// row is locked for the duration of the transaction, so the decision, the
// coverage re-read, and the advancement commit atomically.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Verification, error) {
	if !params.VerifierRole.Valid() {
		return Verification{}, apperr.Validationf("unknown verifier role %q", string(params.VerifierRole))
	}
	if !params.VerifierRole.IsRequiredVerifier() {
		return Verification{}, apperr.Validationf("role %s is not a draft verifier", params.VerifierRole)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Verification{}, fmt.Errorf("verification: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := s.repo.GetAgreementStatusForUpdate(ctx, tx, params.AgreementID)
	if err != nil {
		return Verification{}, err
	}
	if status != agreementStatusDraftUploaded {
		return Verification{}, apperr.InvalidState(agreementStatusDraftUploaded, status)
	}

	existing, err := s.repo.GetByRoleForUpdate(ctx, tx, params.AgreementID, params.VerifierRole)
	if err != nil {
		return Verification{}, err
	}
	if existing.Status != StatusPending {
		return Verification{}, apperr.Conflictf("role %s has already provided verification for agreement %d", params.VerifierRole, params.AgreementID)
	}

	decision := StatusDeclined
	if params.Approved {
		decision = StatusApproved
	}

	decided, err := s.repo.Decide(ctx, tx, existing.ID, decision, params.Notes, s.now())
	if err != nil {
		return Verification{}, err
	}

	if err := s.appendEvents(ctx, tx, decided); err != nil {
		return Verification{}, err
	}

	// Declines never gate: the record stays and the remaining roles may
	// still approve.
	if params.Approved {
		covered, err := s.requiredSetCovered(ctx, tx, params.AgreementID)
		if err != nil {
			return Verification{}, err
		}
		if covered {
			if err := s.advancer.AdvanceToFullyApproved(ctx, tx, params.AgreementID); err != nil {
				return Verification{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Verification{}, fmt.Errorf("verification: commit tx: %w", err)
	}

	return decided, nil
}

func (s *Service) requiredSetCovered(ctx context.Context, tx pgx.Tx, agreementID int64) (bool, error) {
	records, err := s.repo.ListByAgreement(ctx, tx, agreementID)
	if err != nil {
		return false, err
	}

	approved := make(map[role.Role]bool, len(records))
	for _, v := range records {
		if v.Status == StatusApproved {
			approved[v.VerifierRole] = true
		}
	}

	for _, required := range role.RequiredVerifiers() {
		if !approved[required] {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) appendEvents(ctx context.Context, tx pgx.Tx, v Verification) error {
	payload := map[string]any{
		"verification_id": v.ID,
		"verifier_role":   v.VerifierRole.String(),
		"status":          string(v.Status),
	}
	if v.Notes != nil {
		payload["notes"] = *v.Notes
	}

	if s.timeline != nil {
		if err := s.timeline.Append(ctx, tx, v.AgreementID, "DRAFT_VERIFIED", payload); err != nil {
			return fmt.Errorf("verification: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		outboxPayload := map[string]any{
			"agreement_request_id": v.AgreementID,
			"verifier_role":        v.VerifierRole.String(),
			"status":               string(v.Status),
		}
		if err := s.outbox.Enqueue(ctx, tx, "agreement.draft_verified", outboxPayload); err != nil {
			return fmt.Errorf("verification: enqueue outbox: %w", err)
		}
	}

	return nil
}
