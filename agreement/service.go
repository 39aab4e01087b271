package agreement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"vendorflow/apperr"
	"vendorflow/role"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// VerificationSeeder creates the PENDING verification batch inside the
// draft-upload transaction. Implemented by the verification repository.
type VerificationSeeder interface {
	SeedPending(ctx context.Context, tx pgx.Tx, agreementID int64) error
}

// TimelineWriter appends an immutable business event inside the active transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, agreementID int64, eventType string, payload map[string]any) error
}

// OutboxWriter enqueues a transactional outbox entry.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service is the agreement lifecycle controller. It owns the status field
// and every transition on it; all workflow state round-trips through the
// store, one transaction per operation.
type Service struct {
	pool     TxBeginner
	repo     Repository
	seeder   VerificationSeeder
	timeline TimelineWriter
	outbox   OutboxWriter
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, seeder VerificationSeeder, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		seeder:   seeder,
		timeline: timeline,
		outbox:   outbox,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit creates a new agreement request in SUBMITTED status.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Agreement, error) {
	if strings.TrimSpace(params.VendorName) == "" {
		return Agreement{}, apperr.Validationf("vendor name is required")
	}
	if params.ServiceValue <= 0 {
		return Agreement{}, apperr.Validationf("service value must be positive")
	}
	if params.StartDate.IsZero() || params.EndDate.IsZero() {
		return Agreement{}, apperr.Validationf("start date and end date are required")
	}
	if !params.EndDate.After(params.StartDate) {
		return Agreement{}, apperr.Validationf("end date must be after start date")
	}
	if strings.TrimSpace(params.WorkTimelineAttachment) == "" {
		return Agreement{}, apperr.Validationf("work timeline attachment is required")
	}
	if !params.SubmittedBy.Valid() {
		return Agreement{}, apperr.Validationf("unknown submitting role %q", string(params.SubmittedBy))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.Insert(ctx, tx, params, s.now())
	if err != nil {
		return Agreement{}, err
	}

	payload := map[string]any{
		"vendor_name":   rec.VendorName,
		"service_value": rec.ServiceValue,
		"submitted_by":  rec.SubmittedBy.String(),
	}
	if err := s.appendEvents(ctx, tx, rec.ID, "AGREEMENT_SUBMITTED", "agreement.submitted", payload); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit submit: %w", err)
	}

	return rec, nil
}

// LegalReview records the one-shot legal decision on a SUBMITTED agreement.
func (s *Service) LegalReview(ctx context.Context, id int64, approved bool, notes *string) (Agreement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Agreement{}, err
	}
	if current.Status != StatusSubmitted {
		return Agreement{}, apperr.InvalidState(string(StatusSubmitted), string(current.Status))
	}

	next := StatusDeclinedByLegal
	if approved {
		next = StatusApprovedByLegal
	}

	rec, err := s.repo.UpdateLegalReview(ctx, tx, id, next, notes, s.now())
	if err != nil {
		return Agreement{}, err
	}

	payload := map[string]any{"approved": approved, "status": string(rec.Status)}
	if notes != nil {
		payload["notes"] = *notes
	}
	if err := s.appendEvents(ctx, tx, rec.ID, "LEGAL_REVIEW_RECORDED", "agreement.legal_reviewed", payload); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit legal review: %w", err)
	}

	return rec, nil
}

// UploadDraft attaches the draft and circulates it: the status change and
// the PENDING verification batch commit as one unit, so a partial batch
// can never be observed.
func (s *Service) UploadDraft(ctx context.Context, id int64, draftRef string) (Agreement, error) {
	if strings.TrimSpace(draftRef) == "" {
		return Agreement{}, apperr.Validationf("draft agreement attachment is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Agreement{}, err
	}
	if current.Status != StatusApprovedByLegal {
		return Agreement{}, apperr.InvalidState(string(StatusApprovedByLegal), string(current.Status))
	}

	rec, err := s.repo.UpdateDraft(ctx, tx, id, draftRef, s.now())
	if err != nil {
		return Agreement{}, err
	}

	if err := s.seeder.SeedPending(ctx, tx, id); err != nil {
		return Agreement{}, err
	}

	payload := map[string]any{"draft_agreement_attachment": draftRef}
	if err := s.appendEvents(ctx, tx, rec.ID, "DRAFT_UPLOADED", "agreement.draft_uploaded", payload); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit draft upload: %w", err)
	}

	return rec, nil
}

// AdvanceToFullyApproved moves a DRAFT_UPLOADED agreement to FULLY_APPROVED
// inside the caller's transaction. Invoked by the verification sequencer
// once the required-role set is covered. A no-op when already fully
// approved, so concurrent re-evaluations cannot double-apply.
func (s *Service) AdvanceToFullyApproved(ctx context.Context, tx pgx.Tx, id int64) error {
	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusFullyApproved {
		return nil
	}
	if current.Status != StatusDraftUploaded {
		return apperr.InvalidState(string(StatusDraftUploaded), string(current.Status))
	}

	rec, err := s.repo.UpdateStatus(ctx, tx, id, StatusFullyApproved, s.now())
	if err != nil {
		return err
	}

	payload := map[string]any{"status": string(rec.Status)}
	return s.appendEvents(ctx, tx, rec.ID, "FULLY_APPROVED", "agreement.fully_approved", payload)
}

// UploadSigned attaches the signed document and closes the workflow.
func (s *Service) UploadSigned(ctx context.Context, id int64, signedRef string) (Agreement, error) {
	if strings.TrimSpace(signedRef) == "" {
		return Agreement{}, apperr.Validationf("signed agreement attachment is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Agreement{}, err
	}
	if current.Status != StatusFullyApproved {
		return Agreement{}, apperr.InvalidState(string(StatusFullyApproved), string(current.Status))
	}

	rec, err := s.repo.UpdateSigned(ctx, tx, id, signedRef, s.now())
	if err != nil {
		return Agreement{}, err
	}

	payload := map[string]any{"signed_agreement_attachment": signedRef}
	if err := s.appendEvents(ctx, tx, rec.ID, "SIGNED_UPLOADED", "agreement.signed_uploaded", payload); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit signed upload: %w", err)
	}

	return rec, nil
}

// Get returns the agreement with its verification records, or nil when no
// such agreement exists.
func (s *Service) Get(ctx context.Context, id int64) (*WithVerifications, error) {
	return s.repo.GetWithVerifications(ctx, id)
}

// List returns every agreement paired with its verification records.
func (s *Service) List(ctx context.Context) ([]WithVerifications, error) {
	return s.repo.ListWithVerifications(ctx)
}

// DownloadSigned returns download metadata for the signed document. Only
// draft verifier roles may download; nil is returned when the caller is
// not allowed, the agreement is absent, or no signed document exists yet.
func (s *Service) DownloadSigned(ctx context.Context, id int64, caller role.Role) (*SignedDocument, error) {
	if !caller.IsRequiredVerifier() {
		return nil, nil
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != StatusSignedUploaded || rec.SignedAttachment == nil {
		return nil, nil
	}

	return &SignedDocument{
		FileURL:     *rec.SignedAttachment,
		FileName:    fmt.Sprintf("signed-agreement-%s-%d.pdf", rec.VendorName, rec.ID),
		ContentType: "application/pdf",
	}, nil
}

func (s *Service) appendEvents(ctx context.Context, tx pgx.Tx, agreementID int64, eventType, topic string, payload map[string]any) error {
	if s.timeline != nil {
		if err := s.timeline.Append(ctx, tx, agreementID, eventType, payload); err != nil {
			return fmt.Errorf("agreement: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		outboxPayload := map[string]any{"agreement_request_id": agreementID}
		for k, v := range payload {
			outboxPayload[k] = v
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, outboxPayload); err != nil {
			return fmt.Errorf("agreement: enqueue outbox: %w", err)
		}
	}
	return nil
}
