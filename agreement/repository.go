package agreement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vendorflow/apperr"
	"vendorflow/verification"
)

// Repository defines the data access the lifecycle controller needs.
// Transition methods run inside the caller's transaction; read projections
// go straight through the pool.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, params SubmitParams, at time.Time) (Agreement, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Agreement, error)
	UpdateLegalReview(ctx context.Context, tx pgx.Tx, id int64, status Status, notes *string, at time.Time) (Agreement, error)
	UpdateDraft(ctx context.Context, tx pgx.Tx, id int64, draftRef string, at time.Time) (Agreement, error)
	UpdateSigned(ctx context.Context, tx pgx.Tx, id int64, signedRef string, at time.Time) (Agreement, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status Status, at time.Time) (Agreement, error)
	Get(ctx context.Context, id int64) (*Agreement, error)
	GetWithVerifications(ctx context.Context, id int64) (*WithVerifications, error)
	ListWithVerifications(ctx context.Context) ([]WithVerifications, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const agreementColumns = `id, vendor_name, service_value, start_date, end_date, work_timeline_attachment,
    status, submitted_by, submitted_at, legal_review_notes, legal_reviewed_at,
    draft_agreement_attachment, draft_uploaded_at, signed_agreement_attachment, signed_uploaded_at,
    created_at, updated_at`

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, params SubmitParams, at time.Time) (Agreement, error) {
	query := fmt.Sprintf(`
        INSERT INTO agreement_requests (vendor_name, service_value, start_date, end_date,
            work_timeline_attachment, status, submitted_by, submitted_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, 'SUBMITTED', $6::user_role, $7, $7, $7)
        RETURNING %s
    `, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query,
		params.VendorName,
		params.ServiceValue,
		params.StartDate,
		params.EndDate,
		params.WorkTimelineAttachment,
		params.SubmittedBy.String(),
		at,
	))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Agreement, error) {
	query := fmt.Sprintf(`SELECT %s FROM agreement_requests WHERE id=$1 FOR UPDATE`, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, apperr.NotFound("agreement request", id)
		}
		return Agreement{}, fmt.Errorf("agreement: fetch for update: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) UpdateLegalReview(ctx context.Context, tx pgx.Tx, id int64, status Status, notes *string, at time.Time) (Agreement, error) {
	query := fmt.Sprintf(`
        UPDATE agreement_requests
        SET status=$1::agreement_status, legal_review_notes=$2, legal_reviewed_at=$3, updated_at=$3
        WHERE id=$4
        RETURNING %s
    `, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query, string(status), notes, at, id))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: update legal review: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) UpdateDraft(ctx context.Context, tx pgx.Tx, id int64, draftRef string, at time.Time) (Agreement, error) {
	query := fmt.Sprintf(`
        UPDATE agreement_requests
        SET status='DRAFT_UPLOADED', draft_agreement_attachment=$1, draft_uploaded_at=$2, updated_at=$2
        WHERE id=$3
        RETURNING %s
    `, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query, draftRef, at, id))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: update draft: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) UpdateSigned(ctx context.Context, tx pgx.Tx, id int64, signedRef string, at time.Time) (Agreement, error) {
	query := fmt.Sprintf(`
        UPDATE agreement_requests
        SET status='SIGNED_UPLOADED', signed_agreement_attachment=$1, signed_uploaded_at=$2, updated_at=$2
        WHERE id=$3
        RETURNING %s
    `, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query, signedRef, at, id))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: update signed: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status Status, at time.Time) (Agreement, error) {
	query := fmt.Sprintf(`
        UPDATE agreement_requests
        SET status=$1::agreement_status, updated_at=$2
        WHERE id=$3
        RETURNING %s
    `, agreementColumns)

	rec, err := scanAgreement(tx.QueryRow(ctx, query, string(status), at, id))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: update status: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (*Agreement, error) {
	query := fmt.Sprintf(`SELECT %s FROM agreement_requests WHERE id=$1`, agreementColumns)

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("agreement: fetch: %w", err)
	}
	return &rec, nil
}

// GetWithVerifications returns the agreement and its verification records,
// or nil when the agreement does not exist. Absence is not an error so
// callers can distinguish it from a store failure.
func (r *PGRepository) GetWithVerifications(ctx context.Context, id int64) (*WithVerifications, error) {
	rec, err := r.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}

	children, err := r.verificationsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}

	return &WithVerifications{Agreement: *rec, Verifications: children[id]}, nil
}

func (r *PGRepository) ListWithVerifications(ctx context.Context) ([]WithVerifications, error) {
	query := fmt.Sprintf(`SELECT %s FROM agreement_requests ORDER BY created_at DESC, id DESC`, agreementColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("agreement: list: %w", err)
	}
	defer rows.Close()

	records := []Agreement{}
	ids := []int64{}
	for rows.Next() {
		rec, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: scan list row: %w", err)
		}
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate list: %w", err)
	}

	children, err := r.verificationsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]WithVerifications, 0, len(records))
	for _, rec := range records {
		result = append(result, WithVerifications{Agreement: rec, Verifications: children[rec.ID]})
	}
	return result, nil
}

func (r *PGRepository) verificationsFor(ctx context.Context, agreementIDs []int64) (map[int64][]verification.Verification, error) {
	grouped := make(map[int64][]verification.Verification, len(agreementIDs))
	for _, id := range agreementIDs {
		grouped[id] = []verification.Verification{}
	}
	if len(agreementIDs) == 0 {
		return grouped, nil
	}

	const query = `
        SELECT id, agreement_request_id, verifier_role, status, notes, verified_at, created_at, updated_at
        FROM verification_records
        WHERE agreement_request_id = ANY($1)
        ORDER BY agreement_request_id, id
    `
	rows, err := r.pool.Query(ctx, query, agreementIDs)
	if err != nil {
		return nil, fmt.Errorf("agreement: list verifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v verification.Verification
		if err := rows.Scan(&v.ID, &v.AgreementID, &v.VerifierRole, &v.Status, &v.Notes, &v.VerifiedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("agreement: scan verification row: %w", err)
		}
		grouped[v.AgreementID] = append(grouped[v.AgreementID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate verifications: %w", err)
	}

	return grouped, nil
}

func scanAgreement(row pgx.Row) (Agreement, error) {
	var rec Agreement
	err := row.Scan(
		&rec.ID,
		&rec.VendorName,
		&rec.ServiceValue,
		&rec.StartDate,
		&rec.EndDate,
		&rec.WorkTimelineAttachment,
		&rec.Status,
		&rec.SubmittedBy,
		&rec.SubmittedAt,
		&rec.LegalReviewNotes,
		&rec.LegalReviewedAt,
		&rec.DraftAttachment,
		&rec.DraftUploadedAt,
		&rec.SignedAttachment,
		&rec.SignedUploadedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}
