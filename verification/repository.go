package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vendorflow/apperr"
	"vendorflow/role"
)

// Repository defines the data access the sequencer needs. All mutating
// methods run inside the caller's transaction.
type Repository interface {
	SeedPending(ctx context.Context, tx pgx.Tx, agreementID int64) error
	GetAgreementStatusForUpdate(ctx context.Context, tx pgx.Tx, agreementID int64) (string, error)
	GetByRoleForUpdate(ctx context.Context, tx pgx.Tx, agreementID int64, verifier role.Role) (Verification, error)
	Decide(ctx context.Context, tx pgx.Tx, id int64, status Status, notes *string, decidedAt time.Time) (Verification, error)
	ListByAgreement(ctx context.Context, tx pgx.Tx, agreementID int64) ([]Verification, error)
}

type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

const verificationColumns = `id, agreement_request_id, verifier_role, status, notes, verified_at, created_at, updated_at`

// SeedPending inserts one PENDING record per required verifier role as a
// single statement, so a partial batch cannot be committed.
func (r *PGRepository) SeedPending(ctx context.Context, tx pgx.Tx, agreementID int64) error {
	required := role.RequiredVerifiers()
	names := make([]string, len(required))
	for i, v := range required {
		names[i] = v.String()
	}

	const query = `
        INSERT INTO verification_records (agreement_request_id, verifier_role, status)
        SELECT $1, unnest($2::user_role[]), 'PENDING'
    `
	tag, err := tx.Exec(ctx, query, agreementID, names)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflictf("verification records already seeded for agreement %d", agreementID)
		}
		return fmt.Errorf("verification: seed pending: %w", err)
	}
	if got := tag.RowsAffected(); got != int64(len(required)) {
		return fmt.Errorf("verification: seeded %d of %d records for agreement %d", got, len(required), agreementID)
	}

	return nil
}

// GetAgreementStatusForUpdate locks the owning agreement row and returns its
// current status, serializing concurrent submissions for that agreement.
func (r *PGRepository) GetAgreementStatusForUpdate(ctx context.Context, tx pgx.Tx, agreementID int64) (string, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM agreement_requests WHERE id=$1 FOR UPDATE`, agreementID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("agreement request", agreementID)
		}
		return "", fmt.Errorf("verification: fetch agreement status: %w", err)
	}
	return status, nil
}

func (r *PGRepository) GetByRoleForUpdate(ctx context.Context, tx pgx.Tx, agreementID int64, verifier role.Role) (Verification, error) {
	query := fmt.Sprintf(`SELECT %s FROM verification_records WHERE agreement_request_id=$1 AND verifier_role=$2::user_role FOR UPDATE`, verificationColumns)

	v, err := scanVerification(tx.QueryRow(ctx, query, agreementID, verifier.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The draft-upload transaction seeds every required role, so a
			// missing row means the store is inconsistent.
			return Verification{}, fmt.Errorf("verification: no record for agreement %d role %s", agreementID, verifier)
		}
		return Verification{}, fmt.Errorf("verification: fetch record: %w", err)
	}
	return v, nil
}

func (r *PGRepository) Decide(ctx context.Context, tx pgx.Tx, id int64, status Status, notes *string, decidedAt time.Time) (Verification, error) {
	query := fmt.Sprintf(`
        UPDATE verification_records
        SET status=$1::verification_status, notes=$2, verified_at=$3, updated_at=$3
        WHERE id=$4
        RETURNING %s
    `, verificationColumns)

	v, err := scanVerification(tx.QueryRow(ctx, query, string(status), notes, decidedAt, id))
	if err != nil {
		return Verification{}, fmt.Errorf("verification: record decision: %w", err)
	}
	return v, nil
}

func (r *PGRepository) ListByAgreement(ctx context.Context, tx pgx.Tx, agreementID int64) ([]Verification, error) {
	query := fmt.Sprintf(`SELECT %s FROM verification_records WHERE agreement_request_id=$1 ORDER BY id`, verificationColumns)

	rows, err := tx.Query(ctx, query, agreementID)
	if err != nil {
		return nil, fmt.Errorf("verification: list records: %w", err)
	}
	defer rows.Close()

	list := []Verification{}
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("verification: scan record: %w", err)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verification: iterate records: %w", err)
	}

	return list, nil
}

func scanVerification(row pgx.Row) (Verification, error) {
	var v Verification
	err := row.Scan(
		&v.ID,
		&v.AgreementID,
		&v.VerifierRole,
		&v.Status,
		&v.Notes,
		&v.VerifiedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	return v, err
}
