// Package verification implements the multi-party verification gate for
// circulated draft agreements: one decision per required role, unordered,
// with full-approval detection once every required role has approved.
package verification

import (
	"time"

	"vendorflow/role"
)

// Status is the decision state of a single verification record. Values match
// the verification_status enum in the database.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
)

// Verification mirrors the verification_records table. A record is seeded
// PENDING when the draft is uploaded and transitions exactly once to
// APPROVED or DECLINED.
type Verification struct {
	ID           int64
	AgreementID  int64
	VerifierRole role.Role
	Status       Status
	Notes        *string
	VerifiedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubmitParams carries one role's decision on a circulated draft.
type SubmitParams struct {
	AgreementID  int64
	VerifierRole role.Role
	Approved     bool
	Notes        *string
}
