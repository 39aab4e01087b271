package agreement

import (
	"time"

	"vendorflow/role"
	"vendorflow/verification"
)

// Status is the lifecycle state of an agreement request. Values match the
// agreement_status enum in the database.
type Status string

const (
	StatusSubmitted       Status = "SUBMITTED"
	StatusApprovedByLegal Status = "APPROVED_BY_LEGAL"
	StatusDeclinedByLegal Status = "DECLINED_BY_LEGAL"
	StatusDraftUploaded   Status = "DRAFT_UPLOADED"
	StatusFullyApproved   Status = "FULLY_APPROVED"
	StatusSignedUploaded  Status = "SIGNED_UPLOADED"
)

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusDeclinedByLegal || s == StatusSignedUploaded
}

// Agreement mirrors the agreement_requests table. Attachment references are
// opaque strings; the engine never reads the files behind them. Nullable
// columns stay nil until their transition occurs and are never reset.
type Agreement struct {
	ID                     int64
	VendorName             string
	ServiceValue           float64
	StartDate              time.Time
	EndDate                time.Time
	WorkTimelineAttachment string
	Status                 Status
	SubmittedBy            role.Role
	SubmittedAt            time.Time
	LegalReviewNotes       *string
	LegalReviewedAt        *time.Time
	DraftAttachment        *string
	DraftUploadedAt        *time.Time
	SignedAttachment       *string
	SignedUploadedAt       *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// WithVerifications pairs an agreement with the current full set of its
// verification records.
type WithVerifications struct {
	Agreement     Agreement
	Verifications []verification.Verification
}

// SignedDocument describes a downloadable signed agreement.
type SignedDocument struct {
	FileURL     string
	FileName    string
	ContentType string
}

// SubmitParams carries the immutable business facts of a new agreement request.
type SubmitParams struct {
	VendorName             string
	ServiceValue           float64
	StartDate              time.Time
	EndDate                time.Time
	WorkTimelineAttachment string
	SubmittedBy            role.Role
}
