package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"vendorflow/agreement"
	"vendorflow/role"
	"vendorflow/verification"
)

type agreementResponse struct {
	ID                        int64      `json:"id"`
	VendorName                string     `json:"vendor_name"`
	ServiceValue              float64    `json:"service_value"`
	StartDate                 time.Time  `json:"start_date"`
	EndDate                   time.Time  `json:"end_date"`
	WorkTimelineAttachment    string     `json:"work_timeline_attachment"`
	Status                    string     `json:"status"`
	SubmittedBy               string     `json:"submitted_by"`
	SubmittedAt               time.Time  `json:"submitted_at"`
	LegalReviewNotes          *string    `json:"legal_review_notes"`
	LegalReviewedAt           *time.Time `json:"legal_reviewed_at"`
	DraftAgreementAttachment  *string    `json:"draft_agreement_attachment"`
	DraftUploadedAt           *time.Time `json:"draft_uploaded_at"`
	SignedAgreementAttachment *string    `json:"signed_agreement_attachment"`
	SignedUploadedAt          *time.Time `json:"signed_uploaded_at"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

type verificationResponse struct {
	ID                 int64      `json:"id"`
	AgreementRequestID int64      `json:"agreement_request_id"`
	VerifierRole       string     `json:"verifier_role"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes"`
	VerifiedAt         *time.Time `json:"verified_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type agreementDetailResponse struct {
	Agreement     agreementResponse      `json:"agreement"`
	Verifications []verificationResponse `json:"verifications"`
}

type signedDocumentResponse struct {
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func toAgreementResponse(rec agreement.Agreement) agreementResponse {
	return agreementResponse{
		ID:                        rec.ID,
		VendorName:                rec.VendorName,
		ServiceValue:              rec.ServiceValue,
		StartDate:                 rec.StartDate,
		EndDate:                   rec.EndDate,
		WorkTimelineAttachment:    rec.WorkTimelineAttachment,
		Status:                    string(rec.Status),
		SubmittedBy:               rec.SubmittedBy.String(),
		SubmittedAt:               rec.SubmittedAt,
		LegalReviewNotes:          rec.LegalReviewNotes,
		LegalReviewedAt:           rec.LegalReviewedAt,
		DraftAgreementAttachment:  rec.DraftAttachment,
		DraftUploadedAt:           rec.DraftUploadedAt,
		SignedAgreementAttachment: rec.SignedAttachment,
		SignedUploadedAt:          rec.SignedUploadedAt,
		CreatedAt:                 rec.CreatedAt,
		UpdatedAt:                 rec.UpdatedAt,
	}
}

func toVerificationResponse(v verification.Verification) verificationResponse {
	return verificationResponse{
		ID:                 v.ID,
		AgreementRequestID: v.AgreementID,
		VerifierRole:       v.VerifierRole.String(),
		Status:             string(v.Status),
		Notes:              v.Notes,
		VerifiedAt:         v.VerifiedAt,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

func toDetailResponse(item agreement.WithVerifications) agreementDetailResponse {
	verifications := make([]verificationResponse, 0, len(item.Verifications))
	for _, v := range item.Verifications {
		verifications = append(verifications, toVerificationResponse(v))
	}
	return agreementDetailResponse{
		Agreement:     toAgreementResponse(item.Agreement),
		Verifications: verifications,
	}
}

type submitAgreementRequest struct {
	VendorName             string    `json:"vendor_name" validate:"required"`
	ServiceValue           float64   `json:"service_value" validate:"required,gt=0"`
	StartDate              time.Time `json:"start_date" validate:"required"`
	EndDate                time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	WorkTimelineAttachment string    `json:"work_timeline_attachment" validate:"required"`
	SubmittedBy            string    `json:"submitted_by" validate:"required"`
}

type legalReviewRequest struct {
	Approved *bool   `json:"approved" validate:"required"`
	Notes    *string `json:"notes"`
}

type uploadDraftRequest struct {
	DraftAgreementAttachment string `json:"draft_agreement_attachment" validate:"required"`
}

type submitVerificationRequest struct {
	VerifierRole string  `json:"verifier_role" validate:"required"`
	Approved     *bool   `json:"approved" validate:"required"`
	Notes        *string `json:"notes"`
}

type uploadSignedRequest struct {
	SignedAgreementAttachment string `json:"signed_agreement_attachment" validate:"required"`
}

func (s *Server) handleAgreements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListAgreements(w, r)
	case http.MethodPost:
		s.handleSubmitAgreement(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleAgreementSubtree routes /api/agreements/{id}[/{action}].
func (s *Server) handleAgreementSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/agreements/"), "/")
	parts := strings.Split(rest, "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid agreement id"})
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetAgreement(w, r, id)
	case len(parts) == 2:
		s.handleAgreementAction(w, r, id, parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAgreementAction(w http.ResponseWriter, r *http.Request, id int64, action string) {
	switch action {
	case "legal-review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleLegalReview(w, r, id)
	case "draft":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleUploadDraft(w, r, id)
	case "verifications":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSubmitVerification(w, r, id)
	case "signed":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleUploadSigned(w, r, id)
	case "signed-document":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleDownloadSigned(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSubmitAgreement(w http.ResponseWriter, r *http.Request) {
	var req submitAgreementRequest
	if !s.decode(w, r, &req) {
		return
	}

	submittedBy, err := role.Parse(req.SubmittedBy)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rec, err := s.agreements.Submit(r.Context(), agreement.SubmitParams{
		VendorName:             req.VendorName,
		ServiceValue:           req.ServiceValue,
		StartDate:              req.StartDate,
		EndDate:                req.EndDate,
		WorkTimelineAttachment: req.WorkTimelineAttachment,
		SubmittedBy:            submittedBy,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	workflowTransitionsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.writeJSON(w, http.StatusCreated, toAgreementResponse(rec))
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	items, err := s.agreements.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	payload := struct {
		Items []agreementDetailResponse `json:"items"`
		Total int                       `json:"total"`
	}{Items: make([]agreementDetailResponse, 0, len(items)), Total: len(items)}
	for _, item := range items {
		payload.Items = append(payload.Items, toDetailResponse(item))
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request, id int64) {
	item, err := s.agreements.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if item == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "agreement request not found"})
		return
	}

	s.writeJSON(w, http.StatusOK, toDetailResponse(*item))
}

func (s *Server) handleLegalReview(w http.ResponseWriter, r *http.Request, id int64) {
	var req legalReviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.agreements.LegalReview(r.Context(), id, *req.Approved, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	workflowTransitionsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.writeJSON(w, http.StatusOK, toAgreementResponse(rec))
}

func (s *Server) handleUploadDraft(w http.ResponseWriter, r *http.Request, id int64) {
	var req uploadDraftRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.agreements.UploadDraft(r.Context(), id, req.DraftAgreementAttachment)
	if err != nil {
		s.writeError(w, err)
		return
	}

	workflowTransitionsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.writeJSON(w, http.StatusOK, toAgreementResponse(rec))
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request, id int64) {
	var req submitVerificationRequest
	if !s.decode(w, r, &req) {
		return
	}

	verifier, err := role.Parse(req.VerifierRole)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rec, err := s.verifications.Submit(r.Context(), verification.SubmitParams{
		AgreementID:  id,
		VerifierRole: verifier,
		Approved:     *req.Approved,
		Notes:        req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	verificationsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.writeJSON(w, http.StatusCreated, toVerificationResponse(rec))
}

func (s *Server) handleUploadSigned(w http.ResponseWriter, r *http.Request, id int64) {
	var req uploadSignedRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.agreements.UploadSigned(r.Context(), id, req.SignedAgreementAttachment)
	if err != nil {
		s.writeError(w, err)
		return
	}

	workflowTransitionsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.writeJSON(w, http.StatusOK, toAgreementResponse(rec))
}

func (s *Server) handleDownloadSigned(w http.ResponseWriter, r *http.Request, id int64) {
	caller, err := role.Parse(r.URL.Query().Get("role"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	doc, err := s.agreements.DownloadSigned(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if doc == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "signed agreement not available"})
		return
	}

	s.writeJSON(w, http.StatusOK, signedDocumentResponse{
		FileURL:     doc.FileURL,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
	})
}
