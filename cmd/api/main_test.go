package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vendorflow/agreement"
	"vendorflow/apperr"
	"vendorflow/role"
	"vendorflow/verification"
)

type stubAgreements struct {
	submitFn         func(ctx context.Context, params agreement.SubmitParams) (agreement.Agreement, error)
	legalReviewFn    func(ctx context.Context, id int64, approved bool, notes *string) (agreement.Agreement, error)
	uploadDraftFn    func(ctx context.Context, id int64, draftRef string) (agreement.Agreement, error)
	uploadSignedFn   func(ctx context.Context, id int64, signedRef string) (agreement.Agreement, error)
	getFn            func(ctx context.Context, id int64) (*agreement.WithVerifications, error)
	listFn           func(ctx context.Context) ([]agreement.WithVerifications, error)
	downloadSignedFn func(ctx context.Context, id int64, caller role.Role) (*agreement.SignedDocument, error)
}

func (s *stubAgreements) Submit(ctx context.Context, params agreement.SubmitParams) (agreement.Agreement, error) {
	return s.submitFn(ctx, params)
}

func (s *stubAgreements) LegalReview(ctx context.Context, id int64, approved bool, notes *string) (agreement.Agreement, error) {
	return s.legalReviewFn(ctx, id, approved, notes)
}

func (s *stubAgreements) UploadDraft(ctx context.Context, id int64, draftRef string) (agreement.Agreement, error) {
	return s.uploadDraftFn(ctx, id, draftRef)
}

func (s *stubAgreements) UploadSigned(ctx context.Context, id int64, signedRef string) (agreement.Agreement, error) {
	return s.uploadSignedFn(ctx, id, signedRef)
}

func (s *stubAgreements) Get(ctx context.Context, id int64) (*agreement.WithVerifications, error) {
	return s.getFn(ctx, id)
}

func (s *stubAgreements) List(ctx context.Context) ([]agreement.WithVerifications, error) {
	return s.listFn(ctx)
}

func (s *stubAgreements) DownloadSigned(ctx context.Context, id int64, caller role.Role) (*agreement.SignedDocument, error) {
	return s.downloadSignedFn(ctx, id, caller)
}

type stubVerifications struct {
	submitFn func(ctx context.Context, params verification.SubmitParams) (verification.Verification, error)
}

func (s *stubVerifications) Submit(ctx context.Context, params verification.SubmitParams) (verification.Verification, error) {
	return s.submitFn(ctx, params)
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error {
	return s.err
}

func doRequest(t *testing.T, ag AgreementService, vs VerificationService, db Pinger, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	NewServer(ag, vs, db, nil).Routes().ServeHTTP(rr, req)
	return rr
}

func sampleAgreement(status agreement.Status) agreement.Agreement {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return agreement.Agreement{
		ID:                     1,
		VendorName:             "Acme",
		ServiceValue:           1000,
		StartDate:              at,
		EndDate:                at.AddDate(0, 6, 0),
		WorkTimelineAttachment: "t.pdf",
		Status:                 status,
		SubmittedBy:            role.Procurement,
		SubmittedAt:            at,
		CreatedAt:              at,
		UpdatedAt:              at,
	}
}

func TestSubmitAgreement(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		ag := &stubAgreements{submitFn: func(_ context.Context, params agreement.SubmitParams) (agreement.Agreement, error) {
			if params.SubmittedBy != role.Procurement {
				t.Errorf("expected parsed role, got %s", params.SubmittedBy)
			}
			return sampleAgreement(agreement.StatusSubmitted), nil
		}}

		body := `{"vendor_name":"Acme","service_value":1000,"start_date":"2024-03-01T12:00:00Z","end_date":"2024-09-01T12:00:00Z","work_timeline_attachment":"t.pdf","submitted_by":"PIC_PROCUREMENT"}`
		rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements", body)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp agreementResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != "SUBMITTED" || resp.VendorName != "Acme" {
			t.Errorf("unexpected response: %+v", resp)
		}
		if resp.LegalReviewNotes != nil || resp.SignedAgreementAttachment != nil {
			t.Errorf("expected workflow-only fields null: %+v", resp)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodPost, "/api/agreements", "{not json")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodPost, "/api/agreements", `{"vendor_name":"Acme"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		body := `{"vendor_name":"Acme","service_value":1000,"start_date":"2024-03-01T12:00:00Z","end_date":"2024-09-01T12:00:00Z","work_timeline_attachment":"t.pdf","submitted_by":"PIC_FINANCE"}`
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodPost, "/api/agreements", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("service validation error", func(t *testing.T) {
		ag := &stubAgreements{submitFn: func(context.Context, agreement.SubmitParams) (agreement.Agreement, error) {
			return agreement.Agreement{}, apperr.Validationf("end date must be after start date")
		}}

		body := `{"vendor_name":"Acme","service_value":1000,"start_date":"2024-03-01T12:00:00Z","end_date":"2024-09-01T12:00:00Z","work_timeline_attachment":"t.pdf","submitted_by":"PIC_PROCUREMENT"}`
		rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestListAgreements(t *testing.T) {
	ag := &stubAgreements{listFn: func(context.Context) ([]agreement.WithVerifications, error) {
		return []agreement.WithVerifications{
			{Agreement: sampleAgreement(agreement.StatusDraftUploaded), Verifications: []verification.Verification{
				{ID: 1, AgreementID: 1, VerifierRole: role.Procurement, Status: verification.StatusPending},
			}},
		}, nil
	}}

	rr := doRequest(t, ag, nil, nil, http.MethodGet, "/api/agreements", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Items []agreementDetailResponse `json:"items"`
		Total int                       `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("unexpected list payload: %+v", resp)
	}
	if len(resp.Items[0].Verifications) != 1 || resp.Items[0].Verifications[0].VerifierRole != "PIC_PROCUREMENT" {
		t.Errorf("unexpected verifications: %+v", resp.Items[0].Verifications)
	}
}

func TestGetAgreement(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		ag := &stubAgreements{getFn: func(_ context.Context, id int64) (*agreement.WithVerifications, error) {
			if id != 42 {
				t.Errorf("expected id 42, got %d", id)
			}
			return &agreement.WithVerifications{Agreement: sampleAgreement(agreement.StatusSubmitted)}, nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodGet, "/api/agreements/42", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("absent", func(t *testing.T) {
		ag := &stubAgreements{getFn: func(context.Context, int64) (*agreement.WithVerifications, error) {
			return nil, nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodGet, "/api/agreements/42", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodGet, "/api/agreements/abc", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestLegalReview(t *testing.T) {
	t.Run("recorded", func(t *testing.T) {
		ag := &stubAgreements{legalReviewFn: func(_ context.Context, id int64, approved bool, notes *string) (agreement.Agreement, error) {
			if !approved || notes == nil || *notes != "ok" {
				t.Errorf("unexpected args: approved=%v notes=%v", approved, notes)
			}
			return sampleAgreement(agreement.StatusApprovedByLegal), nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements/1/legal-review", `{"approved":true,"notes":"ok"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("missing approved flag", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodPost, "/api/agreements/1/legal-review", `{"notes":"ok"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("already reviewed", func(t *testing.T) {
		ag := &stubAgreements{legalReviewFn: func(context.Context, int64, bool, *string) (agreement.Agreement, error) {
			return agreement.Agreement{}, apperr.InvalidState("SUBMITTED", "APPROVED_BY_LEGAL")
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements/1/legal-review", `{"approved":true}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
	})
}

func TestUploadDraft(t *testing.T) {
	ag := &stubAgreements{uploadDraftFn: func(_ context.Context, _ int64, draftRef string) (agreement.Agreement, error) {
		if draftRef != "d.pdf" {
			t.Errorf("expected draft ref, got %s", draftRef)
		}
		return sampleAgreement(agreement.StatusDraftUploaded), nil
	}}

	rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements/1/draft", `{"draft_agreement_attachment":"d.pdf"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitVerification(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		vs := &stubVerifications{submitFn: func(_ context.Context, params verification.SubmitParams) (verification.Verification, error) {
			if params.AgreementID != 1 || params.VerifierRole != role.Tax || !params.Approved {
				t.Errorf("unexpected params: %+v", params)
			}
			return verification.Verification{ID: 2, AgreementID: 1, VerifierRole: role.Tax, Status: verification.StatusApproved}, nil
		}}

		rr := doRequest(t, nil, vs, nil, http.MethodPost, "/api/agreements/1/verifications", `{"verifier_role":"PIC_TAX","approved":true}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp verificationResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.AgreementRequestID != 1 || resp.Status != "APPROVED" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("duplicate decision", func(t *testing.T) {
		vs := &stubVerifications{submitFn: func(context.Context, verification.SubmitParams) (verification.Verification, error) {
			return verification.Verification{}, apperr.Conflictf("role PIC_TAX has already provided verification for agreement 1")
		}}

		rr := doRequest(t, nil, vs, nil, http.MethodPost, "/api/agreements/1/verifications", `{"verifier_role":"PIC_TAX","approved":false}`)
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rr.Code)
		}
	})

	t.Run("draft not circulated", func(t *testing.T) {
		vs := &stubVerifications{submitFn: func(context.Context, verification.SubmitParams) (verification.Verification, error) {
			return verification.Verification{}, apperr.InvalidState("DRAFT_UPLOADED", "SUBMITTED")
		}}

		rr := doRequest(t, nil, vs, nil, http.MethodPost, "/api/agreements/1/verifications", `{"verifier_role":"PIC_TAX","approved":true}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
	})
}

func TestUploadSigned(t *testing.T) {
	t.Run("recorded", func(t *testing.T) {
		ag := &stubAgreements{uploadSignedFn: func(context.Context, int64, string) (agreement.Agreement, error) {
			return sampleAgreement(agreement.StatusSignedUploaded), nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodPost, "/api/agreements/1/signed", `{"signed_agreement_attachment":"s.pdf"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodGet, "/api/agreements/1/signed", "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rr.Code)
		}
	})
}

func TestDownloadSigned(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ag := &stubAgreements{downloadSignedFn: func(_ context.Context, _ int64, caller role.Role) (*agreement.SignedDocument, error) {
			if caller != role.OfficeManager {
				t.Errorf("expected office manager, got %s", caller)
			}
			return &agreement.SignedDocument{FileURL: "s3://b/s.pdf", FileName: "signed-agreement-Acme-1.pdf", ContentType: "application/pdf"}, nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodGet, "/api/agreements/1/signed-document?role=PIC_OFFICE_MANAGER", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp signedDocumentResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.FileName != "signed-agreement-Acme-1.pdf" || resp.ContentType != "application/pdf" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("missing role", func(t *testing.T) {
		rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodGet, "/api/agreements/1/signed-document", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("not available", func(t *testing.T) {
		ag := &stubAgreements{downloadSignedFn: func(context.Context, int64, role.Role) (*agreement.SignedDocument, error) {
			return nil, nil
		}}

		rr := doRequest(t, ag, nil, nil, http.MethodGet, "/api/agreements/1/signed-document?role=PIC_TAX", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})
}

func TestUnknownAction(t *testing.T) {
	rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodPost, "/api/agreements/1/escalate", "{}")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestMethodNotAllowedOnCollection(t *testing.T) {
	rr := doRequest(t, &stubAgreements{}, nil, nil, http.MethodDelete, "/api/agreements", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rr := doRequest(t, nil, nil, &stubPinger{}, http.MethodGet, "/healthz", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("db down", func(t *testing.T) {
		rr := doRequest(t, nil, nil, &stubPinger{err: errors.New("conn refused")}, http.MethodGet, "/healthz", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})
}
