package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vendorflow/agreement"
	"vendorflow/role"
	"vendorflow/verification"
)

// AgreementService is the lifecycle controller surface the handlers need.
type AgreementService interface {
	Submit(ctx context.Context, params agreement.SubmitParams) (agreement.Agreement, error)
	LegalReview(ctx context.Context, id int64, approved bool, notes *string) (agreement.Agreement, error)
	UploadDraft(ctx context.Context, id int64, draftRef string) (agreement.Agreement, error)
	UploadSigned(ctx context.Context, id int64, signedRef string) (agreement.Agreement, error)
	Get(ctx context.Context, id int64) (*agreement.WithVerifications, error)
	List(ctx context.Context) ([]agreement.WithVerifications, error)
	DownloadSigned(ctx context.Context, id int64, caller role.Role) (*agreement.SignedDocument, error)
}

// VerificationService is the sequencer surface the handlers need.
type VerificationService interface {
	Submit(ctx context.Context, params verification.SubmitParams) (verification.Verification, error)
}

// Pinger reports storage liveness for the healthcheck.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	agreements    AgreementService
	verifications VerificationService
	db            Pinger
	logger        *zap.Logger
	validate      *validator.Validate
}

func NewServer(agreements AgreementService, verifications VerificationService, db Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		agreements:    agreements,
		verifications: verifications,
		db:            db,
		logger:        logger,
		validate:      validator.New(),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/agreements", s.handleAgreements)
	mux.HandleFunc("/api/agreements/", s.handleAgreementSubtree)
	return s.withObservability(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health ping failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
