package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/certificate"
)

// CertificateService is the part of certificate.Service the handlers use.
type CertificateService interface {
	GenerateCertificatePdfForUser(ctx context.Context, userID, competencyType, assignmentID string) (*certificate.Certificate, error)
	StreamCertificate(ctx context.Context, key string, w http.ResponseWriter)
	Cleanup(cert *certificate.Certificate)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	certs CertificateService
	log   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(certs CertificateService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{certs: certs, log: log}
}

// ViewCertificate handles GET /cms/certificates/view-cert
func (h *Handler) ViewCertificate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	competencyType := q.Get("type")
	assignmentID := q.Get("assignmentId")

	if userID == "" || competencyType == "" || assignmentID == "" {
		respondError(w, r, http.StatusBadRequest, "userId, type and assignmentId are required")
		return
	}

	cert, err := h.certs.GenerateCertificatePdfForUser(r.Context(), userID, competencyType, assignmentID)
	if err != nil {
		status, msg := certificateErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("failed to generate certificate",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err))
		}
		respondError(w, r, status, msg)
		return
	}
	defer h.certs.Cleanup(cert)

	h.certs.StreamCertificate(r.Context(), cert.Key, w)
}

// DownloadCertificate handles GET /cms/certificates/download
func (h *Handler) DownloadCertificate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	key := q.Get("key")
	if certificate.ValidateID(userID) != nil {
		respondError(w, r, http.StatusBadRequest, "valid userId is required")
		return
	}
	if !validObjectKey(key) {
		respondError(w, r, http.StatusBadRequest, "invalid certificate key")
		return
	}
	if !strings.HasPrefix(key, "users/"+userID+"/") {
		h.log.Warn("certificate download for another user",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("user_id", userID))
		respondError(w, r, http.StatusNotFound, "certificate not found")
		return
	}

	h.certs.StreamCertificate(r.Context(), key, w)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func certificateErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, certificate.ErrUnknownCompetencyType):
		return http.StatusBadRequest, "unknown competency type"
	case errors.Is(err, certificate.ErrInvalidAssignmentID):
		return http.StatusBadRequest, "invalid assignment id"
	case errors.Is(err, certificate.ErrAssignmentNotFound),
		errors.Is(err, certificate.ErrAssignmentIncomplete):
		return http.StatusNotFound, "certificate not found"
	default:
		return http.StatusInternalServerError, "failed to generate certificate"
	}
}

// validObjectKey accepts clean keys below users/.
func validObjectKey(key string) bool {
	if !strings.HasPrefix(key, "users/") || !strings.HasSuffix(key, ".pdf") {
		return false
	}
	return path.Clean(key) == key && !strings.Contains(key, "..")
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, RequestID: GetRequestID(r.Context())})
}
