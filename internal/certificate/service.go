// Package certificate renders completion certificates to PDF, uploads them
// to object storage and streams them back.
package certificate

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/metrics"
	"github.com/dipak0000812/credtrack/internal/storage"
)

// PDFContentType is the content type of certificates.
const PDFContentType = "application/pdf"

// Certificate is a rendered and uploaded certificate.
type Certificate struct {
	// Key is the object key, also the PDF path relative to the work dir.
	Key string

	// PDFPath is the local PDF file.
	PDFPath string

	// UploadURL is the object URL in storage.
	UploadURL string

	// ProfileDir is the browser profile used for the render.
	ProfileDir string

	Assignment *Assignment
}

// ObjectKey builds the key of a certificate: users/{userId}/{type}/{assignmentId}.pdf.
func ObjectKey(userID string, ct CompetencyType, assignmentID string) string {
	return path.Join("users", userID, string(ct), assignmentID+".pdf")
}

// Config wires a Service.
type Config struct {
	// WorkDir holds rendered PDFs until they are cleaned up.
	WorkDir string

	Repo     AssignmentRepository
	Template *Template
	Renderer Renderer
	Store    storage.ObjectStore
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	// AssetURL resolves an agency logo asset id to a URL. Optional.
	AssetURL func(id string) string
}

// Service generates certificates.
type Service struct {
	workDir  string
	repo     AssignmentRepository
	tmpl     *Template
	renderer Renderer
	store    storage.ObjectStore
	metrics  *metrics.Metrics
	log      *zap.Logger
	assetURL func(id string) string
}

// NewService creates a certificate service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("assignment repository is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "credtrack-certificates")
	}
	if cfg.Template == nil {
		tmpl, err := LoadTemplate("")
		if err != nil {
			return nil, err
		}
		cfg.Template = tmpl
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	return &Service{
		workDir:  cfg.WorkDir,
		repo:     cfg.Repo,
		tmpl:     cfg.Template,
		renderer: cfg.Renderer,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
		assetURL: cfg.AssetURL,
	}, nil
}

// GenerateCertificatePdf renders, stores and uploads the certificate of an
// assignment.
//
// A nil certificate is returned with ErrUnknownCompetencyType,
// ErrInvalidAssignmentID, ErrAssignmentNotFound or ErrAssignmentIncomplete
// when the request does not qualify. An unknown type is rejected before the
// database is queried, and an incomplete assignment is never rendered.
func (s *Service) GenerateCertificatePdf(ctx context.Context, competencyType, assignmentID string) (*Certificate, error) {
	return s.generate(ctx, "", competencyType, assignmentID)
}

// GenerateCertificatePdfForUser is GenerateCertificatePdf for an assignment
// that must belong to userID. An assignment of another user is rejected
// with ErrAssignmentNotFound before anything is rendered or uploaded.
func (s *Service) GenerateCertificatePdfForUser(ctx context.Context, userID, competencyType, assignmentID string) (*Certificate, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	return s.generate(ctx, userID, competencyType, assignmentID)
}

// generate checks ownership only when owner is set.
func (s *Service) generate(ctx context.Context, owner, competencyType, assignmentID string) (*Certificate, error) {
	log := s.log.With(
		zap.String("competency_type", competencyType),
		zap.String("assignment_id", assignmentID))

	ct, err := ParseCompetencyType(competencyType)
	if err != nil {
		return nil, s.reject(log, "unknown_type", err)
	}
	tables, _ := ct.Tables()

	assignmentID = strings.TrimSpace(assignmentID)
	if err := ValidateID(assignmentID); err != nil {
		return nil, s.reject(log, "invalid_id", err)
	}

	a, err := s.repo.GetAssignment(ctx, tables, assignmentID)
	if err != nil {
		log.Error("failed to load assignment", zap.Error(err))
		return nil, errors.Wrap(err, "load assignment")
	}
	if a == nil {
		return nil, s.reject(log, "not_found", ErrAssignmentNotFound)
	}
	// Someone else's assignment is reported like a missing one.
	if owner != "" && a.UserID != owner {
		return nil, s.reject(log.With(zap.String("user_id", owner)), "not_owner", ErrAssignmentNotFound)
	}
	if !a.IsComplete() {
		return nil, s.reject(log, "incomplete",
			errors.WithDetailf(ErrAssignmentIncomplete, "status: %s", a.Status))
	}
	if err := ValidateID(a.UserID); err != nil {
		log.Error("assignment has an unusable user id", zap.String("user_id", a.UserID))
		return nil, errors.Wrap(err, "assignment user")
	}

	html, err := s.tmpl.Render(TemplateData(ct, a, s.assetURL))
	if err != nil {
		return nil, err
	}

	key := ObjectKey(a.UserID, ct, assignmentID)
	cert := &Certificate{
		Key:        key,
		PDFPath:    filepath.Join(s.workDir, filepath.FromSlash(key)),
		Assignment: a,
	}

	start := time.Now()
	cert.ProfileDir, err = s.renderer.Render(ctx, html, cert.PDFPath)
	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("certificate render failed", zap.Error(err))
		s.Cleanup(cert)
		return nil, err
	}

	url, err := s.upload(ctx, cert)
	if err != nil {
		log.Error("certificate upload failed", zap.String("key", key), zap.Error(err))
		s.Cleanup(cert)
		return nil, err
	}
	cert.UploadURL = url

	s.metrics.CertificatesRendered.WithLabelValues(string(ct)).Inc()
	log.Info("certificate generated", zap.String("key", key), zap.String("url", url))
	return cert, nil
}

func (s *Service) upload(ctx context.Context, cert *Certificate) (string, error) {
	f, err := os.Open(cert.PDFPath)
	if err != nil {
		return "", errors.Wrap(err, "open rendered certificate")
	}
	defer f.Close()

	return s.store.Upload(ctx, cert.Key, f, PDFContentType)
}

func (s *Service) reject(log *zap.Logger, reason string, err error) error {
	s.metrics.CertificatesRejected.WithLabelValues(reason).Inc()
	log.Warn("certificate request rejected", zap.String("reason", reason), zap.Error(err))
	return err
}
