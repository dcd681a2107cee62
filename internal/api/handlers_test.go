package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipak0000812/credtrack/internal/certificate"
	"github.com/dipak0000812/credtrack/internal/metrics"
)

type fakeCertificates struct {
	mu       sync.Mutex
	cert     *certificate.Certificate
	err      error
	streamed []string
	cleaned  []*certificate.Certificate
	generate int
	users    []string
}

func (f *fakeCertificates) GenerateCertificatePdfForUser(_ context.Context, userID, _, _ string) (*certificate.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generate++
	f.users = append(f.users, userID)
	return f.cert, f.err
}

func (f *fakeCertificates) StreamCertificate(_ context.Context, key string, w http.ResponseWriter) {
	f.mu.Lock()
	f.streamed = append(f.streamed, key)
	f.mu.Unlock()
	w.Header().Set("Content-Type", certificate.PDFContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("%PDF"))
}

func (f *fakeCertificates) Cleanup(cert *certificate.Certificate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, cert)
}

func newTestRouter(certs CertificateService) (http.Handler, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewRouter(RouterConfig{Certificates: certs, Metrics: m}), m
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleCert() *certificate.Certificate {
	return &certificate.Certificate{
		Key:        "users/u1/exam/42.pdf",
		PDFPath:    "/tmp/users/u1/exam/42.pdf",
		Assignment: &certificate.Assignment{ID: "42", UserID: "u1"},
	}
}

func TestViewCertificate_StreamsAndCleansUp(t *testing.T) {
	certs := &fakeCertificates{cert: sampleCert()}
	h, _ := newTestRouter(certs)

	rec := do(t, h, "/cms/certificates/view-cert?userId=u1&type=exam&assignmentId=42")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
	assert.Equal(t, []string{"users/u1/exam/42.pdf"}, certs.streamed)
	require.Len(t, certs.cleaned, 1)
	assert.Same(t, certs.cert, certs.cleaned[0])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestViewCertificate_PassesUserToService(t *testing.T) {
	certs := &fakeCertificates{cert: sampleCert()}
	h, _ := newTestRouter(certs)

	rec := do(t, h, "/cms/certificates/view-cert?userId=%20u1%20&type=exam&assignmentId=42")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1"}, certs.users)
}

func TestViewCertificate_UserMismatch(t *testing.T) {
	// The service rejects another user's assignment before rendering.
	certs := &fakeCertificates{err: errors.Wrap(certificate.ErrAssignmentNotFound, "owner")}
	h, _ := newTestRouter(certs)

	rec := do(t, h, "/cms/certificates/view-cert?userId=someone-else&type=exam&assignmentId=42")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, certs.streamed)
	assert.Empty(t, certs.cleaned)
	assert.Equal(t, []string{"someone-else"}, certs.users)
}

func TestViewCertificate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown type", certificate.ErrUnknownCompetencyType, http.StatusBadRequest},
		{"invalid id", errors.Wrap(certificate.ErrInvalidAssignmentID, "validate"), http.StatusBadRequest},
		{"not found", certificate.ErrAssignmentNotFound, http.StatusNotFound},
		{"incomplete", errors.WithDetailf(certificate.ErrAssignmentIncomplete, "status: %s", "IN_PROGRESS"), http.StatusNotFound},
		{"internal", errors.New("chrome crashed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs := &fakeCertificates{err: tt.err}
			h, _ := newTestRouter(certs)

			rec := do(t, h, "/cms/certificates/view-cert?userId=u1&type=exam&assignmentId=42")

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.NotContains(t, body.Error, "chrome")
			assert.Empty(t, certs.cleaned)
		})
	}
}

func TestViewCertificate_MissingParams(t *testing.T) {
	certs := &fakeCertificates{cert: sampleCert()}
	h, _ := newTestRouter(certs)

	rec := do(t, h, "/cms/certificates/view-cert?type=exam&assignmentId=42")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, certs.generate)
}

func TestDownloadCertificate_KeyValidation(t *testing.T) {
	tests := []struct {
		name string
		user string
		key  string
		code int
	}{
		{"own key", "u1", "users/u1/exam/42.pdf", http.StatusOK},
		{"empty key", "u1", "", http.StatusBadRequest},
		{"outside users", "u1", "secrets/config.pdf", http.StatusBadRequest},
		{"traversal", "u1", "users/../secrets/x.pdf", http.StatusBadRequest},
		{"double slash", "u1", "users/u1//exam/42.pdf", http.StatusBadRequest},
		{"not a pdf", "u1", "users/u1/exam/42.txt", http.StatusBadRequest},
		{"missing user", "", "users/u1/exam/42.pdf", http.StatusBadRequest},
		{"user with slash", "u1/exam", "users/u1/exam/42.pdf", http.StatusBadRequest},
		{"another user", "u2", "users/u1/exam/42.pdf", http.StatusNotFound},
		{"user prefix of another", "u", "users/u1/exam/42.pdf", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs := &fakeCertificates{}
			h, _ := newTestRouter(certs)

			q := url.Values{"userId": {tt.user}, "key": {tt.key}}
			rec := do(t, h, "/cms/certificates/download?"+q.Encode())
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, []string{tt.key}, certs.streamed)
			} else {
				assert.Empty(t, certs.streamed)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h, m := newTestRouter(&fakeCertificates{})

	rec := do(t, h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))
}

func TestRequestID_Propagated(t *testing.T) {
	h, _ := newTestRouter(&fakeCertificates{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))
}

func TestNotFound(t *testing.T) {
	h, m := newTestRouter(&fakeCertificates{})

	rec := do(t, h, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}
