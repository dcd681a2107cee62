package certificate

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"strconv"

	"go.uber.org/zap"
)

// StreamCertificate writes the stored object under key as an attachment.
// The object is read completely before the first byte is written, so a
// failure always produces a 500 JSON error instead of a truncated PDF.
func (s *Service) StreamCertificate(ctx context.Context, key string, w http.ResponseWriter) {
	obj, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Error("failed to fetch certificate", zap.String("key", key), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to fetch certificate"})
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = PDFContentType
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	h.Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(obj.Data); err != nil {
		s.log.Warn("certificate stream interrupted", zap.String("key", key), zap.Error(err))
	}
}
