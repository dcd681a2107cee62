package certificate

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Cleanup removes the local PDF, the directories above it that became empty
// and the browser profile of the render. Failures are logged only.
func (s *Service) Cleanup(cert *Certificate) {
	if cert == nil {
		return
	}
	log := s.log.With(zap.String("key", cert.Key))

	if cert.PDFPath != "" {
		if err := os.Remove(cert.PDFPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove certificate file", zap.String("path", cert.PDFPath), zap.Error(err))
		}
		s.pruneEmptyDirs(filepath.Dir(cert.PDFPath), log)
	}

	if cert.ProfileDir != "" {
		if err := os.RemoveAll(cert.ProfileDir); err != nil {
			log.Warn("failed to remove browser profile", zap.String("path", cert.ProfileDir), zap.Error(err))
		}
	}
}

// pruneEmptyDirs removes dir and its parents while they are empty, stopping
// at the work dir.
func (s *Service) pruneEmptyDirs(dir string, log *zap.Logger) {
	root := filepath.Clean(s.workDir)
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			log.Debug("failed to remove empty directory", zap.String("path", dir), zap.Error(err))
			return
		}
		dir = filepath.Dir(dir)
	}
}
