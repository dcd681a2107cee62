// Package artifact downloads, decompresses and consumes report artifacts.
package artifact

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// ErrFetchFailed is the user-visible error for a failed artifact download or
// decompression. It is never retried.
var ErrFetchFailed = errors.New("could not fetch report")

// DefaultMaxBytes bounds the decompressed size of one artifact.
const DefaultMaxBytes = 256 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// Source serves artifacts of completed jobs.
type Source interface {
	Download(ctx context.Context, jobID string) (io.ReadCloser, error)
	MarkDownloaded(ctx context.Context, jobID string) error
}

// Fetcher turns a completed job into report text.
type Fetcher struct {
	src      Source
	log      *zap.Logger
	maxBytes int64
}

// NewFetcher creates a fetcher reading from src.
func NewFetcher(src Source, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		src:      src,
		log:      log,
		maxBytes: DefaultMaxBytes,
	}
}

// Fetch downloads and decompresses the artifact of jobID.
func (f *Fetcher) Fetch(ctx context.Context, jobID string) (string, error) {
	body, err := f.src.Download(ctx, jobID)
	if err != nil {
		f.log.Error("artifact download failed", zap.String("job_id", jobID), zap.Error(err))
		return "", errors.Mark(errors.Wrap(err, ErrFetchFailed.Error()), ErrFetchFailed)
	}
	defer body.Close()

	text, err := Decompress(body, f.maxBytes)
	if err != nil {
		f.log.Error("artifact decompression failed", zap.String("job_id", jobID), zap.Error(err))
		return "", errors.Mark(errors.Wrap(err, ErrFetchFailed.Error()), ErrFetchFailed)
	}

	f.log.Debug("artifact fetched", zap.String("job_id", jobID), zap.Int("bytes", len(text)))
	return text, nil
}

// Decompress reads a gzip stream and returns its text. Payloads without the
// gzip magic are returned as-is, which covers servers that answer with
// Content-Encoding: gzip and are transparently decoded by net/http.
// maxBytes <= 0 disables the size limit.
func Decompress(r io.Reader, maxBytes int64) (string, error) {
	br := bufio.NewReader(r)

	peek, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "read artifact")
	}

	var src io.Reader = br
	if bytes.Equal(peek, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return "", errors.Wrap(err, "open gzip stream")
		}
		defer zr.Close()
		src = zr
	}

	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", errors.Wrap(err, "decompress artifact")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", errors.Newf("artifact exceeds %d bytes", maxBytes)
	}
	return string(data), nil
}

// SaveResult describes a direct download.
type SaveResult struct {
	Path string

	// MarkErr is set when the job could not be flagged as downloaded on
	// the server. The file is kept regardless.
	MarkErr error
}

// Save writes content to dir/filename and then marks the job as downloaded.
// Marking is best-effort; its failure is reported in the result, not as an
// error.
func (f *Fetcher) Save(ctx context.Context, jobID, dir, filename, content string) (*SaveResult, error) {
	path, err := WriteFile(dir, filename, content)
	if err != nil {
		return nil, err
	}

	res := &SaveResult{Path: path}
	if jobID == "" {
		return res, nil
	}
	if err := f.src.MarkDownloaded(ctx, jobID); err != nil {
		f.log.Warn("failed to mark report downloaded",
			zap.String("job_id", jobID),
			zap.Error(err))
		res.MarkErr = err
	}
	return res, nil
}

// WriteFile atomically writes content to dir/filename, creating dir.
func WriteFile(dir, filename, content string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output directory %s", dir)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	tmp, err := os.CreateTemp(dir, ".report-*.csv")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, content); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "write report")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close report")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrapf(err, "move report to %s", path)
	}
	return path, nil
}
