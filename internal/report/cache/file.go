package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
)

// FileStore keeps all entries in one JSON document on disk:
//
//	{"cached-reports": {"<key>": {"fileContent": ..., "timestamp": ..., "params": ...}}}
//
// Writes replace the file atomically. Concurrent writers in other processes
// are not coordinated; the last one wins.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDocument map[string]map[string]Entry

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("cache file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[key]
	return e, ok, nil
}

func (s *FileStore) Save(ctx context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		// A corrupt document is replaced rather than blocking every write.
		entries = make(map[string]Entry)
	}
	entries[key] = e
	return s.write(entries)
}

func (s *FileStore) read() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cache file")
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse cache file")
	}
	entries := doc[DocumentName]
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]Entry) error {
	data, err := json.Marshal(fileDocument{DocumentName: entries})
	if err != nil {
		return errors.Wrap(err, "encode cache file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp cache file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write cache file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cache file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace cache file")
}
