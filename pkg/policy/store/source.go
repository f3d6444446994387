package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Source supplies the raw policy document.
type Source interface {
	// Load returns the current document bytes.
	Load(ctx context.Context) ([]byte, error)

	// Name identifies the source in logs and errors.
	Name() string
}

// FileSource reads a YAML policy document from disk.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a new file-based policy source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger,
	}
}

// Load reads the policy file.
func (s *FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", s.path, err)
	}

	s.logger.Debug("read policy document", "path", s.path, "bytes", len(data))
	return data, nil
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return s.path
}

// Path returns the file path watched for hot reload.
func (s *FileSource) Path() string {
	return s.path
}

// MemorySource is an in-memory policy source for tests and embedding.
type MemorySource struct {
	mu   sync.RWMutex
	name string
	data []byte
}

// NewMemorySource creates a new in-memory policy source.
func NewMemorySource(name string, data []byte) *MemorySource {
	if name == "" {
		name = "memory"
	}
	return &MemorySource{
		name: name,
		data: append([]byte(nil), data...),
	}
}

// Load returns a copy of the stored document.
func (s *MemorySource) Load(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...), nil
}

// Name returns the source name.
func (s *MemorySource) Name() string {
	return s.name
}

// Set replaces the stored document. The Store picks it up on the next Reload.
func (s *MemorySource) Set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
}
