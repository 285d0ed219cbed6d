package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrInvalidName is returned for export names that are empty or would
// escape the export directory.
var ErrInvalidName = errors.New("invalid export file name")

// ExportStorage writes exported target lists into a single directory.
type ExportStorage struct {
	mu  sync.Mutex
	dir string
}

// NewExportStorage ensures dir exists and returns a writer rooted there.
func NewExportStorage(dir string) (*ExportStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure export directory: %w", err)
	}
	return &ExportStorage{dir: dir}, nil
}

// Dir returns the export directory.
func (s *ExportStorage) Dir() string {
	return s.dir
}

// Write atomically replaces name inside the export directory with content
// and returns the full path.
func (s *ExportStorage) Write(name, content string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write temp export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("replace export file: %w", err)
	}
	return path, nil
}
