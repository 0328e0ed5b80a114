package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maepena22/receipt/internal/entity"
)

// FileStore writes uploaded images to the uploads directory. Stored names
// are the original filename prefixed with an upload timestamp; image
// listing and spreadsheet export rely on this naming rule, so it is part
// of the storage contract.
type FileStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}, nil
}

// SaveUpload writes the file under "<unixms>-<originalName>" and returns
// the stored name.
func (s *FileStore) SaveUpload(file entity.UploadedFile) (string, error) {
	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), filepath.Base(file.OriginalName))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		s.logger.Error("failed to write upload", "name", name, "error", err)
		return "", fmt.Errorf("write upload: %w", err)
	}
	s.logger.Info("upload stored", "name", name, "bytes", len(file.Content))
	return name, nil
}

// List returns the stored upload names, newest first by the timestamp
// prefix (lexicographic order of the prefix matches creation order).
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}
