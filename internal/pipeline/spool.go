package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Spool keeps raw uploaded workbooks on local disk until they are archived.
// Layout is <dir>/<dataset id>/<base filename>.
type Spool struct {
	dir string
}

// NewSpool returns a spool rooted at dir.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir}
}

// Path returns where the workbook for datasetID is spooled.
func (s *Spool) Path(datasetID, filename string) string {
	return filepath.Join(s.dir, filepath.Base(datasetID), filepath.Base(filename))
}

// Write stores r under the dataset's spool path and returns that path.
func (s *Spool) Write(datasetID, filename string, r io.Reader) (string, error) {
	p := s.Path(datasetID, filename)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("Spool.Write: create dir: %w", err)
	}

	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("Spool.Write: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("Spool.Write: copy: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("Spool.Write: close: %w", err)
	}
	return p, nil
}

// Remove deletes the spooled copy for datasetID.
func (s *Spool) Remove(datasetID string) error {
	return os.RemoveAll(filepath.Join(s.dir, filepath.Base(datasetID)))
}
