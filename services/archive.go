package services

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const archiveTimeLayout = "2006-01-02_15_04_05.000000"

// Archiver keeps every successfully fetched feed body on disk so a run can be
// replayed later.
type Archiver struct {
	dir string
	now func() time.Time
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir, now: time.Now}
}

// Save writes body to <dir>/<feed>-<timestamp>.json and returns the path.
func (a *Archiver) Save(feed string, body []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("%s-%s.json", feed, a.now().UTC().Format(archiveTimeLayout)))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	return path, nil
}
