package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Destination is an export target (directory, S3, Postgres).
type Destination interface {
	// Write stores one snapshot.
	Write(ctx context.Context, snap *Snapshot) error
	// Name labels the destination in logs.
	Name() string
}

// FileDestination writes each snapshot as a JSONL file in a directory.
type FileDestination struct {
	dir string
}

func NewFileDestination(dir string) (*FileDestination, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &FileDestination{dir: dir}, nil
}

func (d *FileDestination) Name() string { return "file:" + d.dir }

// Path returns the file a snapshot is written to.
func (d *FileDestination) Path(snap *Snapshot) string {
	return filepath.Join(d.dir, objectName(snap))
}

// Write writes to a temporary file and renames it into place, so readers
// never see a partial export.
func (d *FileDestination) Write(ctx context.Context, snap *Snapshot) error {
	data, err := marshalJSONL(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.Path(snap)); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}
