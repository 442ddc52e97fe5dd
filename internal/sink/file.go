package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nixlim/pantrycost/internal/analytics"
)

// FileSink writes each report to <dir>/<id>.json.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("file sink needs a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sink directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Write replaces the file atomically: the report is written to a temp file
// in the same directory and renamed into place.
func (s *FileSink) Write(ctx context.Context, r *analytics.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing report %s: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, objectName(r))); err != nil {
		return fmt.Errorf("renaming report %s into place: %w", r.ID, err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }
