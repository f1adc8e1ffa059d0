package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wlockwood/lits/internal/storage"
)

// ObjectStore is the part of the bucket client the sidecar writer needs.
type ObjectStore interface {
	Bucket() string
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// SidecarWriter appends person names to "<image>.xmp" next to the image,
// either on the local file system or in the image's bucket.
type SidecarWriter struct {
	objects ObjectStore
}

// NewSidecarWriter builds a writer. objects may be nil when every image
// is a local file.
func NewSidecarWriter(objects ObjectStore) *SidecarWriter {
	return &SidecarWriter{objects: objects}
}

func SidecarPath(path string) string {
	return path + ".xmp"
}

// Append adds the names missing from the image's sidecar and reports how
// many were written.
func (w *SidecarWriter) Append(ctx context.Context, imagePath string, names []string) (int, error) {
	if bucket, key, ok := storage.ParseObjectURL(imagePath); ok {
		return w.appendObject(ctx, bucket, SidecarPath(key), names)
	}
	return appendFile(SidecarPath(imagePath), names)
}

func (w *SidecarWriter) appendObject(ctx context.Context, bucket, key string, names []string) (int, error) {
	if w.objects == nil {
		return 0, fmt.Errorf("sidecar %s: no object store configured", key)
	}
	if bucket != w.objects.Bucket() {
		return 0, fmt.Errorf("sidecar %s: bucket %q is not %q", key, bucket, w.objects.Bucket())
	}
	current, err := w.objects.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	updated, added, err := AppendKeywords(current, names)
	if err != nil || added == 0 {
		return 0, err
	}
	if err := w.objects.PutObject(ctx, key, updated, "application/rdf+xml"); err != nil {
		return 0, err
	}
	slog.Debug("sidecar updated", "bucket", bucket, "key", key, "added", added)
	return added, nil
}

func appendFile(path string, names []string) (int, error) {
	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("read sidecar: %w", err)
	}
	updated, added, err := AppendKeywords(current, names)
	if err != nil || added == 0 {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".lits-*.xmp")
	if err != nil {
		return 0, fmt.Errorf("create sidecar: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(updated); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("replace sidecar: %w", err)
	}
	slog.Debug("sidecar updated", "path", path, "added", added)
	return added, nil
}
