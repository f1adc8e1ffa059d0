package source

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/wlockwood/lits/internal/storage"
)

// ObjectLister is the part of the bucket client a Bucket source needs.
type ObjectLister interface {
	Bucket() string
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	OpenObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// Bucket lists photos stored in an object store bucket. Candidate paths
// take the form minio://bucket/key.
type Bucket struct {
	objects ObjectLister
	prefix  string
	exts    map[string]bool
}

func NewBucket(objects ObjectLister, prefix string, extensions []string) *Bucket {
	return &Bucket{objects: objects, prefix: prefix, exts: extensionSet(extensions)}
}

func (b *Bucket) Candidates(ctx context.Context) ([]Candidate, error) {
	objects, err := b.objects.ListObjects(ctx, b.prefix)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || !b.exts[strings.ToLower(path.Ext(obj.Key))] {
			continue
		}
		key := obj.Key
		cands = append(cands, Candidate{
			Path:       storage.ObjectURL(b.objects.Bucket(), key),
			Filename:   path.Base(key),
			ModifiedAt: obj.LastModified.UTC(),
			Size:       obj.Size,
			open: func(ctx context.Context) (io.ReadCloser, error) {
				return b.objects.OpenObject(ctx, key)
			},
		})
	}
	sortCandidates(cands)
	return cands, nil
}
