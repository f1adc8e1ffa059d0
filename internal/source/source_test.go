package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/storage"
)

func writeFile(t *testing.T, path, body string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDirCandidates(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
	writeFile(t, filepath.Join(root, "b.jpg"), "bb", mtime)
	writeFile(t, filepath.Join(root, "a.JPG"), "a", mtime)
	writeFile(t, filepath.Join(root, "nested", "c.jpeg"), "ccc", mtime)
	writeFile(t, filepath.Join(root, "notes.txt"), "x", mtime)
	writeFile(t, filepath.Join(root, "b.jpg.xmp"), "<x/>", mtime)

	cands, err := NewDir(root, []string{".jpg", "jpeg"}).Candidates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.jpg"),
		filepath.Join(root, "nested", "c.jpeg"),
	}, Paths(cands))

	c := cands[1]
	assert.Equal(t, "b.jpg", c.Filename)
	assert.Equal(t, int64(2), c.Size)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), c.ModifiedAt)
	assert.Equal(t, "b.jpg", c.Image().Filename)
	assert.Equal(t, c.Path, c.Image().Path)

	rc, err := c.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "bb", string(body))
}

func TestDirCandidatesMissingRoot(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "missing"), []string{".jpg"}).Candidates(context.Background())
	assert.Error(t, err)
}

func TestDirCandidatesCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "a", time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDir(root, []string{".jpg"}).Candidates(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ada.jpg")
	writeFile(t, path, "face", time.Date(2021, 5, 5, 5, 5, 5, 0, time.UTC))

	c, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ada.jpg", c.Identity().Filename)
	assert.Equal(t, int64(4), c.Identity().SizeBytes)

	_, err = FromFile(filepath.Dir(path))
	assert.Error(t, err)
}

func TestExclude(t *testing.T) {
	cands := []Candidate{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}}
	assert.Equal(t, []string{"/a", "/c"}, Paths(Exclude(cands, []string{"/b"})))
	assert.Len(t, cands, 3, "input is not modified")
	assert.Len(t, Exclude(cands, nil), 3)
}

func TestCandidateWithoutReader(t *testing.T) {
	_, err := Candidate{Path: "/nowhere.jpg"}.Open(context.Background())
	assert.Error(t, err)
}

type fakeBucket struct {
	objects []storage.ObjectInfo
	data    map[string]string
}

func (f *fakeBucket) Bucket() string { return "photos" }

func (f *fakeBucket) ListObjects(context.Context, string) ([]storage.ObjectInfo, error) {
	return f.objects, nil
}

func (f *fakeBucket) OpenObject(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewBufferString(f.data[key])), nil
}

func TestBucketCandidates(t *testing.T) {
	modified := time.Date(2022, 7, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	b := &fakeBucket{
		objects: []storage.ObjectInfo{
			{Key: "2022/z.jpg", Size: 10, LastModified: modified},
			{Key: "2022/", Size: 0, LastModified: modified},
			{Key: "2022/a.Jpg", Size: 3, LastModified: modified},
			{Key: "2022/a.jpg.xmp", Size: 1, LastModified: modified},
		},
		data: map[string]string{"2022/a.Jpg": "abc"},
	}

	cands, err := NewBucket(b, "2022/", []string{".jpg"}).Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "minio://photos/2022/a.Jpg", cands[0].Path)
	assert.Equal(t, "a.Jpg", cands[0].Filename)
	assert.Equal(t, time.UTC, cands[0].ModifiedAt.Location())
	assert.True(t, modified.Equal(cands[0].ModifiedAt))

	rc, err := cands[0].Open(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}
