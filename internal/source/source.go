// Package source enumerates the images a scan should consider.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wlockwood/lits/internal/models"
)

// Candidate is one image file found by a Source, described by the
// attributes that make up its identity key.
type Candidate struct {
	Path       string
	Filename   string
	ModifiedAt time.Time
	Size       int64

	open func(ctx context.Context) (io.ReadCloser, error)
}

func (c Candidate) Identity() models.IdentityKey {
	return models.IdentityKey{
		Filename:   c.Filename,
		ModifiedAt: c.ModifiedAt,
		SizeBytes:  c.Size,
	}.Normalize()
}

// Image returns the record stored for a first sighting of the candidate.
func (c Candidate) Image() *models.Image {
	key := c.Identity()
	return &models.Image{
		Filename:   key.Filename,
		Path:       c.Path,
		ModifiedAt: key.ModifiedAt,
		SizeBytes:  key.SizeBytes,
	}
}

// Open returns the file contents. The caller closes the reader.
func (c Candidate) Open(ctx context.Context) (io.ReadCloser, error) {
	if c.open == nil {
		return nil, fmt.Errorf("open %s: candidate has no reader", c.Path)
	}
	return c.open(ctx)
}

// Source lists candidates in a stable order.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// FromFile describes a single local file.
func FromFile(path string) (Candidate, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Candidate{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("%s is a directory", path)
	}
	return fileCandidate(abs, info), nil
}

func fileCandidate(path string, info os.FileInfo) Candidate {
	return Candidate{
		Path:       path,
		Filename:   info.Name(),
		ModifiedAt: info.ModTime().UTC().Truncate(time.Second),
		Size:       info.Size(),
		open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Exclude drops candidates whose path is in paths.
func Exclude(cands []Candidate, paths []string) []Candidate {
	if len(paths) == 0 {
		return cands
	}
	skip := make(map[string]bool, len(paths))
	for _, p := range paths {
		skip[p] = true
	}
	out := cands[:0:0]
	for _, c := range cands {
		if !skip[c.Path] {
			out = append(out, c)
		}
	}
	return out
}

// Paths lists candidate paths in order.
func Paths(cands []Candidate) []string {
	paths := make([]string, len(cands))
	for i, c := range cands {
		paths[i] = c.Path
	}
	return paths
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].Path < cands[j].Path })
}
