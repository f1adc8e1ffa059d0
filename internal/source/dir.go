package source

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Dir walks a local directory tree.
type Dir struct {
	root string
	exts map[string]bool
}

func NewDir(root string, extensions []string) *Dir {
	return &Dir{root: root, exts: extensionSet(extensions)}
}

func (d *Dir) Candidates(ctx context.Context) ([]Candidate, error) {
	root, err := filepath.Abs(d.root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", d.root, err)
	}

	var cands []Candidate
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !d.exts[strings.ToLower(filepath.Ext(entry.Name()))] {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		cands = append(cands, fileCandidate(path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	sortCandidates(cands)
	return cands, nil
}
