package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/source"
	"github.com/wlockwood/lits/internal/storage"
)

func TestPersonName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", PersonName("Ada Lovelace.jpg"))
	assert.Equal(t, "Zo\u00e9", PersonName("Zoe\u0301.JPG"), "decomposed names are composed")
	assert.Equal(t, "archive.tar", PersonName("archive.tar.gz"))
	assert.Equal(t, "", PersonName(".jpg"))
}

func TestBootstrapLinksReferenceFaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	ext := &fakeExtractor{faces: map[uint8][][]float32{
		1: {{0, 0}},
		2: {{1, 1}},
		3: {{0, 0}, {1, 1}},
		4: {},
	}}
	c := NewCoordinator(s, ext, nil, nil, testOptions())

	dir := t.TempDir()
	known := []source.Candidate{
		writePhoto(t, dir, "Ada.png", 1),
		writePhoto(t, dir, "Bob.png", 2),
		writePhoto(t, dir, "Group.png", 3),
		writePhoto(t, dir, "Empty.png", 4),
	}

	failures := map[string]error{}
	sum, err := c.Bootstrap(ctx, known, func(cand source.Candidate, _ *Result, err error) {
		if err != nil {
			failures[cand.Filename] = err
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Matched)
	assert.Equal(t, 2, sum.Errored)
	assert.ErrorIs(t, failures["Group.png"], ErrNotSingleFace)
	assert.ErrorIs(t, failures["Empty.png"], ErrNotSingleFace)

	ada, err := s.PersonByName(ctx, "Ada")
	require.NoError(t, err)
	encs, err := s.EncodingsForPerson(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	assert.Equal(t, []float32{0, 0}, encs[0].Vector)

	_, err = s.PersonByName(ctx, "Group")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A second pass reuses the stored images and links.
	again, err := c.Bootstrap(ctx, known[:2], nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	people, err := s.AllPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 2)
	encs, err = s.EncodingsForPerson(ctx, ada.ID)
	require.NoError(t, err)
	assert.Len(t, encs, 1)
}

func TestBootstrapAmbiguousName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for range 2 {
		_, err := s.AddPerson(ctx, "Bob")
		require.NoError(t, err)
	}
	c := NewCoordinator(s, &fakeExtractor{faces: map[uint8][][]float32{2: {{1, 1}}}}, nil, nil, testOptions())

	var failure error
	sum, err := c.Bootstrap(ctx, []source.Candidate{writePhoto(t, t.TempDir(), "Bob.png", 2)},
		func(_ source.Candidate, _ *Result, err error) { failure = err })
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errored)
	assert.ErrorIs(t, failure, storage.ErrAmbiguousName)
}

func TestBootstrapThenScan(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	ext := &fakeExtractor{faces: map[uint8][][]float32{
		1: {{0, 0}},
		2: {{0.2, 0}},
	}}
	c := NewCoordinator(s, ext, nil, nil, testOptions())

	knownDir, photoDir := t.TempDir(), t.TempDir()
	_, err := c.Bootstrap(ctx, []source.Candidate{writePhoto(t, knownDir, "Ada.png", 1)}, nil)
	require.NoError(t, err)

	party := writePhoto(t, photoDir, "party.png", 2)
	sum, err := c.Scan(ctx, []source.Candidate{party}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Matched)

	ada, err := s.PersonByName(ctx, "Ada")
	require.NoError(t, err)
	paths, err := s.ImagesForPerson(ctx, ada.ID)
	require.NoError(t, err)
	assert.Contains(t, paths, party.Path)
	assert.Len(t, paths, 2, "reference photo and party photo")
}
