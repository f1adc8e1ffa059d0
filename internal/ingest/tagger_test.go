package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/metadata"
	"github.com/wlockwood/lits/internal/models"
)

type recordingPublisher struct {
	requests []models.TagRequest
}

func (r *recordingPublisher) PublishTagRequest(_ context.Context, req models.TagRequest) error {
	r.requests = append(r.requests, req)
	return nil
}

func TestNewTagger(t *testing.T) {
	writer := metadata.NewSidecarWriter(nil)
	pub := &recordingPublisher{}

	tagger, err := NewTagger(config.TaggingOff, writer, pub)
	require.NoError(t, err)
	assert.Nil(t, tagger)

	tagger, err = NewTagger(config.TaggingSidecar, writer, nil)
	require.NoError(t, err)
	assert.IsType(t, &SidecarTagger{}, tagger)

	tagger, err = NewTagger(config.TaggingQueue, nil, pub)
	require.NoError(t, err)
	assert.IsType(t, &QueueTagger{}, tagger)

	_, err = NewTagger(config.TaggingQueue, writer, nil)
	assert.Error(t, err)
	_, err = NewTagger("exif", writer, pub)
	assert.Error(t, err)
}

func TestSidecarTagger(t *testing.T) {
	photo := filepath.Join(t.TempDir(), "a.jpg")
	tagger := NewSidecarTagger(metadata.NewSidecarWriter(nil))

	req := models.TagRequest{ImageID: uuid.New(), Path: photo, Names: []string{"Ada"}}
	require.NoError(t, tagger.Tag(context.Background(), req))
	require.NoError(t, tagger.Tag(context.Background(), req))

	data, err := os.ReadFile(metadata.SidecarPath(photo))
	require.NoError(t, err)
	kws, err := metadata.ReadKeywords(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, kws)
}

func TestQueueTagger(t *testing.T) {
	pub := &recordingPublisher{}
	req := models.TagRequest{ImageID: uuid.New(), Path: "/p/a.jpg", Names: []string{"Ada"}}
	require.NoError(t, NewQueueTagger(pub).Tag(context.Background(), req))
	assert.Equal(t, []models.TagRequest{req}, pub.requests)
}
