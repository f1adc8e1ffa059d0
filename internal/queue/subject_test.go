package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/models"
)

func TestSubjects(t *testing.T) {
	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	assert.Equal(t, "tags.7c9e6679-7425-40de-944b-e07fc1f90ae7", TagSubject(id))
	assert.Equal(t, "matches.7c9e6679-7425-40de-944b-e07fc1f90ae7", MatchSubject(id))
}

func TestTagMsgIDIgnoresNameOrder(t *testing.T) {
	id := uuid.New()
	a := tagMsgID(models.TagRequest{ImageID: id, Names: []string{"Bob", "Ada"}})
	b := tagMsgID(models.TagRequest{ImageID: id, Names: []string{"Ada", "Bob"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, tagMsgID(models.TagRequest{ImageID: id, Names: []string{"Ada"}}))
}

func TestDecodeTagRequest(t *testing.T) {
	want := models.TagRequest{ImageID: uuid.New(), Path: "/photos/a.jpg", Names: []string{"Ada"}}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := DecodeTagRequest(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeTagRequest([]byte(`{"path":"/photos/a.jpg","names":["Ada"]}`))
	assert.ErrorIs(t, err, errEmptyTagRequest)

	_, err = DecodeTagRequest([]byte(`{`))
	assert.Error(t, err)
}
