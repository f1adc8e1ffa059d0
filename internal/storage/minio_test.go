package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	url := ObjectURL("photos", "2019/beach.jpg")
	assert.Equal(t, "minio://photos/2019/beach.jpg", url)

	bucket, key, ok := ParseObjectURL(url)
	assert.True(t, ok)
	assert.Equal(t, "photos", bucket)
	assert.Equal(t, "2019/beach.jpg", key)

	for _, path := range []string{"/photos/beach.jpg", "minio://photos", "minio:///beach.jpg", "minio://photos/"} {
		_, _, ok := ParseObjectURL(path)
		assert.False(t, ok, path)
	}
}
