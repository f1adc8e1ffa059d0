package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/models"
)

func ptr[T any](v T) *T { return &v }

func testImage(name string) *models.Image {
	return &models.Image{
		Filename:   name,
		Path:       "/photos/" + name,
		ModifiedAt: time.Date(2021, 6, 1, 12, 30, 15, 500, time.Local),
		SizeBytes:  4096,
	}
}

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("AddImageIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		vectors := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}

		first, err := s.AddImage(ctx, testImage("a.jpg"), vectors)
		require.NoError(t, err)
		second, err := s.AddImage(ctx, testImage("a.jpg"), vectors)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		encs, err := s.EncodingsForImage(ctx, first)
		require.NoError(t, err)
		require.Len(t, encs, 2)
		assert.Equal(t, vectors[0], encs[0].Vector)
		assert.Equal(t, vectors[1], encs[1].Vector)

		hist, err := s.FaceHistogram(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.FaceHistogramRow{{Faces: 2, Images: 1}}, hist)
	})

	t.Run("AddImageIgnoresVectorsForExisting", func(t *testing.T) {
		s := newStore(t)
		id, err := s.AddImage(ctx, testImage("b.jpg"), [][]float32{{1, 0}})
		require.NoError(t, err)

		again, err := s.AddImage(ctx, testImage("b.jpg"), [][]float32{{0, 1}, {1, 1}})
		require.NoError(t, err)
		assert.Equal(t, id, again)

		encs, err := s.EncodingsForImage(ctx, id)
		require.NoError(t, err)
		require.Len(t, encs, 1)
		assert.Equal(t, []float32{1, 0}, encs[0].Vector)
	})

	t.Run("FindImageByIdentityKey", func(t *testing.T) {
		s := newStore(t)
		img := testImage("c.jpg")

		_, err := s.FindImage(ctx, img.Identity())
		assert.ErrorIs(t, err, ErrNotFound)

		id, err := s.AddImage(ctx, img, nil)
		require.NoError(t, err)

		found, err := s.FindImage(ctx, models.IdentityKey{
			Filename:   "c.jpg",
			ModifiedAt: img.ModifiedAt.Add(200 * time.Millisecond),
			SizeBytes:  4096,
		})
		require.NoError(t, err)
		assert.Equal(t, id, found)

		moved := testImage("c.jpg")
		moved.Path = "/elsewhere/c.jpg"
		same, err := s.AddImage(ctx, moved, nil)
		require.NoError(t, err)
		assert.Equal(t, id, same, "path is not part of the identity key")

		touched := testImage("c.jpg")
		touched.ModifiedAt = touched.ModifiedAt.Add(time.Hour)
		other, err := s.AddImage(ctx, touched, nil)
		require.NoError(t, err)
		assert.NotEqual(t, id, other, "a new modification time is a new image")
	})

	t.Run("InsertImageConflict", func(t *testing.T) {
		s := newStore(t)
		_, err := s.InsertImage(ctx, testImage("d.jpg"))
		require.NoError(t, err)

		_, err = s.InsertImage(ctx, testImage("d.jpg"))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("UpdateImageExposure", func(t *testing.T) {
		s := newStore(t)
		id, err := s.AddImage(ctx, testImage("e.jpg"), nil)
		require.NoError(t, err)

		taken := time.Date(2019, 3, 14, 10, 0, 0, 0, time.UTC)
		err = s.UpdateImageExposure(ctx, id, models.Exposure{
			Aperture:     ptr(2.8),
			ShutterSpeed: ptr(0.004),
			ISO:          ptr(200),
			DateTaken:    &taken,
		})
		require.NoError(t, err)

		img, err := s.GetImage(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, img.Aperture)
		assert.Equal(t, 2.8, *img.Aperture)
		require.NotNil(t, img.ISO)
		assert.Equal(t, 200, *img.ISO)
		require.NotNil(t, img.DateTaken)
		assert.True(t, taken.Equal(*img.DateTaken))
		assert.Equal(t, "e.jpg", img.Filename)

		timeline, err := s.Timeline(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimelineRow{{Period: "2019-03", Images: 1}}, timeline)

		exposure, err := s.ExposureFrequencies(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.ExposureRow{
			{Field: models.ExposureAperture, Value: "f/2.8", Images: 1},
			{Field: models.ExposureShutterSpeed, Value: "1/250", Images: 1},
			{Field: models.ExposureISO, Value: "200", Images: 1},
		}, exposure)

		err = s.UpdateImageExposure(ctx, uuid.New(), models.Exposure{ISO: ptr(100)})
		assert.Error(t, err)
	})

	t.Run("PersonByName", func(t *testing.T) {
		s := newStore(t)
		_, err := s.PersonByName(ctx, "Ada")
		assert.ErrorIs(t, err, ErrNotFound)

		id, err := s.AddPerson(ctx, "Ada")
		require.NoError(t, err)
		p, err := s.PersonByName(ctx, "Ada")
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)

		_, err = s.AddPerson(ctx, "Ada")
		require.NoError(t, err, "duplicate names are allowed")
		_, err = s.PersonByName(ctx, "Ada")
		assert.ErrorIs(t, err, ErrAmbiguousName)
	})

	t.Run("AddEncodingAssociation", func(t *testing.T) {
		s := newStore(t)
		person, err := s.AddPerson(ctx, "Grace")
		require.NoError(t, err)

		encID, err := s.AddEncoding(ctx, []float32{0.5, 0.5}, person, models.AssociatePerson)
		require.NoError(t, err)

		encs, err := s.EncodingsForPerson(ctx, person)
		require.NoError(t, err)
		require.Len(t, encs, 1)
		assert.Equal(t, encID, encs[0].ID)

		_, err = s.AddEncoding(ctx, []float32{1}, person, models.AssociationKind("album"))
		assert.ErrorIs(t, err, ErrInvalidAssociation)
		_, err = s.AddEncoding(ctx, []float32{1}, uuid.Nil, models.AssociateImage)
		assert.ErrorIs(t, err, ErrInvalidAssociation)
		_, err = s.LinkEncoding(ctx, encID, person, models.AssociationKind(""))
		assert.ErrorIs(t, err, ErrInvalidAssociation)
	})

	t.Run("LinkEncodingIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		imageID, err := s.AddImage(ctx, testImage("f.jpg"), [][]float32{{0.1, 0.1}, {0.9, 0.9}})
		require.NoError(t, err)
		encs, err := s.EncodingsForImage(ctx, imageID)
		require.NoError(t, err)
		person, err := s.AddPerson(ctx, "Linus")
		require.NoError(t, err)

		first, err := s.LinkEncoding(ctx, encs[0].ID, person, models.AssociatePerson)
		require.NoError(t, err)
		second, err := s.LinkEncoding(ctx, encs[0].ID, person, models.AssociatePerson)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		linked, err := s.EncodingsForPerson(ctx, person)
		require.NoError(t, err)
		assert.Len(t, linked, 1)

		_, err = s.LinkEncoding(ctx, encs[1].ID, person, models.AssociatePerson)
		require.NoError(t, err)

		paths, err := s.ImagesForPerson(ctx, person)
		require.NoError(t, err)
		assert.Equal(t, []string{"/photos/f.jpg"}, paths, "one path per image")

		perPerson, err := s.ImagesPerPerson(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.PersonImagesRow{{PersonName: "Linus", Images: 1}}, perPerson)
	})

	t.Run("AllPeopleLoadsEncodings", func(t *testing.T) {
		s := newStore(t)
		ada, err := s.AddPerson(ctx, "Ada")
		require.NoError(t, err)
		bob, err := s.AddPerson(ctx, "Bob")
		require.NoError(t, err)
		_, err = s.AddEncoding(ctx, []float32{1, 0}, ada, models.AssociatePerson)
		require.NoError(t, err)
		_, err = s.AddEncoding(ctx, []float32{0, 1}, ada, models.AssociatePerson)
		require.NoError(t, err)

		people, err := s.AllPeople(ctx)
		require.NoError(t, err)
		require.Len(t, people, 2)

		byID := map[uuid.UUID]models.Person{}
		for _, p := range people {
			byID[p.ID] = p
		}
		require.Len(t, byID[ada].Encodings, 2)
		assert.Equal(t, []float32{1, 0}, byID[ada].Encodings[0].Vector)
		assert.Equal(t, []float32{0, 1}, byID[ada].Encodings[1].Vector)
		assert.Empty(t, byID[bob].Encodings)
	})
}
