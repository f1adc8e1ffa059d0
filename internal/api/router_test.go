package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlockwood/lits/internal/api/handlers"
	"github.com/wlockwood/lits/internal/api/ws"
	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/storage"
	"github.com/wlockwood/lits/pkg/dto"
)

const testKey = "secret"

type fixture struct {
	store  storage.Store
	router http.Handler
	ada    uuid.UUID
	image  uuid.UUID
}

func newFixture(t *testing.T, hub *ws.Hub, checks map[string]handlers.Check) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewSQLiteStore(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	taken := time.Date(2020, 8, 1, 10, 0, 0, 0, time.UTC)
	iso := 400
	imageID, err := s.AddImage(ctx, &models.Image{
		Filename:   "beach.jpg",
		Path:       "/photos/beach.jpg",
		ModifiedAt: time.Date(2020, 8, 2, 0, 0, 0, 0, time.UTC),
		SizeBytes:  2048,
		Exposure:   models.Exposure{ISO: &iso, DateTaken: &taken},
	}, [][]float32{{0.1, 0.2}, {0.9, 0.8}})
	require.NoError(t, err)

	ada, err := s.AddPerson(ctx, "Ada")
	require.NoError(t, err)
	encs, err := s.EncodingsForImage(ctx, imageID)
	require.NoError(t, err)
	_, err = s.LinkEncoding(ctx, encs[0].ID, ada, models.AssociatePerson)
	require.NoError(t, err)

	return &fixture{
		store:  s,
		router: NewRouter(RouterConfig{APIKey: testKey, Store: s, Checks: checks, Hub: hub}),
		ada:    ada,
		image:  imageID,
	}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestAuth(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "nope", "", http.StatusForbidden},
		{"header", testKey, "", http.StatusOK},
		{"query", "", "?api_key=" + testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/persons"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks need no key")
}

func TestPersons(t *testing.T) {
	f := newFixture(t, nil, nil)

	var list dto.PersonListResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/persons", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Ada", list.Persons[0].Name)
	assert.Equal(t, 1, list.Persons[0].EncodingCount)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/persons?name=Bob", &list))
	assert.Zero(t, list.Total)
	assert.NotNil(t, list.Persons)

	var person dto.PersonResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/persons/"+f.ada.String(), &person))
	assert.Equal(t, f.ada, person.ID)

	var images dto.PersonImagesResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/persons/"+f.ada.String()+"/images", &images))
	assert.Equal(t, []string{"/photos/beach.jpg"}, images.Paths)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/persons/"+f.ada.String()+"/images?offset=5", &images))
	assert.Empty(t, images.Paths)
	assert.Equal(t, 1, images.Total)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/persons/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/persons/"+uuid.NewString()+"/images", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/persons/not-a-uuid", nil))
}

func TestImages(t *testing.T) {
	f := newFixture(t, nil, nil)

	var img dto.ImageResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/images/"+f.image.String(), &img))
	assert.Equal(t, "beach.jpg", img.Filename)
	assert.Equal(t, "2020-08-01T10:00:00Z", img.DateTaken)
	require.NotNil(t, img.ISO)
	assert.Equal(t, 400, *img.ISO)

	var encs dto.EncodingListResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/images/"+f.image.String()+"/encodings", &encs))
	require.Equal(t, 2, encs.Total)
	assert.Equal(t, 0, encs.Encodings[0].Position)
	assert.Equal(t, 2, encs.Encodings[1].Dimensions)
	assert.Nil(t, encs.Encodings[0].Vector)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/images/"+f.image.String()+"/encodings?vectors=true", &encs))
	assert.Equal(t, []float32{0.1, 0.2}, encs.Encodings[0].Vector)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/images/"+uuid.NewString()+"/encodings", nil))
}

func TestReports(t *testing.T) {
	f := newFixture(t, nil, nil)

	var faces dto.FaceHistogramResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/reports/faces", &faces))
	assert.Equal(t, []models.FaceHistogramRow{{Faces: 2, Images: 1}}, faces.Rows)

	var people dto.PeopleReportResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/reports/people", &people))
	assert.Equal(t, []models.PersonImagesRow{{PersonName: "Ada", Images: 1}}, people.Rows)

	var timeline dto.TimelineResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/reports/timeline", &timeline))
	assert.Equal(t, []models.TimelineRow{{Period: "2020-08", Images: 1}}, timeline.Rows)

	var exposure dto.ExposureResponse
	require.Equal(t, http.StatusOK, f.get(t, "/v1/reports/exposure?field=iso", &exposure))
	assert.Equal(t, []models.ExposureRow{{Field: models.ExposureISO, Value: "400", Images: 1}}, exposure.Rows)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/reports/exposure?field=aperture", &exposure))
	assert.Empty(t, exposure.Rows)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/reports/exposure?field=flash", nil))
}

func TestReadyz(t *testing.T) {
	ok := newFixture(t, nil, map[string]handlers.Check{
		"nats": func(context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, ok.get(t, "/readyz", nil))

	down := newFixture(t, nil, map[string]handlers.Check{
		"nats": func(context.Context) error { return errors.New("nats not connected") },
	})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	down.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "nats not connected")
}

func TestMatchWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub()
	go hub.Run(ctx)

	f := newFixture(t, hub, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/matches?api_key=" + testKey
	all, _, err := websocket.DefaultDialer.Dial(base, nil)
	require.NoError(t, err)
	defer all.Close()
	other, _, err := websocket.DefaultDialer.Dial(base+"&person_id="+uuid.NewString(), nil)
	require.NoError(t, err)
	defer other.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	hub.BroadcastMatch(models.MatchEvent{
		ImageID:   f.image,
		Path:      "/photos/beach.jpg",
		Timestamp: time.Now(),
		Matches:   []models.MatchedFace{{PersonID: f.ada, PersonName: "Ada", Distance: 0.2}},
	})

	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev dto.WSEvent
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, ws.EventMatch, ev.Type)
	assert.Equal(t, f.image, ev.ImageID)
	require.Len(t, ev.Data.Matches, 1)
	assert.Equal(t, "Ada", ev.Data.Matches[0].PersonName)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "filtered client receives nothing")
}
