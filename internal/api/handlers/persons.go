package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/storage"
	"github.com/wlockwood/lits/pkg/dto"
)

type PersonHandler struct {
	store storage.Store
}

func NewPersonHandler(store storage.Store) *PersonHandler {
	return &PersonHandler{store: store}
}

func personResponse(p models.Person) dto.PersonResponse {
	return dto.PersonResponse{
		ID:            p.ID,
		Name:          p.Name,
		EncodingCount: len(p.Encodings),
		CreatedAt:     p.CreatedAt.UTC().Format(timeLayout),
	}
}

// List returns every known person, optionally filtered by exact ?name=.
func (h *PersonHandler) List(c *gin.Context) {
	people, err := h.store.AllPeople(c.Request.Context())
	if err != nil {
		storeError(c, "persons", err)
		return
	}

	name := c.Query("name")
	resp := make([]dto.PersonResponse, 0, len(people))
	for _, p := range people {
		if name != "" && p.Name != name {
			continue
		}
		resp = append(resp, personResponse(p))
	}

	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "person")
	if !ok {
		return
	}

	person, err := h.store.GetPerson(c.Request.Context(), id)
	if err != nil {
		storeError(c, "person", err)
		return
	}

	c.JSON(http.StatusOK, personResponse(*person))
}

// Images lists the paths of images in which the person was matched.
func (h *PersonHandler) Images(c *gin.Context) {
	id, ok := parseID(c, "person")
	if !ok {
		return
	}

	if _, err := h.store.GetPerson(c.Request.Context(), id); err != nil {
		storeError(c, "person", err)
		return
	}
	paths, err := h.store.ImagesForPerson(c.Request.Context(), id)
	if err != nil {
		storeError(c, "images", err)
		return
	}

	from, to := page(c, len(paths))
	c.JSON(http.StatusOK, dto.PersonImagesResponse{
		PersonID: id,
		Paths:    append([]string{}, paths[from:to]...),
		Total:    len(paths),
	})
}
