package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wlockwood/lits/internal/storage"
	"github.com/wlockwood/lits/pkg/dto"
)

type ImageHandler struct {
	store storage.Store
}

func NewImageHandler(store storage.Store) *ImageHandler {
	return &ImageHandler{store: store}
}

func (h *ImageHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "image")
	if !ok {
		return
	}

	img, err := h.store.GetImage(c.Request.Context(), id)
	if err != nil {
		storeError(c, "image", err)
		return
	}

	resp := dto.ImageResponse{
		ID:           img.ID,
		Filename:     img.Filename,
		Path:         img.Path,
		ModifiedAt:   img.ModifiedAt.UTC().Format(timeLayout),
		SizeBytes:    img.SizeBytes,
		Aperture:     img.Aperture,
		ShutterSpeed: img.ShutterSpeed,
		ISO:          img.ISO,
		CreatedAt:    img.CreatedAt.UTC().Format(timeLayout),
	}
	if img.DateTaken != nil {
		resp.DateTaken = img.DateTaken.UTC().Format(timeLayout)
	}
	c.JSON(http.StatusOK, resp)
}

// Encodings lists the faces of an image in detection order.
func (h *ImageHandler) Encodings(c *gin.Context) {
	id, ok := parseID(c, "image")
	if !ok {
		return
	}

	if _, err := h.store.GetImage(c.Request.Context(), id); err != nil {
		storeError(c, "image", err)
		return
	}
	encs, err := h.store.EncodingsForImage(c.Request.Context(), id)
	if err != nil {
		storeError(c, "encodings", err)
		return
	}

	withVectors := c.Query("vectors") == "true"
	resp := make([]dto.EncodingResponse, 0, len(encs))
	for i, e := range encs {
		er := dto.EncodingResponse{
			ID:         e.ID,
			Position:   i,
			Dimensions: len(e.Vector),
			CreatedAt:  e.CreatedAt.UTC().Format(timeLayout),
		}
		if withVectors {
			er.Vector = e.Vector
		}
		resp = append(resp, er)
	}

	c.JSON(http.StatusOK, dto.EncodingListResponse{ImageID: id, Encodings: resp, Total: len(resp)})
}
