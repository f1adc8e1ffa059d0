package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestScaleLongSide(t *testing.T) {
	tests := []struct {
		name       string
		w, h, size int
		wantW      int
		wantH      int
	}{
		{"landscape down", 4000, 3000, 1250, 1250, 938},
		{"portrait down", 3000, 4000, 1250, 938, 1250},
		{"small up", 500, 250, 1250, 1250, 625},
		{"unchanged", 1250, 800, 1250, 1250, 800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := scaleLongSide(image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.size)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestImageToFloat32CHW(t *testing.T) {
	img := solid(8, 8, color.NRGBA{R: 255, G: 127, B: 0, A: 255})
	data := preprocessForEmbedding(img, 4, 2)
	require.Len(t, data, 3*4*2)

	plane := 4 * 2
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, -0.0039, data[plane], 1e-3)
	assert.InDelta(t, -1.0, data[2*plane], 1e-6)
}

func TestCropFace(t *testing.T) {
	img := solid(100, 100, color.NRGBA{A: 255})

	crop := cropFace(img, [4]float32{40, 40, 60, 60})
	require.NotNil(t, crop)
	assert.Equal(t, 24, crop.Bounds().Dx(), "10% padding per side")

	edge := cropFace(img, [4]float32{90, 90, 110, 110})
	require.NotNil(t, edge)
	assert.Equal(t, 12, edge.Bounds().Dx(), "clamped to the image")

	assert.Nil(t, cropFace(img, [4]float32{50, 50, 50, 60}))
	assert.Nil(t, cropFace(img, [4]float32{200, 200, 220, 220}))
}

func TestFaceCrops(t *testing.T) {
	img := solid(200, 200, color.NRGBA{A: 255})
	box := [4]float32{50, 50, 150, 150}

	assert.Len(t, faceCrops(img, box, 0), 1)
	assert.Len(t, faceCrops(img, box, 1), 1)
	assert.Len(t, faceCrops(img, box, 5), 5)
	assert.Len(t, faceCrops(img, box, 12), 12)
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}
	kept := nms(dets, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
}

func box(x1, y1, x2, y2 float32) Detection {
	return Detection{BBox: [4]float32{x1, y1, x2, y2}}
}

func TestIOU(t *testing.T) {
	assert.Equal(t, float32(1), iou(box(0, 0, 2, 2), box(0, 0, 2, 2)))
	assert.Equal(t, float32(0), iou(box(0, 0, 1, 1), box(2, 2, 3, 3)))
	assert.Equal(t, float32(0), iou(box(0, 0, 1, 1), box(1, 0, 2, 1)), "touching edges")
	assert.InDelta(t, 1.0/7.0, iou(box(0, 0, 2, 2), box(1, 1, 3, 3)), 1e-6)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
