package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// imageToFloat32CHW resizes img to exactly targetW x targetH and converts it
// to CHW float32 with pixel = (pixel - mean) / std.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := imaging.Resize(img, targetW, targetH, imaging.Linear)
	w, h := targetW, targetH
	plane := w * h

	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4:]
			idx := y*w + x
			data[idx] = (float32(px[0]) - mean[0]) / std[0]
			data[plane+idx] = (float32(px[1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(px[2]) - mean[2]) / std[2]
		}
	}
	return data
}

// scaleLongSide resizes img so its longer side is size pixels, keeping the
// aspect ratio. Images are scaled up as well as down.
func scaleLongSide(img image.Image, size int) image.Image {
	b := img.Bounds()
	if size <= 0 || max(b.Dx(), b.Dy()) == size {
		return img
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, size, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, size, imaging.Lanczos)
}

// jitterOffsets are crop shifts as fractions of the face box size.
var jitterOffsets = [][2]float32{
	{0, 0},
	{0.04, 0}, {-0.04, 0}, {0, 0.04}, {0, -0.04},
	{0.04, 0.04}, {-0.04, -0.04}, {0.04, -0.04}, {-0.04, 0.04},
}

// faceCrops returns n padded crops of the face in bbox. The first is
// centred; the rest are shifted slightly. Crops that fall outside the
// image are dropped, so fewer than n may come back.
func faceCrops(img image.Image, bbox [4]float32, n int) []image.Image {
	if n < 1 {
		n = 1
	}

	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	var crops []image.Image
	for i := 0; i < n; i++ {
		off := jitterOffsets[i%len(jitterOffsets)]
		// Past the table, widen the shift so repeated offsets still differ.
		scale := float32(1 + i/len(jitterOffsets))
		dx, dy := off[0]*w*scale, off[1]*h*scale
		shifted := [4]float32{bbox[0] + dx, bbox[1] + dy, bbox[2] + dx, bbox[3] + dy}
		if crop := cropFace(img, shifted); crop != nil {
			crops = append(crops, crop)
		}
	}
	return crops
}

// cropFace extracts a face region with 10% padding on every side, clamped to
// the image. It returns nil for an empty region.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return nil
	}
	padW, padH := w*0.1, h*0.1

	rect := image.Rect(
		int(bbox[0]-padW), int(bbox[1]-padH),
		int(bbox[2]+padW), int(bbox[3]+padH),
	).Intersect(bounds)
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(img, rect)
}
