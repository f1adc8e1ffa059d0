package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/observability"
)

// Detection input sizes per model quality.
var qualitySizes = map[string]int{
	"small": 320,
	"large": 640,
}

// Extractor turns image pixels into one embedding per detected face.
// ONNX sessions own fixed tensors, so calls are serialised.
type Extractor struct {
	mu        sync.Mutex
	detectors map[string]*Detector
	embedder  *Embedder
	resizeTo  int
}

// NewExtractor loads the detection model at every quality and the
// embedding model. The ONNX runtime must already be initialised.
func NewExtractor(cfg config.ExtractionConfig) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	e := &Extractor{detectors: make(map[string]*Detector), resizeTo: cfg.ResizeTo}
	for quality, size := range qualitySizes {
		slog.Info("loading detection model", "path", detPath, "quality", quality, "size", size)
		det, err := NewDetector(detPath, size, float32(cfg.DetThreshold), float32(cfg.NMSThreshold), nil)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("load detector %s: %w", quality, err)
		}
		e.detectors[quality] = det
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	e.embedder = emb

	return e, nil
}

// Extract detects faces in img and returns their embeddings in detection
// order, most confident first. jitter is the number of crops averaged per
// face; quality selects the detection resolution ("small" or "large").
// The context is checked between faces.
func (e *Extractor) Extract(ctx context.Context, img image.Image, jitter int, quality string) ([][]float32, error) {
	det, ok := e.detectors[quality]
	if !ok {
		return nil, fmt.Errorf("unknown model quality %q", quality)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	img = scaleLongSide(img, e.resizeTo)
	bounds := img.Bounds()
	detInput := preprocessForDetection(img, det.inputW, det.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	detections, err := det.Detect(detInput, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	vectors := make([][]float32, 0, len(detections))
	for _, d := range detections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		crops := faceCrops(img, shiftBox(d.BBox, bounds.Min), jitter)
		if len(crops) == 0 {
			continue
		}
		inputs := make([][]float32, len(crops))
		for i, crop := range crops {
			inputs[i] = preprocessForEmbedding(crop, e.embedder.inputW, e.embedder.inputH)
		}

		start = time.Now()
		emb, err := e.embedder.Extract(inputs...)
		if err != nil {
			return nil, err
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		vectors = append(vectors, emb)
	}
	return vectors, nil
}

// shiftBox moves detector coordinates, which start at 0, into image space.
func shiftBox(b [4]float32, min image.Point) [4]float32 {
	x, y := float32(min.X), float32(min.Y)
	return [4]float32{b[0] + x, b[1] + y, b[2] + x, b[3] + y}
}

// Close releases all ONNX sessions.
func (e *Extractor) Close() {
	for _, d := range e.detectors {
		d.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}
