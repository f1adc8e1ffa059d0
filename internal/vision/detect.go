package vision

import (
	"fmt"
	"slices"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in pixel coordinates of the
// image passed to Detect.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

func (d Detection) area() float32 {
	return (d.BBox[2] - d.BBox[0]) * (d.BBox[3] - d.BBox[1])
}

// Detector runs RetinaFace (det_10g) through ONNX Runtime at one fixed
// square input size. Landmark outputs are not requested.
type Detector struct {
	session      *ort.AdvancedSession
	input        *ort.Tensor[float32]
	scores       []*ort.Tensor[float32]
	boxes        []*ort.Tensor[float32]
	threshold    float32
	nmsThreshold float32
	inputW       int
	inputH       int
}

// Feature map strides of det_10g, and how many anchors sit on each cell.
var strides = []int{8, 16, 32}

const anchorsPerCell = 2

// det_10g output tensor names, one per stride.
var (
	scoreOutputs = []string{"448", "471", "494"}
	bboxOutputs  = []string{"451", "474", "497"}
)

// NewDetector loads the model for a size x size input. size must be a
// multiple of 32. opts may be nil.
func NewDetector(modelPath string, size int, threshold, nmsThreshold float32, opts *ort.SessionOptions) (*Detector, error) {
	if size <= 0 || size%32 != 0 {
		return nil, fmt.Errorf("detector input size %d is not a positive multiple of 32", size)
	}

	d := &Detector{threshold: threshold, nmsThreshold: nmsThreshold, inputW: size, inputH: size}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Outputs carry no batch dimension: [cells*anchors, 1] scores and
	// [cells*anchors, 4] box distances per stride.
	var names []string
	var values []ort.Value
	for i, stride := range strides {
		n := int64(anchorCount(size, stride))

		score, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", scoreOutputs[i], err)
		}
		d.scores = append(d.scores, score)

		box, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", bboxOutputs[i], err)
		}
		d.boxes = append(d.boxes, box)

		names = append(names, scoreOutputs[i], bboxOutputs[i])
		values = append(values, score, box)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{d.input}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

func anchorCount(size, stride int) int {
	cells := size / stride
	return cells * cells * anchorsPerCell
}

// Detect runs the model on a CHW tensor of the detector's input size and
// returns faces scaled to origW x origH, most confident first.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	return nms(d.decode(origW, origH), d.nmsThreshold), nil
}

// decode turns anchor scores and edge distances into boxes above the
// confidence threshold.
func (d *Detector) decode(origW, origH int) []Detection {
	sx := float32(origW) / float32(d.inputW)
	sy := float32(origH) / float32(d.inputH)
	maxX, maxY := float32(origW), float32(origH)

	var out []Detection
	for i, stride := range strides {
		scores := d.scores[i].GetData()
		boxes := d.boxes[i].GetData()
		cols := d.inputW / stride
		st := float32(stride)

		for idx, score := range scores {
			if score < d.threshold {
				continue
			}
			cell := idx / anchorsPerCell
			ax := float32(cell%cols) * st
			ay := float32(cell/cols) * st
			b := boxes[idx*4 : idx*4+4]

			out = append(out, Detection{
				BBox: [4]float32{
					clamp((ax-b[0]*st)*sx, 0, maxX),
					clamp((ay-b[1]*st)*sy, 0, maxY),
					clamp((ax+b[2]*st)*sx, 0, maxX),
					clamp((ay+b[3]*st)*sy, 0, maxY),
				},
				Confidence: score,
			})
		}
	}
	return out
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.scores {
		t.Destroy()
	}
	for _, t := range d.boxes {
		t.Destroy()
	}
}

// nms sorts by confidence and drops every box that overlaps a more
// confident one by more than iouThreshold.
func nms(dets []Detection, iouThreshold float32) []Detection {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	var kept []Detection
	for _, cand := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k, cand) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b Detection) float32 {
	w := min(a.BBox[2], b.BBox[2]) - max(a.BBox[0], b.BBox[0])
	h := min(a.BBox[3], b.BBox[3]) - max(a.BBox[1], b.BBox[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
