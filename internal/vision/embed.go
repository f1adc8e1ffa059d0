package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFace w600k_r50 geometry.
const (
	embedInputSize = 112
	embedDim       = 512
	embedInput     = "input.1"
	embedOutput    = "683"
)

// Embedder maps aligned face crops to 512-dimensional ArcFace embeddings.
type Embedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inputW  int
	inputH  int
}

// NewEmbedder loads the ArcFace model. opts may be nil.
func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	e := &Embedder{inputW: embedInputSize, inputH: embedInputSize}

	var err error
	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embedInputSize, embedInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	e.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, embedDim))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{embedInput}, []string{embedOutput},
		[]ort.Value{e.input}, []ort.Value{e.output},
		opts,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return e, nil
}

// Extract embeds every crop of one face and returns the unit-length mean.
// Crops are CHW [3, 112, 112] tensors from preprocessForEmbedding.
func (e *Embedder) Extract(crops ...[]float32) ([]float32, error) {
	if len(crops) == 0 {
		return nil, fmt.Errorf("embed: no face crops")
	}

	mean := make([]float32, embedDim)
	for _, crop := range crops {
		copy(e.input.GetData(), crop)
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("run embedding: %w", err)
		}

		out := e.output.GetData()
		normalize(out)
		for i, v := range out {
			mean[i] += v
		}
	}
	normalize(mean)
	return mean, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

// normalize scales v to unit L2 length in place. A zero vector is left alone.
func normalize(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range v {
		v[i] *= inv
	}
}
