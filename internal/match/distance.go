package match

import (
	"fmt"
	"math"
)

// Distance is the Euclidean norm of a-b. Vectors must have equal length.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector lengths %d and %d differ", ErrInvalidInput, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
