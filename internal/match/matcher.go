// Package match assigns the faces found in one image to known people.
package match

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wlockwood/lits/internal/models"
)

// DefaultTolerance is the largest distance, exclusive, still treated as the
// same person.
const DefaultTolerance = 0.6

var ErrInvalidInput = errors.New("invalid matcher input")

// Match is one person assigned to one unknown encoding.
type Match struct {
	Person   models.Person
	Encoding models.Encoding
	Distance float64
}

type candidate struct {
	person *models.Person
	vector []float32
}

// Best greedily assigns unknown encodings to known people.
//
// Unknown encodings are visited in the order given. Each takes the closest
// known encoding strictly within tolerance whose person has not already been
// taken earlier in this call; ties go to the person listed first. The result
// holds at most one match per person and per encoding, in visiting order.
// A later encoding never displaces an earlier one, even when it is closer.
func Best(known []models.Person, unknown []models.Encoding, tolerance float64) ([]Match, error) {
	if len(known) == 0 {
		return nil, fmt.Errorf("%w: no known people", ErrInvalidInput)
	}
	if len(unknown) == 0 {
		return nil, fmt.Errorf("%w: no unknown encodings", ErrInvalidInput)
	}

	var flat []candidate
	for i := range known {
		for _, enc := range known[i].Encodings {
			flat = append(flat, candidate{person: &known[i], vector: enc.Vector})
		}
	}

	taken := make(map[uuid.UUID]bool)
	var matches []Match
	for _, enc := range unknown {
		var best *candidate
		var bestDistance float64
		for i := range flat {
			c := &flat[i]
			if taken[c.person.ID] {
				continue
			}
			d, err := Distance(enc.Vector, c.vector)
			if err != nil {
				return nil, fmt.Errorf("encoding %s vs %q: %w", enc.ID, c.person.Name, err)
			}
			if d >= tolerance {
				continue
			}
			if best == nil || d < bestDistance {
				best, bestDistance = c, d
			}
		}
		if best == nil {
			continue
		}

		taken[best.person.ID] = true
		matches = append(matches, Match{Person: *best.person, Encoding: enc, Distance: bestDistance})
	}
	return matches, nil
}
