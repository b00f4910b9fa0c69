// Package classify defines the classification result an elephant photo
// produces, the label sets it draws from and the species catalog.
package classify

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidResult is returned when a result breaks its own invariants.
var ErrInvalidResult = errors.New("classify: invalid result")

// Tolerance for comparing a confidence with its distribution entry after
// a JSON round trip.
const Tolerance = 1e-6

// Probability is one entry of a distribution, as a percentage.
type Probability struct {
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
}

// Outcome is the chosen class of one head with its distribution.
type Outcome struct {
	Class         string        `json:"class"`
	Confidence    float64       `json:"confidence"`
	Probabilities []Probability `json:"probabilities"`
}

// Result is the full classification of one image.
type Result struct {
	Species Outcome `json:"species"`
	Gender  Outcome `json:"gender"`
	Age     Outcome `json:"age"`
}

// Validate checks every outcome. Distributions need not sum to 100.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidResult)
	}
	for _, h := range []struct {
		name string
		o    Outcome
	}{
		{"species", r.Species},
		{"gender", r.Gender},
		{"age", r.Age},
	} {
		if err := h.o.Validate(); err != nil {
			return fmt.Errorf("%s: %w", h.name, err)
		}
	}
	return nil
}

// Validate checks that the distribution is non-empty, every value is a
// percentage and the chosen class appears with its confidence.
func (o Outcome) Validate() error {
	if o.Class == "" {
		return fmt.Errorf("%w: empty class", ErrInvalidResult)
	}
	if len(o.Probabilities) == 0 {
		return fmt.Errorf("%w: empty distribution for %q", ErrInvalidResult, o.Class)
	}
	if !isPercent(o.Confidence) {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidResult, o.Confidence)
	}

	found := false
	for _, p := range o.Probabilities {
		if !isPercent(p.Probability) {
			return fmt.Errorf("%w: probability %v for %q out of range", ErrInvalidResult, p.Probability, p.Class)
		}
		if p.Class == o.Class && math.Abs(p.Probability-o.Confidence) <= Tolerance {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %q with confidence %v missing from distribution", ErrInvalidResult, o.Class, o.Confidence)
	}
	return nil
}

// Top returns the highest-probability entry. Ties go to the earlier entry.
func (o Outcome) Top() (Probability, bool) {
	if len(o.Probabilities) == 0 {
		return Probability{}, false
	}
	best := o.Probabilities[0]
	for _, p := range o.Probabilities[1:] {
		if p.Probability > best.Probability {
			best = p
		}
	}
	return best, true
}

// NewOutcome builds an outcome choosing the highest-probability class.
func NewOutcome(probs []Probability) Outcome {
	out := Outcome{Probabilities: probs}
	if top, ok := out.Top(); ok {
		out.Class = top.Class
		out.Confidence = top.Probability
	}
	return out
}

func isPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}
