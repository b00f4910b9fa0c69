package classify

import (
	"fmt"
	"strings"
)

// Species labels.
const (
	AfricanBushElephant   = "African Bush Elephant"
	AsianElephant         = "Asian Elephant"
	AfricanForestElephant = "African Forest Elephant"
)

// Gender labels.
const (
	Female = "Female"
	Male   = "Male"
)

// Age group labels.
const (
	Adult    = "Adult"
	Juvenile = "Juvenile"
	Calf     = "Calf"
)

// Label sets in model output order.
var (
	SpeciesLabels = []string{AfricanBushElephant, AsianElephant, AfricanForestElephant}
	GenderLabels  = []string{Female, Male}
	AgeLabels     = []string{Adult, Juvenile, Calf}
)

// CanonicalLabel matches name case-insensitively against set and returns
// the label as spelled in the set.
func CanonicalLabel(set []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, l := range set {
		if strings.EqualFold(l, name) {
			return l, true
		}
	}
	return "", false
}

// CheckLabels reports ErrInvalidResult when any class falls outside the
// known label sets.
func (r *Result) CheckLabels() error {
	for _, h := range []struct {
		o   Outcome
		set []string
	}{
		{r.Species, SpeciesLabels},
		{r.Gender, GenderLabels},
		{r.Age, AgeLabels},
	} {
		if _, ok := CanonicalLabel(h.set, h.o.Class); !ok {
			return invalidLabel(h.o.Class)
		}
		for _, p := range h.o.Probabilities {
			if _, ok := CanonicalLabel(h.set, p.Class); !ok {
				return invalidLabel(p.Class)
			}
		}
	}
	return nil
}

func invalidLabel(class string) error {
	return fmt.Errorf("%w: unknown label %q", ErrInvalidResult, class)
}

// SampleResult returns the fixed result the demo shows without a model.
func SampleResult() *Result {
	return &Result{
		Species: Outcome{
			Class:      AfricanBushElephant,
			Confidence: 92.3,
			Probabilities: []Probability{
				{Class: AfricanBushElephant, Probability: 92.3},
				{Class: AsianElephant, Probability: 5.2},
				{Class: AfricanForestElephant, Probability: 2.5},
			},
		},
		Gender: Outcome{
			Class:      Female,
			Confidence: 78.6,
			Probabilities: []Probability{
				{Class: Female, Probability: 78.6},
				{Class: Male, Probability: 21.4},
			},
		},
		Age: Outcome{
			Class:      Adult,
			Confidence: 88.9,
			Probabilities: []Probability{
				{Class: Adult, Probability: 88.9},
				{Class: Juvenile, Probability: 8.2},
				{Class: Calf, Probability: 2.9},
			},
		},
	}
}
