// Package detect finds elephants in a still before it is classified, so
// photos without one are rejected early instead of being forced into a
// species label.
package detect

import "errors"

// ErrNoModel is returned when the detector model cannot be loaded.
var ErrNoModel = errors.New("detect: model not available")

// ClassElephant is the detector label the gate looks for.
const ClassElephant = "elephant"

// Detection is one detected object.
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
	Class      string
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector finds objects in an encoded image.
type Detector interface {
	// Detect decodes the image and returns every object above the
	// detector's confidence threshold.
	Detect(encoded []byte) ([]Detection, error)

	Close() error
}

// Filter keeps the detections of one class.
func Filter(dets []Detection, class string) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Class == class {
			out = append(out, d)
		}
	}
	return out
}

// SelectBest picks the most prominent detection.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}
