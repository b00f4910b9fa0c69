package onnx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

// DecodeImage decodes the payload. Undecodable bytes are
// predict.ErrInvalidImage.
func DecodeImage(payload imagesource.Payload) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(payload.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", predict.ErrInvalidImage, payload.MIMEType(), err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", predict.ErrInvalidImage)
	}
	return img, nil
}

// Preprocess resizes img to the model input and lays it out as normalized
// planar RGB.
func Preprocess(img image.Image, m Metadata) []float32 {
	size := uint(m.ImageSize)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			out[i] = (float32(r)/65535.0 - m.Mean[0]) / m.Std[0]
			out[plane+i] = (float32(g)/65535.0 - m.Mean[1]) / m.Std[1]
			out[2*plane+i] = (float32(b)/65535.0 - m.Mean[2]) / m.Std[2]
		}
	}
	return out
}

// Outcome converts raw head output into a percentage distribution rounded
// to one decimal.
func Outcome(h Head, raw []float32, logits bool) (classify.Outcome, error) {
	if len(raw) < len(h.Labels) {
		return classify.Outcome{}, fmt.Errorf("head %q: %d values for %d labels", h.Name, len(raw), len(h.Labels))
	}
	values := make([]float64, len(h.Labels))
	for i := range values {
		values[i] = float64(raw[i])
	}
	if logits {
		values = softmax(values)
	}

	set, _ := labelSet(h.Name)
	probs := make([]classify.Probability, len(h.Labels))
	for i, l := range h.Labels {
		label, _ := classify.CanonicalLabel(set, l)
		pct := math.Round(values[i]*1000) / 10
		probs[i] = classify.Probability{Class: label, Probability: math.Min(math.Max(pct, 0), 100)}
	}
	return classify.NewOutcome(probs), nil
}

func softmax(v []float64) []float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		maxV = math.Max(maxV, x)
	}
	var sum float64
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
