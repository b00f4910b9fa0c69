package imagesource

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is used when a capture asks for quality 0.
const DefaultJPEGQuality = 92

// FromFrame renders a live frame into a still buffer of the frame's native
// resolution and encodes it as JPEG.
func FromFrame(frame image.Image, quality int) (Payload, error) {
	if frame == nil {
		return Payload{}, ErrEmptyFrame
	}
	bounds := frame.Bounds()
	if bounds.Empty() {
		return Payload{}, ErrEmptyFrame
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	still := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(still, still.Bounds(), frame, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, still, &jpeg.Options{Quality: quality}); err != nil {
		return Payload{}, fmt.Errorf("imagesource: encode still: %w", err)
	}

	return Payload{
		data:     buf.Bytes(),
		mimeType: "image/jpeg",
		source:   SourceCamera,
		name:     fmt.Sprintf("capture-%d.jpg", time.Now().UnixMilli()),
		width:    bounds.Dx(),
		height:   bounds.Dy(),
	}, nil
}
