// Package imagesource normalizes the two ways an elephant photo reaches the
// service (a picked or dropped file, or a still captured from a camera) into
// a single immutable Payload that prediction backends consume.
package imagesource

import (
	"bytes"
	"encoding/base64"
	"io"
)

// Source identifies which acquisition path produced a payload.
type Source string

const (
	SourceFile   Source = "file"
	SourceCamera Source = "camera"
)

// Payload is an encoded image plus its MIME type.
// It is created once per user action and never modified afterwards.
type Payload struct {
	data     []byte
	mimeType string
	source   Source
	name     string
	width    int
	height   int
}

// Bytes returns a copy of the encoded image.
func (p Payload) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Reader returns a reader over the encoded image without copying it.
func (p Payload) Reader() io.Reader {
	return bytes.NewReader(p.data)
}

// Len returns the size of the encoded image in bytes.
func (p Payload) Len() int { return len(p.data) }

// MIMEType returns the content type, e.g. "image/jpeg".
func (p Payload) MIMEType() string { return p.mimeType }

// Source returns the acquisition path.
func (p Payload) Source() Source { return p.source }

// Name returns the original file name, or a generated one for captures.
func (p Payload) Name() string { return p.name }

// Size returns the pixel dimensions when the producer knew them (camera
// captures); file payloads report 0x0 because nothing is decoded here.
func (p Payload) Size() (width, height int) { return p.width, p.height }

// IsZero reports whether p is the zero value.
func (p Payload) IsZero() bool { return len(p.data) == 0 && p.mimeType == "" }

// DataURL returns the payload as a data URL for presenters.
func (p Payload) DataURL() string {
	return "data:" + p.mimeType + ";base64," + base64.StdEncoding.EncodeToString(p.data)
}
