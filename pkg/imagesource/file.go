package imagesource

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes bounds a single upload when the caller passes no limit.
const DefaultMaxBytes int64 = 10 << 20

// extensionTypes covers image extensions the platform mime table may lack.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
}

// DeclaredImageType normalizes a declared content type and checks that it
// names an image. Parameters are stripped and the result is lower-cased.
func DeclaredImageType(declared string) (string, error) {
	if strings.TrimSpace(declared) == "" {
		return "", fmt.Errorf("%w: no content type declared", ErrUnsupportedFileType)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnsupportedFileType, declared, err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mediaType)
	}
	return mediaType, nil
}

// FromReader reads a user-selected file into a payload.
// The declared type is checked before any byte is read.
func FromReader(name, declaredType string, r io.Reader, maxBytes int64) (Payload, error) {
	mimeType, err := DeclaredImageType(declaredType)
	if err != nil {
		return Payload{}, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Payload{}, fmt.Errorf("imagesource: read %s: %w", name, err)
	}
	if int64(len(data)) > maxBytes {
		return Payload{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, maxBytes)
	}
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	return Payload{
		data:     data,
		mimeType: mimeType,
		source:   SourceFile,
		name:     name,
	}, nil
}

// FromFileHeader reads a multipart upload into a payload using the part's
// declared Content-Type.
func FromFileHeader(fh *multipart.FileHeader, maxBytes int64) (Payload, error) {
	if fh == nil {
		return Payload{}, fmt.Errorf("%w: no file", ErrEmptyFile)
	}
	if _, err := DeclaredImageType(fh.Header.Get("Content-Type")); err != nil {
		return Payload{}, err
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return Payload{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, fh.Filename, fh.Size, maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return Payload{}, fmt.Errorf("imagesource: open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	return FromReader(fh.Filename, fh.Header.Get("Content-Type"), f, maxBytes)
}

// FromPath reads a file from disk, declaring its type from the extension.
func FromPath(path string, maxBytes int64) (Payload, error) {
	declared := TypeByExtension(path)

	f, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("imagesource: %w", err)
	}
	defer f.Close()

	return FromReader(filepath.Base(path), declared, f, maxBytes)
}

// TypeByExtension returns the declared content type for a file name, or ""
// when the extension is unknown.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
