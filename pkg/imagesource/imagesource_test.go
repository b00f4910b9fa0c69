package imagesource

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeclaredImageType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		want     string
		wantErr  error
	}{
		{"jpeg", "image/jpeg", "image/jpeg", nil},
		{"upper case with params", "Image/PNG; charset=binary", "image/png", nil},
		{"webp", "image/webp", "image/webp", nil},
		{"pdf", "application/pdf", "", ErrUnsupportedFileType},
		{"text", "text/plain", "", ErrUnsupportedFileType},
		{"empty", "", "", ErrUnsupportedFileType},
		{"garbage", ";;;", "", ErrUnsupportedFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeclaredImageType(tt.declared)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFromReaderPreservesDeclaredType(t *testing.T) {
	for _, declared := range []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic"} {
		t.Run(declared, func(t *testing.T) {
			content := []byte("encoded-" + declared)
			p, err := FromReader("elephant", declared, bytes.NewReader(content), 0)
			if err != nil {
				t.Fatalf("FromReader failed: %v", err)
			}
			if p.MIMEType() != declared {
				t.Errorf("expected MIME %q, got %q", declared, p.MIMEType())
			}
			if !bytes.Equal(p.Bytes(), content) {
				t.Error("payload bytes differ from source")
			}
			if p.Source() != SourceFile {
				t.Errorf("expected source file, got %s", p.Source())
			}
		})
	}
}

func TestFromReaderRejectsPDF(t *testing.T) {
	read := false
	r := readerFunc(func(b []byte) (int, error) {
		read = true
		return 0, io.EOF
	})

	p, err := FromReader("document.pdf", "application/pdf", r, 0)
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	if !p.IsZero() {
		t.Error("expected no payload")
	}
	if read {
		t.Error("rejected file should not be read")
	}
}

func TestFromReaderLimits(t *testing.T) {
	_, err := FromReader("big.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 11)), 10)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}

	p, err := FromReader("exact.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 10)), 10)
	if err != nil {
		t.Fatalf("file at the limit should pass: %v", err)
	}
	if p.Len() != 10 {
		t.Errorf("expected 10 bytes, got %d", p.Len())
	}

	_, err = FromReader("empty.png", "image/png", strings.NewReader(""), 10)
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got %v", err)
	}
}

func TestPayloadIsImmutable(t *testing.T) {
	p, err := FromReader("a.png", "image/png", strings.NewReader("abc"), 0)
	if err != nil {
		t.Fatal(err)
	}
	b := p.Bytes()
	b[0] = 'z'
	if string(p.Bytes()) != "abc" {
		t.Error("mutating Bytes() result changed the payload")
	}
	if got := p.DataURL(); got != "data:image/png;base64,YWJj" {
		t.Errorf("unexpected data URL %q", got)
	}
}

func TestFromFileHeader(t *testing.T) {
	fh := multipartFile(t, "herd.png", "image/png", []byte("png-bytes"))
	p, err := FromFileHeader(fh, 1024)
	if err != nil {
		t.Fatalf("FromFileHeader failed: %v", err)
	}
	if p.MIMEType() != "image/png" || p.Name() != "herd.png" {
		t.Errorf("unexpected payload %s %s", p.MIMEType(), p.Name())
	}

	fh = multipartFile(t, "document.pdf", "application/pdf", []byte("%PDF-1.7"))
	if _, err := FromFileHeader(fh, 1024); !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}

	fh = multipartFile(t, "huge.jpg", "image/jpeg", bytes.Repeat([]byte{1}, 64))
	if _, err := FromFileHeader(fh, 32); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Tusker.JPG")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := FromPath(path, 0)
	if err != nil {
		t.Fatalf("FromPath failed: %v", err)
	}
	if p.MIMEType() != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", p.MIMEType())
	}

	doc := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(doc, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromPath(doc, 0); !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestFromFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(10, 20, 74, 68))
	for y := frame.Rect.Min.Y; y < frame.Rect.Max.Y; y++ {
		for x := frame.Rect.Min.X; x < frame.Rect.Max.X; x++ {
			frame.Set(x, y, color.RGBA{R: 120, G: 110, B: 100, A: 255})
		}
	}

	p, err := FromFrame(frame, 80)
	if err != nil {
		t.Fatalf("FromFrame failed: %v", err)
	}
	if p.MIMEType() != "image/jpeg" || p.Source() != SourceCamera {
		t.Errorf("unexpected payload %s/%s", p.MIMEType(), p.Source())
	}

	w, h := p.Size()
	if w != 64 || h != 48 {
		t.Errorf("expected native 64x48, got %dx%d", w, h)
	}

	decoded, err := jpeg.Decode(p.Reader())
	if err != nil {
		t.Fatalf("payload is not a JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("decoded size %v", decoded.Bounds())
	}
}

func TestFromFrameEmpty(t *testing.T) {
	if _, err := FromFrame(nil, 0); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := FromFrame(image.NewRGBA(image.Rect(0, 0, 0, 0)), 0); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(b []byte) (int, error) { return f(b) }

// multipartFile builds a real multipart.FileHeader by parsing a request.
func multipartFile(t *testing.T, name, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="image"; filename="` + name + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.Close()

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return req.MultipartForm.File["image"][0]
}
