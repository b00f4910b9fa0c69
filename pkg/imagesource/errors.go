package imagesource

import "errors"

// Sentinel errors for acquisition failures.
var (
	// ErrUnsupportedFileType is returned when the declared type is not an image type.
	ErrUnsupportedFileType = errors.New("imagesource: unsupported file type")

	// ErrFileTooLarge is returned when the file exceeds the configured limit.
	ErrFileTooLarge = errors.New("imagesource: file too large")

	// ErrEmptyFile is returned when the file has no content.
	ErrEmptyFile = errors.New("imagesource: empty file")

	// ErrCaptureDeviceUnavailable is returned when no capture device can be
	// opened: permission denied, no device present, or the device is busy.
	ErrCaptureDeviceUnavailable = errors.New("imagesource: capture device unavailable")

	// ErrEmptyFrame is returned when a capture device delivers no pixels.
	ErrEmptyFrame = errors.New("imagesource: empty frame")
)
