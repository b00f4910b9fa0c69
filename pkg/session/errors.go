package session

import (
	"context"
	"errors"

	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session: not found")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrNothingToRetry is returned by Retry outside the failed state.
	ErrNothingToRetry = errors.New("session: nothing to retry")
)

// Error codes shared by the API and the event stream.
const (
	CodeUnsupportedFileType      = "unsupported_file_type"
	CodeFileTooLarge             = "file_too_large"
	CodeEmptyFile                = "empty_file"
	CodeCaptureDeviceUnavailable = "capture_device_unavailable"
	CodeInvalidImage             = "invalid_image"
	CodeServiceUnavailable       = "service_unavailable"
	CodeUnclassifiable           = "unclassifiable"
	CodeNotFound                 = "not_found"
	CodeBadRequest               = "bad_request"
	CodeConflict                 = "conflict"
	CodeInternal                 = "internal_error"
)

// ErrorInfo is an error as presenters show it.
type ErrorInfo struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Describe maps any error onto a code and an actionable message.
func Describe(err error) ErrorInfo {
	switch {
	case err == nil:
		return ErrorInfo{}
	case errors.Is(err, imagesource.ErrUnsupportedFileType):
		return ErrorInfo{CodeUnsupportedFileType, "Please upload an image file (JPEG, PNG, GIF or WebP).", false}
	case errors.Is(err, imagesource.ErrFileTooLarge):
		return ErrorInfo{CodeFileTooLarge, "The image is too large. Please choose a smaller file.", false}
	case errors.Is(err, imagesource.ErrEmptyFile):
		return ErrorInfo{CodeEmptyFile, "The file is empty. Please choose another image.", false}
	case errors.Is(err, imagesource.ErrCaptureDeviceUnavailable), errors.Is(err, imagesource.ErrEmptyFrame):
		return ErrorInfo{CodeCaptureDeviceUnavailable, "Unable to access camera. Please check permissions or try uploading a photo instead.", false}
	case errors.Is(err, camera.ErrNotStreaming):
		return ErrorInfo{CodeConflict, "The camera is not running. Start the camera before capturing.", false}
	case errors.Is(err, predict.ErrInvalidImage):
		return ErrorInfo{CodeInvalidImage, "The image could not be read. Please try a different photo.", false}
	case errors.Is(err, predict.ErrUnclassifiable):
		return ErrorInfo{CodeUnclassifiable, "No elephant could be identified with confidence. Try a clearer photo of a single elephant.", true}
	case errors.Is(err, predict.ErrServiceUnavailable), errors.Is(err, predict.ErrNoBackend),
		errors.Is(err, classify.ErrInvalidResult), errors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{CodeServiceUnavailable, "The classifier is unavailable right now. Please try again in a moment.", true}
	case errors.Is(err, ErrNotFound):
		return ErrorInfo{CodeNotFound, "Session not found. It may have expired; start a new one.", false}
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNothingToRetry):
		return ErrorInfo{CodeConflict, err.Error(), false}
	default:
		return ErrorInfo{CodeInternal, "Something went wrong. Please try again.", false}
	}
}
