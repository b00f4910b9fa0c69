// Package session holds the state of one user's classification flow:
// the current image, the in-flight prediction and its outcome, and the
// camera stream. A generation counter ties every prediction to the action
// that started it so late answers for abandoned work are dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

// State is where a session is in its flow.
type State string

const (
	StateIdle       State = "idle"
	StateStreaming  State = "streaming"
	StatePredicting State = "predicting"
	StateReady      State = "ready"
	StateFailed     State = "failed"
	StateClosed     State = "closed"
)

// EventType distinguishes session notifications.
type EventType string

const (
	EventState  EventType = "state"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is emitted on every state change.
type Event struct {
	Type EventType
	View View
}

// Observer receives session counters.
type Observer interface {
	StaleDiscarded()
	CameraActive(delta int)
}

// Deps are shared by every session of a store.
type Deps struct {
	Predictor predict.Predictor
	// Opener may be nil when the host has no cameras.
	Opener camera.Opener
	// CameraConfig returns the capture settings for a new stream.
	CameraConfig func() camera.Config
	Catalog      *classify.Catalog
	// Timeout bounds each prediction; 0 leaves it to the predictor.
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
	// Notify is called with the session lock held and must not block or
	// call back into the session.
	Notify func(Event)
}

// ImageInfo describes the current payload without its bytes.
type ImageInfo struct {
	Name     string             `json:"name"`
	MIMEType string             `json:"mime_type"`
	Source   imagesource.Source `json:"source"`
	Bytes    int                `json:"bytes"`
	Width    int                `json:"width,omitempty"`
	Height   int                `json:"height,omitempty"`
}

// CameraInfo reports the live/offline camera status.
type CameraInfo struct {
	Active bool               `json:"active"`
	Device *camera.DeviceInfo `json:"device,omitempty"`
}

// View is a consistent snapshot of a session.
type View struct {
	ID          string                `json:"id"`
	State       State                 `json:"state"`
	Generation  uint64                `json:"generation"`
	Image       *ImageInfo            `json:"image,omitempty"`
	Result      *classify.Result      `json:"result,omitempty"`
	Description *classify.Description `json:"description,omitempty"`
	Error       *ErrorInfo            `json:"error,omitempty"`
	Camera      CameraInfo            `json:"camera"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Session is one user's flow. All methods are safe for concurrent use.
type Session struct {
	id     string
	deps   *Deps
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	payload imagesource.Payload
	result  *classify.Result
	err     error
	stream  *camera.Stream
	updated time.Time

	inflight sync.WaitGroup
}

func newSession(id string, deps *Deps) *Session {
	return &Session{
		id:      id,
		deps:    deps,
		logger:  deps.Logger.With("component", "session", "session", id),
		state:   StateIdle,
		updated: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// View returns a snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// WithView calls fn with the current view while holding the session lock,
// so no event is emitted between the snapshot and fn. fn must not block or
// call back into the session.
func (s *Session) WithView(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.viewLocked())
}

// Payload returns the current image, if any.
func (s *Session) Payload() (imagesource.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, !s.payload.IsZero()
}

// Submit replaces the current image and starts a prediction for it.
// Any earlier prediction is canceled and its answer will be discarded.
func (s *Session) Submit(payload imagesource.Payload) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.viewLocked(), ErrClosed
	}
	if payload.IsZero() {
		return s.viewLocked(), fmt.Errorf("%w: empty payload", imagesource.ErrEmptyFile)
	}

	s.stopCameraLocked()
	s.startLocked(payload)
	return s.viewLocked(), nil
}

// Retry submits the current image again. Only a failed session can retry.
func (s *Session) Retry() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.viewLocked(), ErrClosed
	}
	if s.state != StateFailed || s.payload.IsZero() {
		return s.viewLocked(), ErrNothingToRetry
	}
	s.startLocked(s.payload)
	return s.viewLocked(), nil
}

// Leave abandons the flow: in-flight work is canceled, the camera is
// released and the image and result are cleared.
func (s *Session) Leave() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.viewLocked()
	}
	s.resetLocked()
	s.setStateLocked(StateIdle)
	s.emitLocked(EventState)
	return s.viewLocked()
}

// Close leaves the flow for good and waits for in-flight work to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.resetLocked()
		s.setStateLocked(StateClosed)
		s.emitLocked(EventState)
	}
	s.mu.Unlock()

	s.inflight.Wait()
}

// StartCamera opens a camera stream. Failures leave the session usable
// and are reported as imagesource.ErrCaptureDeviceUnavailable.
func (s *Session) StartCamera(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.viewLocked(), ErrClosed
	}
	if s.stream != nil && s.stream.Active() {
		return s.viewLocked(), nil
	}

	s.resetLocked()

	if s.deps.Opener == nil {
		return s.failAcquisitionLocked(fmt.Errorf("%w: no camera support on this host", imagesource.ErrCaptureDeviceUnavailable))
	}

	cfg := camera.DefaultConfig()
	if s.deps.CameraConfig != nil {
		cfg = s.deps.CameraConfig()
	}
	stream := camera.NewStream(s.deps.Opener, cfg, s.deps.Logger)
	if err := stream.Start(ctx); err != nil {
		return s.failAcquisitionLocked(err)
	}

	s.stream = stream
	if s.deps.Observer != nil {
		s.deps.Observer.CameraActive(1)
	}
	s.setStateLocked(StateStreaming)
	s.emitLocked(EventState)
	return s.viewLocked(), nil
}

// Capture takes a still from the running camera, stops the camera and
// submits the still for prediction.
func (s *Session) Capture() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.viewLocked(), ErrClosed
	}
	if s.stream == nil {
		return s.viewLocked(), camera.ErrNotStreaming
	}

	payload, err := s.stream.Capture()
	if err != nil {
		s.stopCameraLocked()
		return s.failAcquisitionLocked(err)
	}

	s.stopCameraLocked()
	s.startLocked(payload)
	return s.viewLocked(), nil
}

// StopCamera releases the camera without capturing.
func (s *Session) StopCamera() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCameraLocked() && s.state == StateStreaming {
		s.setStateLocked(StateIdle)
		s.emitLocked(EventState)
	}
	return s.viewLocked()
}

// startLocked begins a new generation predicting payload.
func (s *Session) startLocked(payload imagesource.Payload) {
	s.invalidateLocked()

	s.payload = payload
	s.result = nil
	s.err = nil
	gen := s.gen

	var ctx context.Context
	var cancel context.CancelFunc
	if s.deps.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.deps.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancel = cancel

	s.setStateLocked(StatePredicting)
	s.emitLocked(EventState)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		result, err := s.deps.Predictor.Predict(ctx, payload)
		s.complete(gen, result, err)
	}()
}

// complete records a prediction outcome if it still belongs to the
// current generation.
func (s *Session) complete(gen uint64, result *classify.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state == StateClosed || errors.Is(err, context.Canceled) {
		if s.deps.Observer != nil {
			s.deps.Observer.StaleDiscarded()
		}
		s.logger.Debug("discarding stale prediction", "generation", gen, "current", s.gen)
		return
	}

	s.cancel = nil
	if err != nil {
		s.err = err
		s.setStateLocked(StateFailed)
		s.logger.Warn("prediction failed", "generation", gen, "error", err)
		s.emitLocked(EventError)
		return
	}

	s.result = result
	s.setStateLocked(StateReady)
	s.logger.Info("prediction ready",
		"generation", gen,
		"species", result.Species.Class,
		"confidence", result.Species.Confidence,
	)
	s.emitLocked(EventResult)
}

// invalidateLocked starts a new generation and cancels in-flight work.
func (s *Session) invalidateLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// resetLocked invalidates, stops the camera and clears the image.
func (s *Session) resetLocked() {
	s.invalidateLocked()
	s.stopCameraLocked()
	s.payload = imagesource.Payload{}
	s.result = nil
	s.err = nil
}

// stopCameraLocked releases the stream and reports whether one was held.
func (s *Session) stopCameraLocked() bool {
	if s.stream == nil {
		return false
	}
	if err := s.stream.Stop(); err != nil {
		s.logger.Warn("camera stop failed", "error", err)
	}
	s.stream = nil
	if s.deps.Observer != nil {
		s.deps.Observer.CameraActive(-1)
	}
	return true
}

// failAcquisitionLocked records an acquisition error without entering the
// failed state: there is nothing to retry.
func (s *Session) failAcquisitionLocked(err error) (View, error) {
	s.err = err
	s.setStateLocked(StateIdle)
	s.logger.Warn("image acquisition failed", "error", err)
	s.emitLocked(EventError)
	return s.viewLocked(), err
}

func (s *Session) setStateLocked(state State) {
	s.state = state
	s.updated = time.Now()
}

func (s *Session) emitLocked(t EventType) {
	if s.deps.Notify != nil {
		s.deps.Notify(Event{Type: t, View: s.viewLocked()})
	}
}

func (s *Session) viewLocked() View {
	v := View{
		ID:         s.id,
		State:      s.state,
		Generation: s.gen,
		Result:     s.result,
		UpdatedAt:  s.updated,
	}
	if !s.payload.IsZero() {
		w, h := s.payload.Size()
		v.Image = &ImageInfo{
			Name:     s.payload.Name(),
			MIMEType: s.payload.MIMEType(),
			Source:   s.payload.Source(),
			Bytes:    s.payload.Len(),
			Width:    w,
			Height:   h,
		}
	}
	if s.result != nil && s.deps.Catalog != nil {
		d := s.deps.Catalog.Describe(s.result.Species.Class)
		v.Description = &d
	}
	if s.err != nil {
		info := Describe(s.err)
		v.Error = &info
	}
	if s.stream != nil {
		if info, ok := s.stream.Device(); ok {
			v.Camera = CameraInfo{Active: true, Device: &info}
		}
	}
	return v
}
