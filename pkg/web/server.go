// Package web serves the classification HTTP API and the per-session
// websocket event stream.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/internal/metrics"
	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/hub"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
	"github.com/teslashibe/go-elephant/pkg/protocol"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Config holds server settings.
type Config struct {
	// StaticDir, if set, is served at / for a browser presenter.
	StaticDir string
	// BodyLimit bounds request bodies in bytes.
	BodyLimit int
	// MaxUploadBytes bounds a single image.
	MaxUploadBytes int64
	// CameraTimeout bounds opening and warming up a camera.
	CameraTimeout time.Duration
}

// Deps are the components the server exposes.
type Deps struct {
	Store     *session.Store
	Predictor predict.Predictor
	Catalog   *classify.Catalog
	Cameras   *camera.Manager
	// Opener lists devices; nil when the host has no camera support.
	Opener  camera.Opener
	Hub     *hub.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Catalog == nil {
		deps.Catalog = classify.DefaultCatalog()
	}
	if deps.Cameras == nil {
		deps.Cameras = camera.NewManager(camera.DefaultConfig())
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = imagesource.DefaultMaxBytes
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = int(cfg.MaxUploadBytes) + 1<<20
	}
	if cfg.CameraTimeout <= 0 {
		cfg.CameraTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-elephant",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	// CORS for browser presenters on another origin
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	// API routes
	api := app.Group("/api")
	api.Post("/predict", s.handlePredict)

	sessions := api.Group("/sessions")
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleDeleteSession)
	sessions.Post("/:id/image", s.handleSubmitImage)
	sessions.Post("/:id/retry", s.handleRetry)
	sessions.Post("/:id/leave", s.handleLeave)
	sessions.Post("/:id/camera/start", s.handleCameraStart)
	sessions.Post("/:id/camera/capture", s.handleCameraCapture)
	sessions.Post("/:id/camera/stop", s.handleCameraStop)

	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Put("/camera/config", s.handleUpdateCameraConfig)
	api.Get("/camera/presets", s.handleListPresets)
	api.Get("/camera/devices", s.handleListDevices)

	api.Get("/species", s.handleListSpecies)
	api.Get("/species/:name", s.handleGetSpecies)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", s.requireSession, websocket.New(s.handleSessionWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the fiber app, e.g. for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve runs the hub and the HTTP server on ln until ctx is done, then
// shuts both down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.deps.Hub != nil {
		g.Go(func() error {
			s.deps.Hub.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		return s.app.Listener(ln)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Notifier returns a session notify hook that publishes every event to the
// session's websocket topic. It never blocks.
func Notifier(h *hub.Hub, logger *slog.Logger) func(session.Event) {
	if logger == nil {
		logger = log.Discard()
	}
	return func(ev session.Event) {
		msg, err := protocol.NewEventMessage(ev)
		if err != nil {
			logger.Warn("failed to encode session event", "error", err)
			return
		}
		if err := h.PublishJSON(ev.View.ID, msg); err != nil {
			logger.Warn("failed to encode session event", "error", err)
		}
	}
}

// handleError renders every error as {error, message, retryable}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	info := session.Describe(err)
	status := statusOf(info.Code)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		info = fiberErrorInfo(fe)
	}

	if status >= fiber.StatusInternalServerError && info.Code == session.CodeInternal {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("request rejected", "method", c.Method(), "path", c.Path(), "code", info.Code, "error", err)
	}
	return c.Status(status).JSON(info)
}

// statusOf maps an error code onto an HTTP status.
func statusOf(code string) int {
	switch code {
	case session.CodeUnsupportedFileType:
		return fiber.StatusUnsupportedMediaType
	case session.CodeFileTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case session.CodeEmptyFile, session.CodeBadRequest:
		return fiber.StatusBadRequest
	case session.CodeCaptureDeviceUnavailable, session.CodeServiceUnavailable:
		return fiber.StatusServiceUnavailable
	case session.CodeInvalidImage, session.CodeUnclassifiable:
		return fiber.StatusUnprocessableEntity
	case session.CodeNotFound:
		return fiber.StatusNotFound
	case session.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func fiberErrorInfo(fe *fiber.Error) session.ErrorInfo {
	switch fe.Code {
	case fiber.StatusRequestEntityTooLarge:
		return session.Describe(imagesource.ErrFileTooLarge)
	case fiber.StatusNotFound:
		return session.ErrorInfo{Code: session.CodeNotFound, Message: fe.Message}
	case fiber.StatusInternalServerError:
		return session.Describe(fe)
	default:
		if fe.Code < fiber.StatusInternalServerError {
			return session.ErrorInfo{Code: session.CodeBadRequest, Message: fe.Message}
		}
		return session.ErrorInfo{Code: session.CodeInternal, Message: fe.Message}
	}
}
