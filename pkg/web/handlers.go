package web

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// uploadField is the multipart field carrying the image.
const uploadField = "image"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	BackendHealthy bool   `json:"backend_healthy"`
	Error          string `json:"error,omitempty"`
}

// PredictResponse is returned by POST /api/predict.
type PredictResponse struct {
	Result      *classify.Result     `json:"result"`
	Description classify.Description `json:"description"`
}

// handleHealth reports the service and backend health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok"}
	if s.deps.Predictor == nil {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	resp.Backend = s.deps.Predictor.Name()
	if err := s.deps.Predictor.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	resp.BackendHealthy = true
	return c.JSON(resp)
}

// handlePredict classifies an upload synchronously, outside any session
func (s *Server) handlePredict(c *fiber.Ctx) error {
	payload, err := s.readUpload(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Predictor.Predict(c.UserContext(), payload)
	if err != nil {
		return err
	}
	return c.JSON(PredictResponse{
		Result:      result,
		Description: s.deps.Catalog.Describe(result.Species.Class),
	})
}

// readUpload turns the multipart image field into a payload.
func (s *Server) readUpload(c *fiber.Ctx) (imagesource.Payload, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		s.reject(session.CodeBadRequest)
		return imagesource.Payload{}, fiber.NewError(fiber.StatusBadRequest, "Expected a multipart upload in the \"image\" field.")
	}

	payload, err := imagesource.FromFileHeader(fh, s.cfg.MaxUploadBytes)
	if err != nil {
		s.reject(session.Describe(err).Code)
		return imagesource.Payload{}, err
	}
	return payload, nil
}

func (s *Server) reject(code string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RejectUpload(code)
	}
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) lookup(c *fiber.Ctx) (*session.Session, error) {
	return s.deps.Store.Get(c.Params("id"))
}

// handleCreateSession starts a new idle session
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.deps.Store.Create()
	return c.Status(fiber.StatusCreated).JSON(sess.View())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.View())
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.deps.Store.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSubmitImage replaces the session image and starts a prediction
func (s *Server) handleSubmitImage(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	payload, err := s.readUpload(c)
	if err != nil {
		return err
	}
	view, err := sess.Submit(payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(view)
}

func (s *Server) handleRetry(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	view, err := sess.Retry()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(view)
}

func (s *Server) handleLeave(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Leave())
}

func (s *Server) handleCameraStart(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.CameraTimeout)
	defer cancel()

	view, err := sess.StartCamera(ctx)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) handleCameraCapture(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	view, err := sess.Capture()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(view)
}

func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.StopCamera())
}

// =============================================================================
// Camera settings
// =============================================================================

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.deps.Cameras.GetConfigJSON())
}

// handleUpdateCameraConfig applies a partial update; the next stream uses it
func (s *Server) handleUpdateCameraConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Expected a JSON object of camera settings.")
	}
	if err := s.deps.Cameras.UpdateConfig(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.logger.Info("camera config updated", "config", s.deps.Cameras.GetConfig())
	return c.JSON(s.deps.Cameras.GetConfigJSON())
}

func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": camera.PresetNames(),
		"configs": camera.Presets(),
	})
}

func (s *Server) handleListDevices(c *fiber.Ctx) error {
	if s.deps.Opener == nil {
		return c.JSON(fiber.Map{"devices": []camera.DeviceInfo{}})
	}
	devices, err := s.deps.Opener.Devices()
	if err != nil {
		return errors.Join(imagesource.ErrCaptureDeviceUnavailable, err)
	}
	if devices == nil {
		devices = []camera.DeviceInfo{}
	}
	return c.JSON(fiber.Map{"devices": devices})
}

// =============================================================================
// Species
// =============================================================================

func (s *Server) handleListSpecies(c *fiber.Ctx) error {
	return c.JSON(s.deps.Catalog.List())
}

// handleGetSpecies describes one species; unknown names get the fallback text
func (s *Server) handleGetSpecies(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed species name.")
	}
	return c.JSON(s.deps.Catalog.Describe(name))
}
