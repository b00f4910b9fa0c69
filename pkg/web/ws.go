package web

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-elephant/pkg/hub"
	"github.com/teslashibe/go-elephant/pkg/protocol"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// requireSession rejects websocket upgrades for unknown sessions before
// the handshake.
func (s *Server) requireSession(c *fiber.Ctx) error {
	if _, err := s.deps.Store.Get(c.Params("id")); err != nil {
		return err
	}
	return c.Next()
}

// handleSessionWS streams a session's events and accepts commands
func (s *Server) handleSessionWS(conn *websocket.Conn) {
	id := conn.Params("id")
	sess, err := s.deps.Store.Get(id)
	if err != nil {
		conn.Close()
		return
	}
	if s.deps.Hub == nil {
		conn.Close()
		return
	}

	client := hub.NewClient(s.deps.Hub, conn, id)
	client.OnRegister = func(c *hub.Client) {
		// queued under the session lock so later events follow it
		sess.WithView(func(v session.View) {
			if msg, err := protocol.NewViewMessage(v); err == nil {
				s.send(c, msg)
			}
		})
	}
	client.OnMessage = func(c *hub.Client, data []byte) {
		s.handleInbound(c, sess, data)
	}
	client.Run()
}

// handleInbound answers pings and runs commands for the watched session.
// Results of commands arrive as regular session events; only rejected
// commands get a direct error reply.
func (s *Server) handleInbound(c *hub.Client, sess *session.Session, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.reply(c, "", session.ErrorInfo{Code: session.CodeBadRequest, Message: err.Error()})
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		if pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()); err == nil {
			s.send(c, pong)
		}

	case protocol.TypeCommand:
		cmd, err := msg.GetCommandData()
		if err != nil {
			var raw protocol.CommandData
			_ = msg.ParseData(&raw)
			s.reply(c, raw.ID, session.ErrorInfo{Code: session.CodeBadRequest, Message: err.Error()})
			return
		}
		if err := s.runCommand(sess, cmd.Action); err != nil {
			s.reply(c, cmd.ID, session.Describe(err))
		}

	default:
		s.reply(c, "", session.ErrorInfo{Code: session.CodeBadRequest, Message: "unsupported message type " + string(msg.Type)})
	}
}

func (s *Server) runCommand(sess *session.Session, action protocol.Action) error {
	var err error
	switch action {
	case protocol.ActionRetry:
		_, err = sess.Retry()
	case protocol.ActionLeave:
		sess.Leave()
	case protocol.ActionCameraStart:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CameraTimeout)
		defer cancel()
		_, err = sess.StartCamera(ctx)
	case protocol.ActionCapture:
		_, err = sess.Capture()
	case protocol.ActionCameraStop:
		sess.StopCamera()
	}
	return err
}

func (s *Server) reply(c *hub.Client, id string, info session.ErrorInfo) {
	if msg, err := protocol.NewErrorMessage(id, info); err == nil {
		s.send(c, msg)
	}
}

func (s *Server) send(c *hub.Client, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("failed to encode reply", "error", err)
		return
	}
	c.Send(hub.NewJSONMessage(data))
}
