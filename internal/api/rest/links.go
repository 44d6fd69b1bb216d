package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

// registerWriteTimeout bounds a register write started from the API.
const registerWriteTimeout = 10 * time.Second

// GET /api/v1/links
func (s *Server) listLinks(c *gin.Context) {
	links := s.lm.DeviceManager().Links()
	c.JSON(http.StatusOK, gin.H{
		"links": links,
		"count": len(links),
	})
}

// GET /api/v1/links/:name
func (s *Server) getLink(c *gin.Context) {
	link, ok := s.lm.DeviceManager().Link(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("LINK_NOT_FOUND", "link not found", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, link)
}

// GET /api/v1/controllers/:name
func (s *Server) getController(c *gin.Context) {
	ctl, ok := s.lm.DeviceManager().Controller(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("CONTROLLER_NOT_FOUND", "controller not found", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, ctl.Status())
}

type DownloadRequest struct {
	Reset bool `json:"reset"`
}

// POST /api/v1/controllers/:name/download
func (s *Server) downloadController(c *gin.Context) {
	var req DownloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_REQUEST", "invalid request body", err.Error()))
			return
		}
	}

	name := c.Param("name")
	if err := s.lm.DeviceManager().Download(name, req.Reset); err != nil {
		s.controllerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "download queued",
		"controller": name,
		"reset":      req.Reset,
	})
}

// POST /api/v1/controllers/:name/test
func (s *Server) testController(c *gin.Context) {
	name := c.Param("name")
	if err := s.lm.DeviceManager().Test(name); err != nil {
		s.controllerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "test queued",
		"controller": name,
	})
}

type RegisterWriteRequest struct {
	Value any `json:"value"`
}

// POST /api/v1/controllers/:name/registers/:register
func (s *Server) writeRegister(c *gin.Context) {
	var req RegisterWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_REQUEST", "invalid request body", err.Error()))
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_REQUEST", "value is required", nil))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), registerWriteTimeout)
	defer cancel()

	name, register := c.Param("name"), c.Param("register")
	if err := s.lm.DeviceManager().WriteRegister(ctx, name, register, req.Value); err != nil {
		s.controllerError(c, err)
		return
	}

	s.logger.Info("Register written via API",
		zap.String("controller", name),
		zap.String("register", register),
		zap.Any("value", req.Value))

	c.JSON(http.StatusOK, gin.H{
		"controller": name,
		"register":   register,
		"value":      req.Value,
	})
}

// controllerError writes the response for a failed controller request.
func (s *Server) controllerError(c *gin.Context, err error) {
	var cfgErr *comm.ConfigError
	switch {
	case errors.Is(err, devices.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("CONTROLLER_NOT_FOUND", "controller not found", err.Error()))
	case errors.Is(err, devices.ErrInactive):
		c.JSON(http.StatusConflict, types.NewErrorResponse("CONTROLLER_INACTIVE", "controller is not active", err.Error()))
	case errors.Is(err, devices.ErrUnsupported):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNSUPPORTED", "not supported by link protocol", err.Error()))
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_REQUEST", "request rejected", err.Error()))
	default:
		s.logger.Error("Controller request failed", zap.String("controller", c.Param("name")), zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("COMM_FAILED", "controller communication failed", err.Error()))
	}
}
