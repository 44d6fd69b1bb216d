package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/storage"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	kind := types.DeviceKind(c.Query("kind"))

	objs := s.lm.DeviceManager().Objects()
	response := make([]devices.DeviceStatus, 0, len(objs))
	for _, obj := range objs {
		if kind != "" && obj.Kind() != kind {
			continue
		}
		response = append(response, obj.Status())
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": response,
		"count":   len(response),
	})
}

// GET /api/v1/devices/:name
func (s *Server) getDevice(c *gin.Context) {
	obj, ok := s.lm.DeviceManager().Object(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_NOT_FOUND", "device not found", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, obj.Status())
}

// GET /api/v1/devices/:name/snapshot
func (s *Server) getDeviceSnapshot(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("STORAGE_DISABLED", "status storage is disabled", nil))
		return
	}

	snap, err := store.LatestSnapshot(c.Request.Context(), c.Param("name"))
	if errors.Is(err, storage.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SNAPSHOT_NOT_FOUND", "no snapshot recorded", c.Param("name")))
		return
	}
	if err != nil {
		s.logger.Error("Failed to load snapshot", zap.String("device", c.Param("name")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("STORAGE_ERROR", "failed to load snapshot", err.Error()))
		return
	}
	c.JSON(http.StatusOK, snap)
}
