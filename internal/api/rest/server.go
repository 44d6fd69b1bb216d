package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRoadwayCore/internal/config"
	"github.com/KevinKickass/OpenRoadwayCore/internal/interfaces"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Writes are unbounded for the websocket upgrade; handlers wait on
		// operations with their own deadline.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", s.metricsHandler())

	v1 := s.router.Group("/api/v1")
	{
		links := v1.Group("/links")
		{
			links.GET("", s.listLinks)
			links.GET("/:name", s.getLink)
		}

		controllers := v1.Group("/controllers")
		{
			controllers.GET("/:name", s.getController)
			controllers.POST("/:name/download", s.downloadController)
			controllers.POST("/:name/test", s.testController)
			controllers.POST("/:name/registers/:register", s.writeRegister)
		}

		devices := v1.Group("/devices")
		{
			devices.GET("", s.listDevices)
			devices.GET("/:name", s.getDevice)
			devices.GET("/:name/snapshot", s.getDeviceSnapshot)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", s.shutdown)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

func (s *Server) metricsHandler() gin.HandlerFunc {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if g := s.lm.Metrics().Gatherer(); g != nil {
		gatherer = g
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	code := http.StatusOK
	if !status.SelectorRunning {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status.State,
		"selector":  status.SelectorRunning,
		"timestamp": time.Now().Unix(),
	})
}
