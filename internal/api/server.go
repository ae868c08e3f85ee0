package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/internal/collector"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/metrics"
	"github.com/luke-wagner/PlantCare-Monitor/internal/mqtt"
	"github.com/luke-wagner/PlantCare-Monitor/internal/realtime"
)

// Deps what the server needs; MQTT, Hub and Metrics are optional
type Deps struct {
	Config    *config.Config
	Store     *database.Store
	Collector *collector.Collector
	MQTT      mqtt.Client
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics
}

// Server HTTP API for the display and the admin UI
type Server struct {
	// cfgMu guards config mutations made by handlers
	cfgMu     sync.RWMutex
	config    *config.Config
	store     *database.Store
	collector *collector.Collector
	mqtt      mqtt.Client
	hub       *realtime.Hub
	metrics   *metrics.Metrics
	router    *gin.Engine
}

// NewServer builds the router
func NewServer(d Deps) *Server {
	s := &Server{
		config:    d.Config,
		store:     d.Store,
		collector: d.Collector,
		mqtt:      d.MQTT,
		hub:       d.Hub,
		metrics:   d.Metrics,
	}
	if s.hub == nil {
		s.hub = realtime.Default()
	}
	s.initRouter()
	return s
}

// Router gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(s.metricsMiddleware())

	s.router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/v1")
	{
		// ESP32
		display := api.Group("/display", s.deviceKeyMiddleware())
		display.GET("", s.handleDisplay)
		display.GET("/plants/:id", s.handleDisplayPlant)

		api.POST("/auth/login", s.handleLogin)
		api.POST("/auth/change-password", s.authMiddleware(), s.handleChangePassword)

		api.GET("/config/init/status", s.handleConfigInitStatus)
		api.POST("/config/init", s.handleConfigInit)

		admin := api.Group("", s.authMiddleware())
		admin.GET("/plants", s.handlePlantsList)
		admin.GET("/plants/:id", s.handlePlantDetail)
		admin.GET("/plants/:id/history", s.handlePlantHistory)
		admin.POST("/plants/:id/insight", s.handlePlantInsight)

		admin.GET("/collect/status", s.handleCollectStatus)
		admin.POST("/collect", s.handleCollectTrigger)
		admin.GET("/collect/runs", s.handleCollectRuns)

		admin.GET("/export", s.handleExport)

		admin.GET("/config", s.handleConfigGet)
		admin.POST("/config", s.handleConfigUpdate)

		admin.GET("/mqtt/status", s.handleMQTTStatus)
		admin.GET("/mqtt/logs", s.handleMQTTLogs)

		admin.GET("/system/info", s.handleSystemInfo)
	}

	s.router.NoRoute(func(c *gin.Context) {
		apiresp.Fail(c, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		apiresp.Fail(c, http.StatusServiceUnavailable, "database: "+err.Error())
		return
	}
	apiresp.OK(c, gin.H{"status": "ok"})
}
