package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/api/handler"
	"github.com/use-agent/stealthmode/api/middleware"
	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/settings"
	"github.com/use-agent/stealthmode/stats"
)

// Deps are the services the routes operate on.
type Deps struct {
	Sessions handler.SessionManager
	Fetcher  handler.PageFetcher
	Settings settings.Store
	Recorder *stats.Recorder
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		r.Use(gin.Logger())
	}

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(d.Sessions, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Master switch
	protected.GET("/settings", handler.GetSettings(d.Settings))
	protected.PUT("/settings", handler.PutSettings(d.Settings))

	// Counters
	protected.GET("/stats", handler.GetStats(d.Recorder))
	protected.POST("/stats/reset", handler.ResetStats(d.Recorder))

	// Watched tabs
	protected.POST("/sessions", handler.OpenSession(d.Sessions))
	protected.GET("/sessions", handler.ListSessions(d.Sessions))
	protected.GET("/sessions/:id", handler.GetSession(d.Sessions))
	protected.DELETE("/sessions/:id", handler.CloseSession(d.Sessions))

	// Offline zap
	protected.POST("/zap", handler.Zap(d.Fetcher, cfg.Engine))

	return r
}
