// Package api wires the daemon's HTTP routes.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reader/api/handler"
	"github.com/use-agent/reader/api/middleware"
	"github.com/use-agent/reader/cache"
	"github.com/use-agent/reader/config"
	"github.com/use-agent/reader/scraper"
	"github.com/use-agent/reader/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(sc *scraper.Scraper, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		r.Use(gin.Logger())
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sc))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	wh := webhook.NewSender()

	protected.GET("/status", handler.Status(sc, cc, startTime))
	protected.POST("/scrape", handler.Scrape(sc, cc))
	protected.POST("/batch/scrape", handler.PostBatch(sc, wh))
	protected.POST("/crawl", handler.PostCrawl(sc, cfg.Crawl, wh))

	return r
}
