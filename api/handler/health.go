package handler

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reader/cache"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/pool"
	"github.com/use-agent/reader/scraper"
)

// Version is reported by the status endpoint. Set at build time with
// -ldflags "-X github.com/use-agent/reader/api/handler.Version=...".
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" when the pool health check finds issues. Without a
// browser the network engines still serve, so the daemon stays healthy.
func Health(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := sc.Pool()
		if p == nil {
			c.JSON(http.StatusOK, models.HealthResponse{Status: "healthy"})
			return
		}

		h := p.HealthCheck()
		status := "healthy"
		if !h.Healthy {
			status = "degraded"
		}
		c.JSON(http.StatusOK, models.HealthResponse{
			Status: status,
			Issues: h.Issues,
			Pool:   poolStats(h.Stats),
		})
	}
}

// Status returns a handler for GET /api/v1/status.
func Status(sc *scraper.Scraper, cc *cache.Cache, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.StatusResponse{
			Status:      "running",
			Version:     Version,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			PID:         os.Getpid(),
			Engines:     sc.Engines(),
			BrowserMode: "disabled",
		}
		if p := sc.Pool(); p != nil {
			resp.BrowserMode = "pooled"
			resp.PoolSize = p.Config().Size
			resp.Pool = poolStats(p.Stats())
		}
		if cc != nil {
			resp.CacheSize = cc.Len()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func poolStats(s pool.Stats) models.PoolStats {
	return models.PoolStats{
		Total:              s.Total,
		Available:          s.Available,
		Busy:               s.Busy,
		Recycling:          s.Recycling,
		Unhealthy:          s.Unhealthy,
		QueueLength:        s.QueueLength,
		TotalRequests:      s.TotalRequests,
		AvgRequestDuration: s.AvgRequestDuration.Milliseconds(),
	}
}
