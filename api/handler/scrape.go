package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reader/cache"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/scraper"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Serve from cache when max_age allows.
//  3. Scraper.Scrape → engine cascade, retries, cleaning.
//  4. Store in cache, respond.
func Scrape(sc *scraper.Scraper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()

		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(req.URL, &req.ScrapeOptions)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		resp, err := sc.Scrape(c.Request.Context(), &req)
		if err != nil {
			respondError(c, resp, err)
			return
		}

		if cacheKey != "" {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// invalidInput writes a 400 for a request that failed binding.
func invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// resp, which carries whatever the scraper learned before failing.
func respondError(c *gin.Context, resp *models.ScrapeResponse, err error) {
	scrapeErr := asScrapeError(err)
	if resp == nil {
		resp = &models.ScrapeResponse{}
	}
	resp.Success = false
	resp.Error = scrapeErr.ToDetail()
	c.JSON(mapErrorToStatus(scrapeErr), resp)
}

func asScrapeError(err error) *models.ScrapeError {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	return scrapeErr
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeEnginesFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodeContent:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodePoolUnavailable:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
