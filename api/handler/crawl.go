package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/reader/config"
	"github.com/use-agent/reader/crawler"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/scraper"
	"github.com/use-agent/reader/webhook"
)

// PostCrawl returns a handler for POST /api/v1/crawl. Unset limits fall back
// to the configured crawl defaults.
func PostCrawl(sc *scraper.Scraper, defaults config.CrawlConfig, wh *webhook.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		opts := crawler.Options{
			MaxDepth:        defaults.MaxDepth,
			MaxPages:        defaults.MaxPages,
			Delay:           defaults.Delay,
			IncludePatterns: req.IncludePatterns,
			ExcludePatterns: req.ExcludePatterns,
			SkipDuplicates:  req.SkipDuplicates,
		}
		if req.MaxDepth > 0 {
			opts.MaxDepth = req.MaxDepth
		}
		if req.MaxPages > 0 {
			opts.MaxPages = req.MaxPages
		}
		if req.DelayMs != nil {
			opts.Delay = time.Duration(*req.DelayMs) * time.Millisecond
		}

		id := "crawl-" + uuid.NewString()
		resp, err := sc.Crawl(c.Request.Context(), scraper.CrawlRequest{
			Seed:          req.URL,
			Options:       opts,
			Scrape:        req.Scrape,
			ScrapeOptions: req.Options,
		})
		if resp == nil {
			resp = &models.CrawlResponse{URLs: []models.CrawlPage{}}
		}
		resp.ID = id

		status := http.StatusOK
		event := webhook.EventCrawlCompleted
		if err != nil {
			scrapeErr := asScrapeError(err)
			resp.Success = false
			resp.Error = scrapeErr.ToDetail()
			status = mapErrorToStatus(scrapeErr)
			event = webhook.EventCrawlFailed
		}

		if req.WebhookURL != "" && wh != nil {
			wh.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.NewEvent(event, id, resp), nil)
		}
		c.JSON(status, resp)
	}
}
