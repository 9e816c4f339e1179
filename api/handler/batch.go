package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/scraper"
	"github.com/use-agent/reader/webhook"
)

// PostBatch returns a handler for POST /api/v1/batch/scrape.
// It scrapes every URL with bounded concurrency and answers once all are
// done. A webhook_url additionally receives a batch.completed event.
func PostBatch(sc *scraper.Scraper, wh *webhook.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		id := "batch-" + uuid.NewString()
		results, meta := sc.ScrapeBatch(c.Request.Context(), req.URLs, req.Options, req.Concurrency)
		resp := models.BatchResponse{
			Success: meta.Succeeded > 0,
			ID:      id,
			Results: results,
			Batch:   meta,
		}

		slog.Info("batch job finished",
			"id", id,
			"succeeded", meta.Succeeded,
			"failed", meta.Failed,
			"total", meta.Total,
		)

		if req.WebhookURL != "" && wh != nil {
			wh.DeliverAsync(req.WebhookURL, req.WebhookSecret,
				webhook.NewEvent(webhook.EventBatchCompleted, id, resp), nil)
		}
		c.JSON(http.StatusOK, resp)
	}
}
