package scraper

import (
	"context"
	"time"

	"github.com/use-agent/reader/models"
	"golang.org/x/sync/errgroup"
)

// ScrapeBatch scrapes urls with at most concurrency in flight (zero selects
// the configured default). Results keep the order of urls; a failed URL gets
// an unsuccessful response instead of aborting the batch.
func (s *Scraper) ScrapeBatch(ctx context.Context, urls []string, opts models.ScrapeOptions, concurrency int) ([]*models.ScrapeResponse, models.BatchMetadata) {
	start := time.Now()
	if concurrency <= 0 {
		concurrency = s.cfg.BatchConcurrency
	}

	results := make([]*models.ScrapeResponse, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, u := range urls {
		g.Go(func() error {
			resp, err := s.Scrape(gctx, &models.ScrapeRequest{URL: u, ScrapeOptions: opts})
			if err != nil && resp == nil {
				resp = &models.ScrapeResponse{
					URL:   u,
					Error: &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()},
				}
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	meta := models.BatchMetadata{
		Total:      len(urls),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		if r.Success {
			meta.Succeeded++
		} else {
			meta.Failed++
		}
	}
	return results, meta
}
