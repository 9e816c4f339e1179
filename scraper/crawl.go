package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/use-agent/reader/challenge"
	"github.com/use-agent/reader/crawler"
	"github.com/use-agent/reader/models"
)

// CrawlFetcher returns pooled browser sessions when the browser is running,
// otherwise the engine cascade.
func (s *Scraper) CrawlFetcher() crawler.Fetcher {
	if s.pool != nil {
		return crawler.NewBrowserFetcher(s.pool, challenge.NewResolver(nil, s.clock), s.resolve)
	}
	return crawler.NewCascadeFetcher(s.retriever, s.requestTimeout(0))
}

// CrawlRequest describes one crawl job.
type CrawlRequest struct {
	Seed    string
	Options crawler.Options

	// Scrape runs every discovered page through Scrape with ScrapeOptions.
	Scrape        bool
	ScrapeOptions models.ScrapeOptions
	Concurrency   int
}

// Crawl discovers pages from req.Seed. A crawl cut short by ctx returns the
// pages found so far with a timeout error.
func (s *Scraper) Crawl(ctx context.Context, req CrawlRequest) (*models.CrawlResponse, error) {
	return s.crawlWith(ctx, s.CrawlFetcher(), req)
}

func (s *Scraper) crawlWith(ctx context.Context, f crawler.Fetcher, req CrawlRequest) (*models.CrawlResponse, error) {
	c, err := crawler.New(f, req.Options)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	res, err := c.Crawl(ctx, req.Seed)
	if res == nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	resp := &models.CrawlResponse{
		Success: err == nil,
		URLs:    make([]models.CrawlPage, len(res.Pages)),
		Metadata: models.CrawlMetadata{
			SeedURL:         res.SeedURL,
			TotalDiscovered: len(res.Pages),
			Skipped:         res.Skipped,
			DurationMs:      res.Duration.Milliseconds(),
		},
	}
	for i, p := range res.Pages {
		resp.URLs[i] = models.CrawlPage{URL: p.URL, Title: p.Title, Description: p.Description, Depth: p.Depth}
	}

	if err != nil {
		code := models.ErrCodeInternal
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			code = models.ErrCodeTimeout
		}
		scrapeErr := models.NewScrapeError(code, "crawl interrupted: "+err.Error(), err)
		resp.Error = scrapeErr.ToDetail()
		slog.Warn("crawl interrupted", "seed", req.Seed, "pages", len(res.Pages), "error", err)
		return resp, scrapeErr
	}

	if req.Scrape && len(res.Pages) > 0 {
		resp.Scraped, _ = s.ScrapeBatch(ctx, res.URLs(), req.ScrapeOptions, req.Concurrency)
	}
	return resp, nil
}
