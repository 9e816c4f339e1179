package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/reader/cleaner"
	"github.com/use-agent/reader/engine"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/pool"
)

// baseBackoff is the wait before the first retry; it doubles per attempt.
const baseBackoff = time.Second

// Retrieve runs the cascade, retrying failed runs up to retries more times
// with exponential backoff. It returns the number of runs made.
func (s *Scraper) Retrieve(ctx context.Context, req *engine.Request, retries int) (*engine.Result, int, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			slog.Debug("scraper: retrying", "url", req.URL, "attempt", attempt+1, "backoff", delay)
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return nil, attempt, lastErr
			}
		}

		res, err := s.retriever.Scrape(ctx, req)
		if err == nil {
			return res, attempt + 1, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, attempt + 1, err
		}
	}
	return nil, retries + 1, lastErr
}

// retryable reports whether another cascade run could succeed. A cascade
// stopped by a non-retryable failure (say HTTP 401) will stop the same way.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var all *engine.AllEnginesFailedError
	if errors.As(err, &all) {
		if len(all.Attempted) == 0 {
			return false
		}
		return engine.ShouldFallback(all.Last())
	}
	return true
}

// Scrape retrieves req.URL and cleans it into the requested format. On
// failure the returned response is still filled with the attempt details and
// the error is a *models.ScrapeError.
func (s *Scraper) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	start := time.Now()
	opts := req.ScrapeOptions
	opts.Defaults()

	retries := s.cfg.MaxRetries
	if opts.MaxRetries != nil {
		retries = *opts.MaxRetries
	}

	res, attempts, err := s.Retrieve(ctx, &engine.Request{
		URL:         req.URL,
		Timeout:     s.requestTimeout(opts.Timeout),
		Headers:     opts.Headers,
		ForceEngine: opts.ForceEngine,
		SkipEngines: opts.SkipEngines,
	}, retries)
	retrievalMs := time.Since(start).Milliseconds()

	if err != nil {
		scrapeErr := toScrapeError(ctx, err)
		resp := &models.ScrapeResponse{
			Success:  false,
			URL:      req.URL,
			Attempts: attempts,
			Error:    scrapeErr.ToDetail(),
			Timing:   models.TimingInfo{TotalMs: retrievalMs, RetrievalMs: retrievalMs},
		}
		var all *engine.AllEnginesFailedError
		if errors.As(err, &all) {
			resp.AttemptedEngines = all.Attempted
			resp.EngineErrors = engine.ErrorMessages(all.Errors)
		}
		slog.Warn("scrape failed", "url", req.URL, "attempts", attempts, "error", err)
		return resp, scrapeErr
	}

	cleanStart := time.Now()
	resp, err := s.cleaner.Clean(res.HTML, res.FinalURL, cleaner.Options{
		Format:             opts.OutputFormat,
		OnlyMainContent:    opts.MainContent(),
		IncludeTags:        opts.IncludeTags,
		ExcludeTags:        opts.ExcludeTags,
		RemoveBase64Images: opts.StripBase64Images(),
		Citations:          opts.Citations,
	})
	cleaningMs := time.Since(cleanStart).Milliseconds()
	if err != nil {
		var scrapeErr *models.ScrapeError
		if !errors.As(err, &scrapeErr) {
			scrapeErr = models.NewScrapeError(models.ErrCodeContent, "content extraction failed", err)
		}
		return &models.ScrapeResponse{
			Success:    false,
			URL:        req.URL,
			StatusCode: res.StatusCode,
			FinalURL:   res.FinalURL,
			EngineUsed: res.Engine,
			Attempts:   attempts,
			Error:      scrapeErr.ToDetail(),
		}, scrapeErr
	}

	resp.URL = req.URL
	resp.StatusCode = res.StatusCode
	resp.FinalURL = res.FinalURL
	resp.EngineUsed = res.Engine
	resp.AttemptedEngines = res.AttemptedEngines
	if len(res.EngineErrors) > 0 {
		resp.EngineErrors = engine.ErrorMessages(res.EngineErrors)
	}
	resp.Attempts = attempts
	resp.Timing = models.TimingInfo{
		TotalMs:     time.Since(start).Milliseconds(),
		RetrievalMs: retrievalMs,
		CleaningMs:  cleaningMs,
	}
	return resp, nil
}

// toScrapeError maps a retrieval failure to an API error code.
func toScrapeError(ctx context.Context, err error) *models.ScrapeError {
	var all *engine.AllEnginesFailedError
	switch {
	case errors.As(err, &all) && len(all.Attempted) > 0 && all.AllTimedOut():
		return models.NewScrapeError(models.ErrCodeTimeout, "every engine timed out", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, "scrape deadline exceeded", err)
	case errors.As(err, &all):
		if len(all.Attempted) == 0 {
			return models.NewScrapeError(models.ErrCodeInvalidInput, "no engine left to try after force/skip filters", err)
		}
		if last := all.Last(); last != nil {
			switch {
			case last.Kind == engine.KindInsufficientContent:
				return models.NewScrapeError(models.ErrCodeContent, all.Error(), err)
			case last.Kind == engine.KindEngineUnavailable && poolUnavailable(last):
				return models.NewScrapeError(models.ErrCodePoolUnavailable, all.Error(), err)
			}
		}
		return models.NewScrapeError(models.ErrCodeEnginesFailed, all.Error(), err)
	default:
		return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
}

func poolUnavailable(err error) bool {
	return errors.Is(err, pool.ErrQueueFull) ||
		errors.Is(err, pool.ErrQueueTimeout) ||
		errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, pool.ErrNotInitialized)
}
