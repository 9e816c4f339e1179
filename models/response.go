package models

// ScrapeResponse is the response for POST /api/v1/scrape and the per-URL
// element of batch and crawl responses.
type ScrapeResponse struct {
	// Success indicates whether the scrape completed without errors.
	Success bool `json:"success"`

	// URL is the URL that was requested.
	URL string `json:"url"`

	// StatusCode is the HTTP status code from the scraped page.
	StatusCode int `json:"status_code,omitempty"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url,omitempty"`

	// Content is the cleaned output in the requested format.
	Content string `json:"content,omitempty"`

	Format string `json:"format,omitempty"`

	// Metadata contains extracted page metadata.
	Metadata Metadata `json:"metadata"`

	// Links contains internal and external links extracted from the page.
	Links LinksResult `json:"links"`

	// Tokens provides token estimates before and after cleaning.
	Tokens TokenInfo `json:"tokens"`

	// EngineUsed is the engine that produced the content.
	EngineUsed string `json:"engine_used,omitempty"`

	// AttemptedEngines lists every engine tried, in order.
	AttemptedEngines []string `json:"attempted_engines,omitempty"`

	// EngineErrors maps each failed engine to its error message.
	EngineErrors map[string]string `json:"engine_errors,omitempty"`

	// Attempts counts cascade runs, including retries.
	Attempts int `json:"attempts,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// LinksResult separates extracted links into internal and external groups.
type LinksResult struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
}

// Link represents a hyperlink extracted from the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// Metadata holds page-level information extracted during scraping.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Author      string `json:"author,omitempty"`
	Language    string `json:"language,omitempty"`
	Image       string `json:"image,omitempty"`
	SourceURL   string `json:"source_url"`
}

// TokenInfo provides before/after token estimates to show cleaning efficacy.
type TokenInfo struct {
	OriginalEstimate int     `json:"original_estimate"`
	CleanedEstimate  int     `json:"cleaned_estimate"`
	SavingsPercent   float64 `json:"savings_percent"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RetrievalMs is the time spent in the engine cascade, retries included.
	RetrievalMs int64 `json:"retrieval_ms"`

	// CleaningMs is the time spent extracting content and converting it.
	CleaningMs int64 `json:"cleaning_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status string    `json:"status"` // "healthy" or "degraded"
	Issues []string  `json:"issues,omitempty"`
	Pool   PoolStats `json:"pool"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	Total              int   `json:"total"`
	Available          int   `json:"available"`
	Busy               int   `json:"busy"`
	Recycling          int   `json:"recycling"`
	Unhealthy          int   `json:"unhealthy"`
	QueueLength        int   `json:"queue_length"`
	TotalRequests      int64 `json:"total_requests"`
	AvgRequestDuration int64 `json:"avg_request_duration_ms"`
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	PID         int       `json:"pid"`
	Engines     []string  `json:"engines"`
	PoolSize    int       `json:"pool_size"`
	Pool        PoolStats `json:"pool"`
	CacheSize   int       `json:"cache_size"`
	BrowserMode string    `json:"browser_mode"`
}
