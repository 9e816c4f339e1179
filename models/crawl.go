package models

// CrawlRequest is the payload for POST /api/v1/crawl.
type CrawlRequest struct {
	// URL is the seed page. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxDepth limits link hops from the seed. Default from config. Max: 5.
	MaxDepth int `json:"max_depth,omitempty" binding:"omitempty,min=1,max=5"`

	// MaxPages limits the number of discovered pages. Max: 500.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=1,max=500"`

	// DelayMs is the pause between page fetches.
	DelayMs *int `json:"delay_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// IncludePatterns and ExcludePatterns are regular expressions matched
	// against each candidate URL.
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`

	// SkipDuplicates drops near-duplicate pages, such as the same article
	// behind several URLs.
	SkipDuplicates bool `json:"skip_duplicates,omitempty"`

	// Scrape runs every discovered URL through the scrape pipeline.
	Scrape bool `json:"scrape,omitempty"`

	// Options apply to the scrape of each discovered page.
	Options ScrapeOptions `json:"options"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// CrawlPage is one discovered URL.
type CrawlPage struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Depth       int    `json:"depth"`
}

// CrawlResponse is the response for POST /api/v1/crawl.
type CrawlResponse struct {
	Success  bool              `json:"success"`
	ID       string            `json:"id"`
	URLs     []CrawlPage       `json:"urls"`
	Scraped  []*ScrapeResponse `json:"scraped,omitempty"`
	Metadata CrawlMetadata     `json:"metadata"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// CrawlMetadata summarises a crawl.
type CrawlMetadata struct {
	SeedURL         string `json:"seed_url"`
	TotalDiscovered int    `json:"total_discovered"`
	Skipped         int    `json:"skipped"`
	DurationMs      int64  `json:"duration_ms"`
}
