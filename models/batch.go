package models

// BatchRequest is the payload for POST /api/v1/batch/scrape.
type BatchRequest struct {
	// URLs is the list of target pages to scrape. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100,dive,url"`

	// Concurrency caps how many URLs are in flight at once. Zero means the
	// server default.
	Concurrency int `json:"concurrency,omitempty" binding:"omitempty,min=1,max=10"`

	// Options contains shared scrape options applied to all URLs.
	Options ScrapeOptions `json:"options"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the response for POST /api/v1/batch/scrape. Results keep
// the order of the request's URLs.
type BatchResponse struct {
	Success bool              `json:"success"`
	ID      string            `json:"id"`
	Results []*ScrapeResponse `json:"results"`
	Batch   BatchMetadata     `json:"batch"`
}

// BatchMetadata summarises a batch run.
type BatchMetadata struct {
	Total      int   `json:"total"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}
