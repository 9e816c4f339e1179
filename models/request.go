package models

// ScrapeOptions are the per-page settings shared by scrape, batch and crawl
// requests.
type ScrapeOptions struct {
	// Timeout is the budget in seconds for one retrieval attempt. It also
	// caps each engine's own ceiling.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Headers are sent with every request the engines make.
	Headers map[string]string `json:"headers,omitempty"`

	// ForceEngine restricts the cascade to a single engine.
	ForceEngine string `json:"force_engine,omitempty" binding:"omitempty,oneof=direct-fetch fingerprinted-client browser-automation"`

	// SkipEngines removes engines from the cascade for this request.
	SkipEngines []string `json:"skip_engines,omitempty" binding:"omitempty,dive,oneof=direct-fetch fingerprinted-client browser-automation"`

	// OutputFormat controls the response body format.
	// Allowed: "markdown" (default), "html", "text", "raw".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=markdown html text raw"`

	// OnlyMainContent strips navigation and boilerplate before conversion.
	// Default: true.
	OnlyMainContent *bool `json:"only_main_content,omitempty"`

	// IncludeTags keeps only elements matching these CSS selectors.
	IncludeTags []string `json:"include_tags,omitempty"`

	// ExcludeTags removes elements matching these CSS selectors.
	ExcludeTags []string `json:"exclude_tags,omitempty"`

	// RemoveBase64Images drops inline data: images. Default: true.
	RemoveBase64Images *bool `json:"remove_base64_images,omitempty"`

	// Citations rewrites inline Markdown links as numbered references.
	Citations bool `json:"citations,omitempty"`

	// MaxRetries is the number of extra cascade runs after a failure.
	// Nil means the server default.
	MaxRetries *int `json:"max_retries,omitempty" binding:"omitempty,min=0,max=5"`

	// MaxAge allows a cached response up to this many milliseconds old.
	// Zero disables the cache for this request.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (o *ScrapeOptions) Defaults() {
	if o.Timeout == 0 {
		o.Timeout = 30
	}
	if o.OutputFormat == "" {
		o.OutputFormat = "markdown"
	}
	if o.OnlyMainContent == nil {
		t := true
		o.OnlyMainContent = &t
	}
	if o.RemoveBase64Images == nil {
		t := true
		o.RemoveBase64Images = &t
	}
}

// MainContent reports whether boilerplate stripping is enabled.
func (o *ScrapeOptions) MainContent() bool {
	return o.OnlyMainContent == nil || *o.OnlyMainContent
}

// StripBase64Images reports whether inline data: images are dropped.
func (o *ScrapeOptions) StripBase64Images() bool {
	return o.RemoveBase64Images == nil || *o.RemoveBase64Images
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	ScrapeOptions
}
