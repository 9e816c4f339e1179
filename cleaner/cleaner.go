package cleaner

import (
	"fmt"
	"math"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/reader/models"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
	FormatRaw      = "raw"
)

// Cleaner turns retrieved HTML into LLM-friendly output:
//
//	Stage 1 (filter):       strip scripts, overlays, ads, navigation; apply tag filters
//	Stage 2 (main content): readability, then a heuristic container search
//	Stage 3 (format):       markdown, html or text
//
// The converter is created once and reused across all requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Options carries the per-request cleaning parameters.
type Options struct {
	Format             string
	OnlyMainContent    bool
	IncludeTags        []string
	ExcludeTags        []string
	RemoveBase64Images bool
	Citations          bool
}

// Clean runs the pipeline and returns a partial ScrapeResponse with Content,
// Format, Metadata, Links and Tokens filled. Retrieval fields and Timing are
// left to the caller.
//
// The raw format returns rawHTML untouched. Explicit IncludeTags take the place
// of main-content detection.
func (c *Cleaner) Clean(rawHTML, sourceURL string, opts Options) (*models.ScrapeResponse, error) {
	if opts.Format == "" {
		opts.Format = FormatMarkdown
	}
	originalTokens := EstimateTokens(rawHTML)
	meta := ExtractPageMeta(rawHTML)

	resp := &models.ScrapeResponse{
		Success: true,
		URL:     sourceURL,
		Format:  opts.Format,
		Links:   ExtractLinks(rawHTML, sourceURL),
		Metadata: models.Metadata{
			Title:       meta.Title,
			Description: meta.Description,
			SiteName:    meta.SiteName,
			Language:    meta.Language,
			Image:       meta.Image,
			SourceURL:   sourceURL,
		},
	}

	var content string
	switch opts.Format {
	case FormatRaw:
		content = rawHTML

	case FormatMarkdown, FormatHTML, FormatText:
		filtered := FilterContent(rawHTML, sourceURL, FilterOptions{
			IncludeTags:        opts.IncludeTags,
			ExcludeTags:        opts.ExcludeTags,
			OnlyMainContent:    opts.OnlyMainContent,
			RemoveBase64Images: opts.RemoveBase64Images,
			RemoveAds:          true,
		})

		var ex extraction
		if opts.OnlyMainContent && len(opts.IncludeTags) == 0 {
			ex = extractMainContent(filtered, sourceURL)
		} else {
			ex = wholeDocument(filtered)
		}
		mergeArticleMeta(&resp.Metadata, ex)

		switch opts.Format {
		case FormatMarkdown:
			md, err := ToMarkdown(c.mdConverter, ex.HTML, sourceURL)
			if err != nil {
				return nil, models.NewScrapeError(models.ErrCodeContent, "markdown conversion failed", err)
			}
			if opts.Citations {
				md = ConvertToCitations(md)
			}
			content = md
		case FormatHTML:
			content = ex.HTML
		default:
			content = ex.Text
		}

	default:
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown output format %q", opts.Format), nil)
	}

	resp.Content = content
	resp.Tokens = tokenInfo(originalTokens, EstimateTokens(content))
	return resp, nil
}

// mergeArticleMeta prefers readability's title and excerpt, which skip site
// suffixes and boilerplate, over the raw document tags.
func mergeArticleMeta(m *models.Metadata, ex extraction) {
	if ex.Title != "" {
		m.Title = ex.Title
	}
	if ex.Excerpt != "" && m.Description == "" {
		m.Description = ex.Excerpt
	}
	if ex.SiteName != "" {
		m.SiteName = ex.SiteName
	}
	if ex.Language != "" && m.Language == "" {
		m.Language = ex.Language
	}
	m.Author = ex.Byline
}

func tokenInfo(original, cleaned int) models.TokenInfo {
	savings := 0.0
	if original > 0 {
		savings = float64(original-cleaned) / float64(original) * 100
		savings = math.Round(savings*100) / 100
	}
	return models.TokenInfo{
		OriginalEstimate: original,
		CleanedEstimate:  cleaned,
		SavingsPercent:   savings,
	}
}
