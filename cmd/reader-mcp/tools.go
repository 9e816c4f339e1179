package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/reader/models"
)

var formats = []string{"markdown", "text", "html", "raw"}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"reader",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("scrape_url",
		mcp.WithDescription("Fetch a web page and return its cleaned content. Tries a plain HTTP client first and escalates to a headless browser that waits out anti-bot challenges."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'markdown' (default), 'text', 'html' or 'raw'"),
			mcp.Enum(formats...),
		),
		mcp.WithBoolean("citations",
			mcp.Description("Rewrite links as numbered references with a list at the end"),
		),
	), handleScrapeURL(c))

	s.AddTool(mcp.NewTool("batch_scrape",
		mcp.WithDescription("Scrape several URLs in parallel and return cleaned content for each."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to scrape"),
			mcp.WithStringItems(),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'markdown' (default), 'text', 'html' or 'raw'"),
			mcp.Enum(formats...),
		),
	), handleBatchScrape(c))

	s.AddTool(mcp.NewTool("crawl_site",
		mcp.WithDescription("Crawl a website breadth-first from a URL, staying on the same site. Returns the discovered pages, and their content when scrape is true."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The starting URL to crawl from"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Link hops to follow from the starting URL (default: 1, max: 5)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to discover (default: 20, max: 500)"),
		),
		mcp.WithBoolean("scrape",
			mcp.Description("Also return the cleaned content of every discovered page"),
		),
	), handleCrawlSite(c))

	return s
}

func handleScrapeURL(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		resp, err := c.scrape(ctx, models.ScrapeRequest{
			URL: url,
			ScrapeOptions: models.ScrapeOptions{
				OutputFormat: request.GetString("output_format", ""),
				Citations:    request.GetBool("citations", false),
			},
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(failure(resp.Error, "scrape failed")), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Title: %s\nSource: %s\nEngine: %s\n\n", resp.Metadata.Title, resp.FinalURL, resp.EngineUsed)
		sb.WriteString(resp.Content)
		fmt.Fprintf(&sb, "\n\n---\nTokens: %d (saved %.0f%% from original %d)",
			resp.Tokens.CleanedEstimate, resp.Tokens.SavingsPercent, resp.Tokens.OriginalEstimate)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchScrape(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		resp, err := c.batch(ctx, models.BatchRequest{
			URLs:    urls,
			Options: models.ScrapeOptions{OutputFormat: request.GetString("output_format", "")},
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %d/%d succeeded\n\n", resp.ID, resp.Batch.Succeeded, resp.Batch.Total)
		writePages(&sb, resp.Results)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleCrawlSite(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		resp, err := c.crawl(ctx, models.CrawlRequest{
			URL:      url,
			MaxDepth: request.GetInt("max_depth", 0),
			MaxPages: request.GetInt("max_pages", 0),
			Scrape:   request.GetBool("scrape", false),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success && len(resp.URLs) == 0 {
			return mcp.NewToolResultError(failure(resp.Error, "crawl failed")), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Crawl %s: %d pages discovered, %d skipped\n\n",
			resp.ID, resp.Metadata.TotalDiscovered, resp.Metadata.Skipped)
		for _, p := range resp.URLs {
			fmt.Fprintf(&sb, "- [depth %d] %s (%s)\n", p.Depth, p.Title, p.URL)
		}
		if len(resp.Scraped) > 0 {
			sb.WriteString("\n")
			writePages(&sb, resp.Scraped)
		}
		if resp.Error != nil {
			fmt.Fprintf(&sb, "\nStopped early: %s\n", failure(resp.Error, ""))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func writePages(sb *strings.Builder, pages []*models.ScrapeResponse) {
	for i, r := range pages {
		if r.Success {
			fmt.Fprintf(sb, "--- [%d] %s (%s) ---\n%s\n\n", i+1, r.Metadata.Title, r.URL, r.Content)
			continue
		}
		fmt.Fprintf(sb, "--- [%d] FAILED: %s (%s) ---\n\n", i+1, failure(r.Error, "unknown error"), r.URL)
	}
}

func failure(e *models.ErrorDetail, fallback string) string {
	if e == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
