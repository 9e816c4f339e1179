package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/scraper"
)

func newScrapeCmd(a *app) *cobra.Command {
	var (
		format      string
		force       string
		timeout     int
		citations   bool
		fullPage    bool
		asJSON      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "scrape <url>...",
		Short: "Scrape one or more pages and print their content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scraper.New(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer sc.Close()

			mainOnly := !fullPage
			opts := models.ScrapeOptions{
				Timeout:         timeout,
				ForceEngine:     force,
				OutputFormat:    format,
				OnlyMainContent: &mainOnly,
				Citations:       citations,
			}

			results, meta := sc.ScrapeBatch(cmd.Context(), args, opts, concurrency)
			if err := writeResults(cmd.OutOrStdout(), results, asJSON); err != nil {
				return err
			}
			if meta.Failed > 0 {
				return fmt.Errorf("%d of %d pages failed", meta.Failed, meta.Total)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "markdown", "output format: markdown, html, text, raw")
	f.StringVar(&force, "engine", "", "use only this engine")
	f.IntVarP(&timeout, "timeout", "t", 0, "per-attempt timeout in seconds")
	f.BoolVar(&citations, "citations", false, "rewrite links as numbered references")
	f.BoolVar(&fullPage, "full-page", false, "keep navigation and boilerplate")
	f.BoolVar(&asJSON, "json", false, "print the full JSON response")
	f.IntVarP(&concurrency, "concurrency", "c", 0, "pages scraped at once")
	return cmd
}

func writeResults(w io.Writer, results []*models.ScrapeResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	}

	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "<!-- %s -->\n", r.URL)
		}
		if !r.Success {
			msg := "unknown error"
			if r.Error != nil {
				msg = fmt.Sprintf("[%s] %s", r.Error.Code, r.Error.Message)
			}
			fmt.Fprintf(w, "<!-- failed: %s -->\n", msg)
			continue
		}
		fmt.Fprintln(w, r.Content)
	}
	return nil
}
