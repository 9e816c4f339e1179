package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/reader/crawler"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/scraper"
)

func newCrawlCmd(a *app) *cobra.Command {
	var (
		include, exclude []string
		skipDuplicates   bool
		scrape           bool
		format           string
	)

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Discover pages breadth-first from a seed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("depth") {
				a.cfg.Crawl.MaxDepth, _ = flags.GetInt("depth")
			}
			if flags.Changed("max-pages") {
				a.cfg.Crawl.MaxPages, _ = flags.GetInt("max-pages")
			}
			if flags.Changed("delay") {
				a.cfg.Crawl.Delay, _ = flags.GetDuration("delay")
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			sc, err := scraper.New(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer sc.Close()

			resp, err := sc.Crawl(cmd.Context(), scraper.CrawlRequest{
				Seed: args[0],
				Options: crawler.Options{
					MaxDepth:        a.cfg.Crawl.MaxDepth,
					MaxPages:        a.cfg.Crawl.MaxPages,
					Delay:           a.cfg.Crawl.Delay,
					IncludePatterns: include,
					ExcludePatterns: exclude,
					SkipDuplicates:  skipDuplicates,
				},
				Scrape:        scrape,
				ScrapeOptions: models.ScrapeOptions{OutputFormat: format},
			})
			if resp != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(resp); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntP("depth", "d", 1, "link hops to follow from the seed")
	f.IntP("max-pages", "n", 20, "maximum pages to discover")
	f.Duration("delay", time.Second, "pause between page fetches")
	f.StringSliceVar(&include, "include", nil, "only follow URLs matching these regular expressions")
	f.StringSliceVar(&exclude, "exclude", nil, "skip URLs matching these regular expressions")
	f.BoolVar(&skipDuplicates, "skip-duplicates", false, "drop near-duplicate pages")
	f.BoolVar(&scrape, "scrape", false, "also scrape every discovered page")
	f.StringVarP(&format, "format", "f", "markdown", "output format for --scrape")
	return cmd
}
