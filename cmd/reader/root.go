package main

import (
	"github.com/spf13/cobra"
	"github.com/use-agent/reader/config"
)

// app carries the loaded configuration to subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "reader",
		Short: "Fetch web pages through an engine cascade and return clean content",
		Long: `Reader fetches pages with the cheapest engine that works: a plain HTTP
client, then a browser-fingerprinted client, then a pooled headless browser
that waits out anti-bot challenges. Content comes back as Markdown, text or
HTML.

Configuration is read from READER_* environment variables; flags override it.

Examples:
  # Run the HTTP daemon
  reader serve --port 8787

  # Scrape pages to stdout
  reader scrape https://example.com/article

  # Discover pages two links deep
  reader crawl https://example.com --depth 2`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := applyGlobalFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			initLogger(cfg.Log)
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or text")
	pf.String("log-file", "", "write logs to a rotating file instead of stderr")
	pf.StringSlice("engines", nil, "engine cascade order")
	pf.Bool("no-browser", false, "disable the browser-automation engine")
	pf.Int("pool-size", 0, "browser session pool size")

	root.AddCommand(newServeCmd(a), newScrapeCmd(a), newCrawlCmd(a))
	return root
}

// applyGlobalFlags copies explicitly set persistent flags over cfg.
func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("log-file") {
		cfg.Log.File, _ = flags.GetString("log-file")
	}
	if flags.Changed("engines") {
		cfg.Engine.Order, _ = flags.GetStringSlice("engines")
	}
	if noBrowser, _ := flags.GetBool("no-browser"); noBrowser {
		cfg.Engine.Skip = append(cfg.Engine.Skip, "browser-automation")
	}
	if flags.Changed("pool-size") {
		cfg.Pool.Size, _ = flags.GetInt("pool-size")
	}
	return nil
}
