// Package scraper ties the engine cascade, the browser pool and the cleaner
// into the scrape operation served by the API, the CLI and the MCP bridge.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/use-agent/reader/browser"
	"github.com/use-agent/reader/challenge"
	"github.com/use-agent/reader/cleaner"
	"github.com/use-agent/reader/clock"
	"github.com/use-agent/reader/config"
	"github.com/use-agent/reader/engine"
	"github.com/use-agent/reader/pool"
)

// Retriever runs the engine cascade for one URL.
type Retriever interface {
	Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

// Scraper owns the browser process, the session pool, the orchestrator and
// the cleaner. It is safe for concurrent use.
type Scraper struct {
	launcher  *browser.Launcher
	pool      *pool.Pool
	retriever Retriever
	engines   []string
	cleaner   *cleaner.Cleaner
	cfg       config.ScraperConfig
	resolve   challenge.ResolveOptions
	clock     clock.Clock

	closeOnce sync.Once
}

// New launches the browser and fills the pool when browser-automation can run,
// then builds the cascade. A browser that fails to start is logged and the
// cascade continues with the network engines only.
func New(ctx context.Context, cfg *config.Config) (*Scraper, error) {
	s := &Scraper{
		cleaner: cleaner.NewCleaner(),
		cfg:     cfg.Scraper,
		resolve: challenge.ResolveOptions{
			MaxWait:      cfg.Challenge.MaxWait,
			PollInterval: cfg.Challenge.PollInterval,
		},
		clock: clock.Real(),
	}

	if wantsBrowser(cfg.Engine) {
		if err := s.startBrowser(ctx, cfg); err != nil {
			slog.Warn("browser-automation disabled", "error", err)
		}
	}

	var sessions engine.SessionPool
	if s.pool != nil {
		sessions = s.pool
	}
	minContent := cfg.Engine.MinContentLength
	reg := engine.NewRegistry(
		engine.NewDirectFetchEngine(minContent),
		engine.NewFingerprintedClientEngine(minContent),
		engine.NewBrowserEngine(sessions, engine.BrowserOptions{
			MinContentLength: minContent,
			ResolveMaxWait:   cfg.Challenge.MaxWait,
			ResolvePoll:      cfg.Challenge.PollInterval,
			SettleMaxWait:    cfg.Challenge.SettleMaxWait,
			SettlePoll:       cfg.Challenge.SettlePollRate,
		}),
	)
	orch := engine.NewOrchestrator(reg, engine.Options{
		Engines:     cfg.Engine.Order,
		SkipEngines: cfg.Engine.Skip,
		ForceEngine: cfg.Engine.Force,
	})
	if len(orch.Engines()) == 0 {
		s.Close()
		return nil, errors.New("scraper: no engine available")
	}
	s.retriever = orch
	s.engines = orch.Engines()

	slog.Info("scraper ready", "engines", s.engines, "browser", s.pool != nil)
	return s, nil
}

// NewWithRetriever builds a Scraper around an existing cascade, without a
// browser of its own.
func NewWithRetriever(r Retriever, engines []string, cfg config.ScraperConfig, c clock.Clock) *Scraper {
	if c == nil {
		c = clock.Real()
	}
	return &Scraper{
		retriever: r,
		engines:   engines,
		cleaner:   cleaner.NewCleaner(),
		cfg:       cfg,
		clock:     c,
	}
}

func wantsBrowser(cfg config.EngineConfig) bool {
	if cfg.Force != "" {
		return cfg.Force == engine.NameBrowserAutomation
	}
	return slices.Contains(cfg.Order, engine.NameBrowserAutomation) &&
		!slices.Contains(cfg.Skip, engine.NameBrowserAutomation)
}

func (s *Scraper) startBrowser(ctx context.Context, cfg *config.Config) error {
	l, err := browser.Launch(cfg.Browser)
	if err != nil {
		return err
	}
	p := pool.New(pool.Config{
		Size:                cfg.Pool.Size,
		RetireAfterRequests: cfg.Pool.RetireAfterRequests,
		RetireAfterAge:      cfg.Pool.RetireAfterAge,
		MaxQueueSize:        cfg.Pool.MaxQueueSize,
		QueueTimeout:        cfg.Pool.QueueTimeout,
		RecycleInterval:     cfg.Pool.RecycleInterval,
		HealthInterval:      cfg.Pool.HealthInterval,
	}, l.NewPage)
	if err := p.Initialize(ctx); err != nil {
		l.Close()
		return fmt.Errorf("scraper: initialize pool: %w", err)
	}
	s.launcher, s.pool = l, p
	return nil
}

// Pool returns the browser session pool, or nil when the browser is off.
func (s *Scraper) Pool() *pool.Pool { return s.pool }

// Engines returns the resolved cascade order.
func (s *Scraper) Engines() []string { return append([]string(nil), s.engines...) }

// Config returns the scraper settings.
func (s *Scraper) Config() config.ScraperConfig { return s.cfg }

// Close shuts the pool down, then the browser. It is safe to call more than
// once.
func (s *Scraper) Close() {
	s.closeOnce.Do(func() {
		if s.pool != nil {
			slog.Info("scraper shutting down: draining session pool")
			s.pool.Shutdown()
		}
		if s.launcher != nil {
			slog.Info("scraper shutting down: closing browser")
			s.launcher.Close()
		}
	})
}

// requestTimeout converts a per-request timeout in seconds, clamped to the
// configured maximum. Zero selects the default.
func (s *Scraper) requestTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return s.cfg.DefaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if s.cfg.MaxTimeout > 0 && d > s.cfg.MaxTimeout {
		return s.cfg.MaxTimeout
	}
	return d
}
