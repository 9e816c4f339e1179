package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/reader/config"
	"github.com/ysmood/gson"
)

// Launcher owns the Chromium process. Each page it hands out lives in its own
// incognito browser context, so pooled sessions never share cookies or storage.
type Launcher struct {
	browser *rod.Browser
	proc    *launcher.Launcher
	cfg     config.BrowserConfig

	closeOnce sync.Once
}

// Launch starts a browser (or connects to cfg.ControlURL) with automation
// fingerprints removed from the command line.
func Launch(cfg config.BrowserConfig) (*Launcher, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher

	if controlURL == "" {
		l = launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-ipc-flooding-protection"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))
		l.Set(flags.Flag("lang"), "en-US")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		controlURL = u
		slog.Info("browser launched", "controlURL", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &Launcher{browser: b, proc: l, cfg: cfg}, nil
}

// NewPage creates an incognito context with one stealth tab. It satisfies
// Factory.
func (l *Launcher) NewPage(ctx context.Context) (Page, error) {
	incognito, err := l.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: create incognito context: %w", err)
	}

	var page *rod.Page
	if l.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if l.cfg.UserAgent != "" {
		if uaErr := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      l.cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}); uaErr != nil {
			slog.Warn("browser: failed to set user agent", "error", uaErr)
		}
	}
	if vpErr := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); vpErr != nil {
		slog.Warn("browser: failed to set viewport", "error", vpErr)
	}

	rp := &rodPage{
		page:      page,
		incognito: incognito,
	}
	rp.router = setupHijack(page, l.cfg.BlockedResourceTypes, l.cfg.BlockAds)
	return rp, nil
}

// Close kills the browser process. Pages must be closed first (the pool does
// this on shutdown).
func (l *Launcher) Close() {
	l.closeOnce.Do(func() {
		if err := l.browser.Close(); err != nil {
			slog.Warn("browser: close failed", "error", err)
		}
		if l.proc != nil {
			l.proc.Kill()
		}
		slog.Info("browser closed")
	})
}

// rodPage implements Page on top of a rod tab.
type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
	router    *rod.HijackRouter
}

func (p *rodPage) Navigate(ctx context.Context, target string) error {
	return p.page.Context(ctx).Navigate(target)
}

func (p *rodPage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

func (p *rodPage) WaitStable(ctx context.Context) error {
	return p.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1)
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// StatusCode reads the navigation timing entry; it needs no CDP network
// listener, which would conflict with the hijack router.
func (p *rodPage) StatusCode(ctx context.Context) int {
	res, err := p.page.Context(ctx).Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (p *rodPage) SetHeaders(ctx context.Context, headers map[string]string) error {
	return proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(headers),
	}.Call(p.page.Context(ctx))
}

func (p *rodPage) Reset(ctx context.Context) error {
	if err := p.SetHeaders(ctx, nil); err != nil {
		slog.Debug("browser: failed to clear extra headers", "error", err)
	}
	return p.page.Context(ctx).Navigate("about:blank")
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	pageErr := p.page.Close()
	ctxErr := p.incognito.Close()
	if pageErr != nil {
		return pageErr
	}
	return ctxErr
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// refererFor builds a search-engine referer for the target host, used when the
// caller did not supply one.
func refererFor(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
}

// WithReferer returns a copy of headers with a Referer added when missing.
func WithReferer(target string, headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if _, ok := out["Referer"]; !ok {
		if ref := refererFor(target); ref != "" {
			out["Referer"] = ref
		}
	}
	return out
}
