package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Options configures an Orchestrator.
type Options struct {
	// Engines is the cascade order. Empty means DefaultOrder.
	Engines []string

	SkipEngines []string
	ForceEngine string
}

// Orchestrator tries engines one after another until one succeeds or a
// failure rules out falling back.
type Orchestrator struct {
	registry *Registry
	order    []string
	skip     []string
	force    string
}

// NewOrchestrator resolves the configured order against the registry.
// Unknown and unavailable engines are dropped here, once.
func NewOrchestrator(reg *Registry, opts Options) *Orchestrator {
	configured := opts.Engines
	if len(configured) == 0 {
		configured = DefaultOrder
	}

	order := make([]string, 0, len(configured))
	for _, name := range configured {
		e, ok := reg.Get(name)
		if !ok {
			slog.Warn("orchestrator: unknown engine dropped", "engine", name)
			continue
		}
		if !e.Available() {
			slog.Warn("orchestrator: engine unavailable, dropped", "engine", name)
			continue
		}
		if slices.Contains(order, name) {
			continue
		}
		order = append(order, name)
	}

	return &Orchestrator{
		registry: reg,
		order:    order,
		skip:     opts.SkipEngines,
		force:    opts.ForceEngine,
	}
}

// Engines returns the resolved default order.
func (o *Orchestrator) Engines() []string {
	return append([]string(nil), o.order...)
}

// engineOrder computes the cascade for one request. A forced engine wins over
// everything; otherwise skipped engines are removed from the default order.
func (o *Orchestrator) engineOrder(req *Request) []string {
	force := o.force
	if req.ForceEngine != "" {
		force = req.ForceEngine
	}
	if force != "" {
		if slices.Contains(o.order, force) {
			return []string{force}
		}
		slog.Warn("orchestrator: forced engine not available", "engine", force)
		return nil
	}

	out := make([]string, 0, len(o.order))
	for _, name := range o.order {
		if slices.Contains(o.skip, name) || slices.Contains(req.SkipEngines, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Scrape runs the cascade. On failure the error is *AllEnginesFailedError.
func (o *Orchestrator) Scrape(ctx context.Context, req *Request) (*Result, error) {
	order := o.engineOrder(req)
	attempted := make([]string, 0, len(order))
	errs := make(map[string]*ClassifiedError)

	for _, name := range order {
		eng, _ := o.registry.Get(name)
		attempted = append(attempted, name)

		result, err := o.attempt(ctx, eng, req)
		if err == nil {
			result.Engine = name
			result.AttemptedEngines = attempted
			result.EngineErrors = errs
			slog.Info("scrape succeeded", "engine", name, "url", req.URL,
				"attempted", attempted, "duration", result.Duration)
			return result, nil
		}

		ce := Classify(name, err)
		errs[name] = ce
		if !ShouldFallback(ce) {
			slog.Info("orchestrator: non-retryable failure, stopping cascade",
				"engine", name, "url", req.URL, "kind", ce.Kind, "error", ce.Message)
			break
		}
		slog.Debug("orchestrator: falling back", "engine", name, "url", req.URL, "kind", ce.Kind, "error", ce.Message)
	}

	return nil, &AllEnginesFailedError{Attempted: attempted, Errors: errs}
}

// attempt runs one engine under min(engine ceiling, request budget). The
// caller's ctx still applies.
func (o *Orchestrator) attempt(ctx context.Context, eng Engine, req *Request) (*Result, error) {
	timeout := eng.MaxTimeout()
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := eng.Scrape(actx, req)
	if err != nil {
		ce := Classify(eng.Name(), err)
		if ce.Kind != KindTimeout && actx.Err() != nil {
			ce = NewTimeout(eng.Name(), timeout, err)
		}
		return nil, ce
	}
	if result == nil {
		return nil, NewGeneric(eng.Name(), true, errNilResult)
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result, nil
}
