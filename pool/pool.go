// Package pool keeps a fixed number of browser sessions alive and hands them
// out one caller at a time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/reader/browser"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotInitialized = errors.New("pool: not initialized")
	ErrPoolClosed     = errors.New("pool: closed")
	ErrQueueFull      = errors.New("pool: queue full")
	ErrQueueTimeout   = errors.New("pool: timed out waiting for a session")
)

// Config sizes the pool and its maintenance schedule.
type Config struct {
	Size int

	// RetireAfterRequests and RetireAfterAge trigger a recycle; zero disables.
	RetireAfterRequests int
	RetireAfterAge      time.Duration

	MaxQueueSize int
	QueueTimeout time.Duration

	RecycleInterval time.Duration
	HealthInterval  time.Duration
}

// DefaultConfig returns the stock pool settings.
func DefaultConfig() Config {
	return Config{
		Size:                2,
		RetireAfterRequests: 100,
		RetireAfterAge:      30 * time.Minute,
		MaxQueueSize:        100,
		QueueTimeout:        60 * time.Second,
		RecycleInterval:     time.Minute,
		HealthInterval:      5 * time.Minute,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Size < 1 {
		c.Size = 1
	}
	if c.MaxQueueSize < 0 {
		c.MaxQueueSize = 0
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = d.QueueTimeout
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = d.RecycleInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	return c
}

type acquireResult struct {
	session *Session
	err     error
}

// waiter is a queued Acquire. resolved is guarded by Pool.mu and flips
// exactly once; whoever flips it owns the single send on ch.
type waiter struct {
	ch       chan acquireResult
	enqueued time.Time
	resolved bool
}

// Pool manages Size browser sessions. Every state change happens under mu.
type Pool struct {
	cfg     Config
	factory browser.Factory
	now     func() time.Time

	// initMu serializes Initialize so concurrent callers open one set of
	// sessions.
	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	closed      bool
	slots       []*Session
	available   []*Session
	inUse       map[*Session]struct{}
	queue       []*waiter

	totalRequests int64
	totalBusy     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pool. Nothing is launched until Initialize.
func New(cfg Config, factory browser.Factory) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg.normalize(),
		factory: factory,
		now:     time.Now,
		inUse:   make(map[*Session]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config { return p.cfg }

// Initialize opens Size sessions concurrently and starts the recycle sweep and
// the health check. If any session fails to open, the ones that did are closed
// and the error is returned.
func (p *Pool) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	pages := make([]browser.Page, p.cfg.Size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		g.Go(func() error {
			page, err := p.factory(gctx)
			if err != nil {
				return fmt.Errorf("pool: open session %d: %w", i, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, page := range pages {
			if page != nil {
				_ = page.Close()
			}
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		for _, page := range pages {
			_ = page.Close()
		}
		return ErrPoolClosed
	}
	p.slots = make([]*Session, len(pages))
	for i, page := range pages {
		s := p.newSessionLocked(i, page)
		p.slots[i] = s
		p.available = append(p.available, s)
	}
	p.initialized = true

	p.wg.Add(2)
	go p.sweepLoop()
	go p.healthLoop()

	slog.Info("pool initialized", "size", p.cfg.Size)
	return nil
}

func (p *Pool) newSessionLocked(slot int, page browser.Page) *Session {
	now := p.now()
	return &Session{
		id:       uuid.NewString(),
		slot:     slot,
		page:     page,
		created:  now,
		lastUsed: now,
		status:   StatusIdle,
	}
}

// Acquire returns the longest-idle session, or waits in FIFO order for one.
// It fails with ErrQueueFull when the wait queue is at capacity, with
// ErrQueueTimeout after QueueTimeout, with ctx.Err() on cancellation and with
// ErrPoolClosed on shutdown.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if !p.initialized {
		p.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if len(p.available) > 0 {
		s := p.checkoutLocked()
		p.mu.Unlock()
		return s, nil
	}
	if len(p.queue) >= p.cfg.MaxQueueSize {
		queued := len(p.queue)
		p.mu.Unlock()
		slog.Debug("pool: queue full", "queued", queued)
		return nil, ErrQueueFull
	}
	w := &waiter{ch: make(chan acquireResult, 1), enqueued: p.now()}
	p.queue = append(p.queue, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.QueueTimeout)
	defer timer.Stop()

	select {
	case r := <-w.ch:
		return r.session, r.err

	case <-timer.C:
		if r, handedOff := p.abandon(w); handedOff {
			return r.session, r.err
		}
		return nil, ErrQueueTimeout

	case <-ctx.Done():
		if r, handedOff := p.abandon(w); handedOff && r.session != nil {
			p.release(r.session, false, false)
		}
		return nil, ctx.Err()
	}
}

// abandon drops w from the queue. If w was resolved concurrently, the result
// it was handed is returned instead.
func (p *Pool) abandon(w *waiter) (acquireResult, bool) {
	p.mu.Lock()
	if w.resolved {
		p.mu.Unlock()
		return <-w.ch, true
	}
	w.resolved = true
	for i, q := range p.queue {
		if q == w {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	return acquireResult{}, false
}

// checkoutLocked pops the oldest idle session and marks it busy.
func (p *Pool) checkoutLocked() *Session {
	s := p.available[0]
	p.available[0] = nil
	p.available = p.available[1:]
	s.status = StatusBusy
	s.acquiredAt = p.now()
	p.inUse[s] = struct{}{}
	return s
}

// Release returns a session. Releasing a session the pool does not consider
// checked out is a no-op.
func (p *Pool) Release(s *Session) {
	p.release(s, true, false)
}

func (p *Pool) release(s *Session, used, failed bool) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[s]; !ok {
		return
	}
	delete(p.inUse, s)

	now := p.now()
	if used {
		s.requests++
		s.lastUsed = now
		s.recordResult(failed)
		p.totalRequests++
		p.totalBusy += now.Sub(s.acquiredAt)
	}

	if p.closed {
		return
	}

	if s.shouldRecycle(p.cfg, now) {
		p.startRecycleLocked(s)
		return
	}

	s.status = StatusIdle
	p.available = append(p.available, s)
	p.drainLocked()
}

// drainLocked hands idle sessions to waiters, oldest first. Waiters that have
// outlived QueueTimeout are failed instead.
func (p *Pool) drainLocked() {
	now := p.now()
	for len(p.queue) > 0 && len(p.available) > 0 {
		w := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		if w.resolved {
			continue
		}
		w.resolved = true
		if now.Sub(w.enqueued) >= p.cfg.QueueTimeout {
			w.ch <- acquireResult{err: ErrQueueTimeout}
			continue
		}
		w.ch <- acquireResult{session: p.checkoutLocked()}
	}
}

// startRecycleLocked takes s out of rotation and replaces it in the
// background. The caller has already removed s from available and inUse.
func (p *Pool) startRecycleLocked(s *Session) {
	s.status = StatusRecycling
	p.wg.Add(1)
	go p.recycle(s)
}

func (p *Pool) recycle(old *Session) {
	defer p.wg.Done()

	slog.Debug("pool: recycling session", "id", old.id, "slot", old.slot, "requests", old.requests)
	if err := old.page.Close(); err != nil {
		slog.Debug("pool: close during recycle failed", "id", old.id, "error", err)
	}

	page, err := p.factory(p.ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		if page != nil {
			_ = page.Close()
		}
		return
	}
	if err != nil {
		old.status = StatusUnhealthy
		old.page = nil
		slog.Warn("pool: session replacement failed, slot marked unhealthy", "slot", old.slot, "error", err)
		return
	}

	fresh := p.newSessionLocked(old.slot, page)
	p.slots[old.slot] = fresh
	p.available = append(p.available, fresh)
	p.drainLocked()
}

// WithSession runs fn with an acquired session and releases it on every exit
// path, including a panic in fn.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	failed := true
	defer func() { p.release(s, true, failed) }()

	err = fn(s)
	failed = countsAgainstSession(err)
	return err
}

// SiteOutcome is implemented by errors that describe the target site, such as
// an anti-bot page, thin content or an error status, rather than the tab.
// Errors reporting true do not count toward a session's failure score.
type SiteOutcome interface {
	SiteOutcome() bool
}

func countsAgainstSession(err error) bool {
	if err == nil {
		return false
	}
	var so SiteOutcome
	if errors.As(err, &so) && so.SiteOutcome() {
		return false
	}
	return true
}

// Shutdown stops maintenance, fails every queued Acquire with ErrPoolClosed
// and closes all sessions. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()

	for _, w := range p.queue {
		if !w.resolved {
			w.resolved = true
			w.ch <- acquireResult{err: ErrPoolClosed}
		}
	}
	p.queue = nil

	var pages []browser.Page
	for _, s := range p.slots {
		if s.status == StatusIdle || s.status == StatusBusy {
			pages = append(pages, s.page)
		}
	}
	p.slots = nil
	p.available = nil
	p.inUse = make(map[*Session]struct{})
	p.mu.Unlock()

	p.wg.Wait()

	var g errgroup.Group
	for _, page := range pages {
		g.Go(func() error {
			if err := page.Close(); err != nil {
				slog.Debug("pool: close on shutdown failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("pool shut down", "closed", len(pages))
}

// Sessions returns a snapshot of every slot.
func (p *Pool) Sessions() []SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SessionInfo, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, s.info())
	}
	return out
}
