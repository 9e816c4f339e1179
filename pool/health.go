package pool

import (
	"fmt"
	"log/slog"
	"time"
)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total              int           `json:"total"`
	Available          int           `json:"available"`
	Busy               int           `json:"busy"`
	Recycling          int           `json:"recycling"`
	Unhealthy          int           `json:"unhealthy"`
	QueueLength        int           `json:"queue_length"`
	TotalRequests      int64         `json:"total_requests"`
	AvgRequestDuration time.Duration `json:"avg_request_duration"`
}

// Health is the result of a health check.
type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
	Stats   Stats    `json:"stats"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	st := Stats{
		Total:         len(p.slots),
		Available:     len(p.available),
		Busy:          len(p.inUse),
		QueueLength:   len(p.queue),
		TotalRequests: p.totalRequests,
	}
	for _, s := range p.slots {
		switch s.status {
		case StatusRecycling:
			st.Recycling++
		case StatusUnhealthy:
			st.Unhealthy++
		}
	}
	if p.totalRequests > 0 {
		st.AvgRequestDuration = p.totalBusy / time.Duration(p.totalRequests)
	}
	return st
}

// HealthCheck reports unhealthy slots, a queue above 80% of capacity and
// saturation (nothing idle while callers wait).
func (p *Pool) HealthCheck() Health {
	st := p.Stats()
	h := Health{Stats: st}

	if st.Unhealthy > 0 {
		h.Issues = append(h.Issues, fmt.Sprintf("%d unhealthy session(s)", st.Unhealthy))
	}
	if p.cfg.MaxQueueSize > 0 && float64(st.QueueLength) > 0.8*float64(p.cfg.MaxQueueSize) {
		h.Issues = append(h.Issues, fmt.Sprintf("queue at %d/%d", st.QueueLength, p.cfg.MaxQueueSize))
	}
	if st.Available == 0 && st.QueueLength > 0 {
		h.Issues = append(h.Issues, "pool saturated")
	}
	h.Healthy = len(h.Issues) == 0
	return h
}

func (p *Pool) healthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			h := p.HealthCheck()
			for _, issue := range h.Issues {
				slog.Warn("pool health issue", "issue", issue,
					"available", h.Stats.Available, "busy", h.Stats.Busy, "queued", h.Stats.QueueLength)
			}
		}
	}
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.RecycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep recycles idle sessions that have worn out. Busy sessions are left
// alone; they are checked when released.
func (p *Pool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	now := p.now()
	kept := p.available[:0]
	var retired []*Session
	for _, s := range p.available {
		if s.shouldRecycle(p.cfg, now) {
			retired = append(retired, s)
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(p.available); i++ {
		p.available[i] = nil
	}
	p.available = kept

	for _, s := range retired {
		p.startRecycleLocked(s)
	}
	if len(retired) > 0 {
		slog.Debug("pool: sweep recycled idle sessions", "count", len(retired))
	}
}
