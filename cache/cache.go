package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/reader/models"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = time.Hour
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.ScrapeResponse
	createdAt time.Time
}

// Cache is an in-memory store of successful scrape responses, keyed by URL
// and the options that shape the output. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses. A background
// goroutine evicts entries older than an hour every five minutes until Stop.
func New(maxEntries int) *Cache {
	c := newCache(maxEntries, time.Now)
	go c.cleanupLoop()
	return c
}

func newCache(maxEntries int, now func() time.Time) *Cache {
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: max(maxEntries, 1),
		now:        now,
		stop:       make(chan struct{}),
	}
}

// Key derives a cache key from the URL and every option that changes the
// cleaned output or the engines allowed to produce it.
func Key(url string, o *models.ScrapeOptions) string {
	parts := []string{
		url,
		o.OutputFormat,
		strconv.FormatBool(o.MainContent()),
		strconv.FormatBool(o.StripBase64Images()),
		strconv.FormatBool(o.Citations),
		strings.Join(o.IncludeTags, ","),
		strings.Join(o.ExcludeTags, ","),
		o.ForceEngine,
		strings.Join(o.SkipEngines, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached response if it is at most maxAgeMs old.
// maxAgeMs <= 0 never hits.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	cp := *e.response
	return &cp, true
}

// Set stores a copy of resp. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	cp := *resp

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{response: &cp, createdAt: c.now()}
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-entryTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
