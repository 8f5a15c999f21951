// Package cache provides a bounded in-memory TTL cache for prediction results.
package cache

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// MemoryCache is an expiring LRU of predictions. Keys embed the strategy and
// model version, so publishing a new model makes older entries unreachable.
type MemoryCache struct {
	lru    *expirable.LRU[string, domain.Prediction]
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewMemoryCache creates a cache holding at most maxItems entries for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, domain.Prediction](maxItems, nil, ttl),
	}, nil
}

// PredictionKey identifies one prediction request under one model.
func PredictionKey(strategy domain.Strategy, version int64, obs domain.Observation, adjustment int) string {
	return string(strategy) + "|" +
		strconv.FormatInt(version, 10) + "|" +
		strconv.FormatFloat(obs.AFP, 'g', -1, 64) + "|" +
		strconv.FormatFloat(obs.PIVKAII, 'g', -1, 64) + "|" +
		strconv.FormatFloat(obs.TumorBurden, 'g', -1, 64) + "|" +
		strconv.Itoa(adjustment)
}

// Get returns a copy of the cached prediction.
func (c *MemoryCache) Get(key string) (*domain.Prediction, bool) {
	p, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	p.Recommendations = append([]string(nil), p.Recommendations...)
	return &p, true
}

// Set stores a copy of the prediction.
func (c *MemoryCache) Set(key string, p *domain.Prediction) {
	stored := *p
	stored.Recommendations = append([]string(nil), p.Recommendations...)
	c.lru.Add(key, stored)
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats returns current counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Size:   c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
