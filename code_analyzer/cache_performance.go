package code_analyzer

import (
	"log/slog"
	"time"
)

// CacheSnapshot is a point-in-time copy of a project's tree cache counters.
type CacheSnapshot struct {
	Requests      int64
	Hits          int64
	Misses        int64
	Parses        int64
	Invalidations int64
	Since         time.Time
}

// HitRate is the share of tree requests served without parsing, in [0, 1].
func (s CacheSnapshot) HitRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Requests)
}

// LogValue renders the snapshot as a slog group.
func (s CacheSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("requests", s.Requests),
		slog.Int64("hits", s.Hits),
		slog.Int64("parses", s.Parses),
		slog.Int64("invalidations", s.Invalidations),
		slog.Float64("hit_rate", s.HitRate()),
		slog.Duration("window", time.Since(s.Since)),
	)
}

func (tc *treeCache) record(update func(*CacheStats)) {
	if tc.stats == nil {
		return
	}
	tc.stats.mutex.Lock()
	update(tc.stats)
	tc.stats.mutex.Unlock()
}

func (tc *treeCache) recordCacheHit() {
	tc.record(func(s *CacheStats) { s.TotalRequests++; s.CacheHits++ })
}

func (tc *treeCache) recordCacheMiss() {
	tc.record(func(s *CacheStats) { s.TotalRequests++; s.CacheMisses++ })
}

func (tc *treeCache) recordParse() {
	tc.record(func(s *CacheStats) { s.Parses++ })
}

func (tc *treeCache) recordInvalidation() {
	tc.record(func(s *CacheStats) { s.Invalidations++ })
}

// CacheStats returns the tree cache counters accumulated since discovery or the last reset.
func (p *Project) CacheStats() CacheSnapshot {
	if p.stats == nil {
		return CacheSnapshot{}
	}
	p.stats.mutex.RLock()
	defer p.stats.mutex.RUnlock()
	return CacheSnapshot{
		Requests:      p.stats.TotalRequests,
		Hits:          p.stats.CacheHits,
		Misses:        p.stats.CacheMisses,
		Parses:        p.stats.Parses,
		Invalidations: p.stats.Invalidations,
		Since:         p.stats.LastResetTime,
	}
}

// ResetCacheStats zeroes the tree cache counters.
func (p *Project) ResetCacheStats() {
	if p.stats == nil {
		return
	}
	p.stats.mutex.Lock()
	defer p.stats.mutex.Unlock()
	p.stats.TotalRequests = 0
	p.stats.CacheHits = 0
	p.stats.CacheMisses = 0
	p.stats.Parses = 0
	p.stats.Invalidations = 0
	p.stats.LastResetTime = time.Now()
}
