package reltypes

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/pkg/logger"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relationship_type_cache_lookups_total",
	Help: "Relationship type registry lookups by cache result.",
}, []string{"result"})

// Source loads the full set of relationship types.
type Source interface {
	ListAll(ctx context.Context) ([]RelationshipType, error)
}

type cachedTypes struct {
	byName  map[string]*RelationshipType
	ordered []RelationshipType
	expiry  time.Time
}

// CacheMetrics is a snapshot of registry cache counters.
type CacheMetrics struct {
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
}

// Registry serves relationship types from an in-memory snapshot that is
// reloaded in full once the TTL elapses.
type Registry struct {
	src Source
	ttl time.Duration
	log *slog.Logger
	now func() time.Time

	cacheMu sync.RWMutex
	cache   *cachedTypes

	hits   atomic.Int64
	misses atomic.Int64
}

func NewRegistry(src Source, ttl time.Duration, log *slog.Logger) *Registry {
	return &Registry{
		src: src,
		ttl: ttl,
		log: log.With(logger.Scope("reltypes.registry")),
		now: time.Now,
	}
}

func newRegistryFromConfig(repo *Repository, cfg *config.Config, log *slog.Logger) *Registry {
	return NewRegistry(repo, cfg.Relationships.TypeCacheTTL, log)
}

// Lookup returns the named type, or nil when it is not registered. Unknown
// types are legal edge tags; callers treat them as unidirectional.
func (r *Registry) Lookup(ctx context.Context, name string) (*RelationshipType, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.byName[name], nil
}

// List returns all registered types ordered by name.
func (r *Registry) List(ctx context.Context) ([]RelationshipType, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RelationshipType, len(snap.ordered))
	copy(out, snap.ordered)
	return out, nil
}

// Invalidate drops the snapshot; the next lookup reloads.
func (r *Registry) Invalidate() {
	r.cacheMu.Lock()
	r.cache = nil
	r.cacheMu.Unlock()
}

func (r *Registry) Metrics() CacheMetrics {
	return CacheMetrics{CacheHits: r.hits.Load(), CacheMisses: r.misses.Load()}
}

func (r *Registry) snapshot(ctx context.Context) (*cachedTypes, error) {
	r.cacheMu.RLock()
	snap := r.cache
	r.cacheMu.RUnlock()
	if snap != nil && r.now().Before(snap.expiry) {
		r.hits.Add(1)
		cacheLookups.WithLabelValues("hit").Inc()
		return snap, nil
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Another caller may have reloaded while we waited for the lock.
	if r.cache != nil && r.now().Before(r.cache.expiry) {
		r.hits.Add(1)
		cacheLookups.WithLabelValues("hit").Inc()
		return r.cache, nil
	}

	r.misses.Add(1)
	cacheLookups.WithLabelValues("miss").Inc()

	types, err := r.src.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	snap = &cachedTypes{
		byName:  make(map[string]*RelationshipType, len(types)),
		ordered: types,
		expiry:  r.now().Add(r.ttl),
	}
	for i := range types {
		snap.byName[types[i].Name] = &types[i]
	}
	r.cache = snap

	r.log.Debug("relationship types loaded", slog.Int("count", len(types)))
	return snap, nil
}
