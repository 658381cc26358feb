package search

import (
	"context"
	"sort"
	"sync"

	"github.com/example/care-coordination/internal/geo"
	"github.com/example/care-coordination/internal/models"
)

// MemoryIndex is an in-process Index used when Redis is not configured and as
// the test double. It holds the same profile shape the Redis index stores.
type MemoryIndex struct {
	mu       sync.RWMutex
	profiles map[string]models.ProviderProfile
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{profiles: make(map[string]models.ProviderProfile)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, p models.ProviderProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type hit struct {
		p    models.ProviderProfile
		dist *float64
	}
	hits := make([]hit, 0, len(m.profiles))
	for _, p := range m.profiles {
		if !matchesFilters(q, p) {
			continue
		}
		var dist *float64
		if q.Origin != nil && p.Loc != nil {
			d := geo.HaversineKm(*q.Origin, *p.Loc)
			if q.MaxDistanceKm > 0 && d > q.MaxDistanceKm {
				continue
			}
			dist = &d
		}
		hits = append(hits, hit{p: p, dist: dist})
	}

	// Primary geo-distance ascending when the spec has a location, falling
	// back to reliability then recency otherwise. Hits without a geo point
	// sort after located ones.
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if q.Origin != nil {
			switch {
			case a.dist != nil && b.dist != nil && *a.dist != *b.dist:
				return *a.dist < *b.dist
			case a.dist != nil && b.dist == nil:
				return true
			case a.dist == nil && b.dist != nil:
				return false
			}
			if a.p.Reliability != b.p.Reliability {
				return a.p.Reliability > b.p.Reliability
			}
			return a.p.ID < b.p.ID
		}
		if a.p.Reliability != b.p.Reliability {
			return a.p.Reliability > b.p.Reliability
		}
		if !a.p.Updated.Equal(b.p.Updated) {
			return a.p.Updated.After(b.p.Updated)
		}
		return a.p.ID < b.p.ID
	})

	out := make([]models.Candidate, 0, q.Limit)
	for _, h := range hits {
		out = append(out, expand(q, h.p, h.dist)...)
		if q.Limit > 0 && len(out) >= q.Limit {
			out = out[:q.Limit]
			break
		}
	}
	return out, nil
}
