package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/care-coordination/internal/models"
)

// RedisIndex implements Index over Redis GEO sets, reliability zsets and
// metadata hashes. It is maintained asynchronously by the indexer consumer,
// so reads here may lag the authoritative store.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

func NewRedisIndex(addr, password, prefix string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, prefix: prefix}
}

// NewRedisIndexWithClient wraps an existing client, used by the indexer.
func NewRedisIndexWithClient(c *redis.Client, prefix string) *RedisIndex {
	return &RedisIndex{client: c, prefix: prefix}
}

func (r *RedisIndex) geoKey(kind models.CandidateKind) string {
	return r.prefix + ":geo:" + string(kind)
}

func (r *RedisIndex) relKey(kind models.CandidateKind) string {
	return r.prefix + ":rel:" + string(kind)
}

func (r *RedisIndex) metaKey(id string) string {
	return r.prefix + ":meta:" + id
}

// Upsert writes a profile into the geo set, reliability zset and meta hash.
func (r *RedisIndex) Upsert(ctx context.Context, p models.ProviderProfile) error {
	if p.Loc != nil {
		if _, err := r.client.GeoAdd(ctx, r.geoKey(p.Kind), &redis.GeoLocation{
			Longitude: p.Loc.Lng, Latitude: p.Loc.Lat, Name: p.ID,
		}).Result(); err != nil {
			return err
		}
	}
	if err := r.client.ZAdd(ctx, r.relKey(p.Kind), redis.Z{Score: p.Reliability, Member: p.ID}).Err(); err != nil {
		return err
	}
	caps := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps = append(caps, string(c))
	}
	return r.client.HSet(ctx, r.metaKey(p.ID), map[string]interface{}{
		"kind":        string(p.Kind),
		"org_id":      p.OrgID,
		"active":      strconv.FormatBool(p.Active),
		"verified":    strconv.FormatBool(p.Verified),
		"care":        strconv.FormatBool(p.ProvidesCare),
		"transport":   strconv.FormatBool(p.ProvidesTransport),
		"wheelchair":  strconv.FormatBool(p.WheelchairVehicle),
		"caps":        strings.Join(caps, ","),
		"reliability": strconv.FormatFloat(p.Reliability, 'f', -1, 64),
		"relevance":   strconv.FormatFloat(p.Relevance, 'f', -1, 64),
		"updated":     p.Updated.Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Search(ctx context.Context, q Query) ([]models.Candidate, error) {
	type hit struct {
		p    models.ProviderProfile
		dist *float64
	}
	var hits []hit

	// Over-fetch so flag filtering does not starve the capped result.
	fetch := q.Limit * 4
	if fetch <= 0 {
		fetch = 200
	}

	if q.Origin != nil {
		radius := q.MaxDistanceKm
		if radius <= 0 {
			radius = 100
		}
		res, err := r.client.GeoRadius(ctx, r.geoKey(q.Kind), q.Origin.Lng, q.Origin.Lat, &redis.GeoRadiusQuery{
			Radius: radius, Unit: "km", WithCoord: true, WithDist: true, Count: fetch, Sort: "ASC",
		}).Result()
		if err != nil {
			return nil, err
		}
		for _, g := range res {
			p, err := r.loadProfile(ctx, g.Name)
			if err != nil {
				return nil, err
			}
			if !matchesFilters(q, p) {
				continue
			}
			p.Loc = &models.Coord{Lat: g.Latitude, Lng: g.Longitude}
			d := g.Dist
			hits = append(hits, hit{p: p, dist: &d})
		}
	} else {
		ids, err := r.client.ZRevRange(ctx, r.relKey(q.Kind), 0, int64(fetch-1)).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			p, err := r.loadProfile(ctx, id)
			if err != nil {
				return nil, err
			}
			if !matchesFilters(q, p) {
				continue
			}
			hits = append(hits, hit{p: p})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if q.Origin != nil && a.dist != nil && b.dist != nil && *a.dist != *b.dist {
			return *a.dist < *b.dist
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

func (r *RedisIndex) loadProfile(ctx context.Context, id string) (models.ProviderProfile, error) {
	m, err := r.client.HGetAll(ctx, r.metaKey(id)).Result()
	if err != nil {
		return models.ProviderProfile{}, err
	}
	p := models.ProviderProfile{
		ID:                id,
		Kind:              models.CandidateKind(m["kind"]),
		OrgID:             m["org_id"],
		Active:            m["active"] == "true",
		Verified:          m["verified"] == "true",
		ProvidesCare:      m["care"] == "true",
		ProvidesTransport: m["transport"] == "true",
		WheelchairVehicle: m["wheelchair"] == "true",
	}
	if v, ok := m["reliability"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Reliability = f
		}
	}
	if v, ok := m["relevance"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Relevance = f
		}
	}
	if v, ok := m["caps"]; ok && v != "" {
		for _, c := range strings.Split(v, ",") {
			p.Capabilities = append(p.Capabilities, models.Capability(c))
		}
	}
	if v, ok := m["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			p.Updated = ts
		}
	}
	return p, nil
}
