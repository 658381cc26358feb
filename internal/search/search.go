// Package search is the approximate candidate discovery layer. The index is
// allowed to lag the authoritative store; callers must re-verify hard
// constraints before trusting anything it returns.
package search

import (
	"context"
	"log/slog"

	"github.com/example/care-coordination/internal/models"
)

// Index is the search-index interface consumed by the pipeline.
type Index interface {
	Search(ctx context.Context, q Query) ([]models.Candidate, error)
}

// Upserter is implemented by indexes that can be written directly, used by
// the ingestion path when no message broker is configured.
type Upserter interface {
	Upsert(ctx context.Context, p models.ProviderProfile) error
}

// Query is a typed filter predicate for one index call. Exactly two queries
// are built per pipeline run: one for organisations, one for workers.
type Query struct {
	Kind models.CandidateKind

	// Sides the entity must serve at least one of. A hit yields one
	// candidate per served requested side.
	Sides []models.Side

	// Conditional filters, applied only when set on the match spec.
	WheelchairVehicle bool
	VerifiedOnly      bool
	Capabilities      []models.Capability

	Origin        *models.Coord
	MaxDistanceKm float64
	Limit         int
}

// capabilityFields maps the enumerated capability set onto index filter
// fields. Capabilities outside this map never reach a query: the spec loader
// drops unrecognized tags, and the builder skips anything unmapped so a bad
// tag fails closed instead of malforming the query.
var capabilityFields = map[models.Capability]string{
	models.CapDriving:            "cap_driving",
	models.CapWheelchairTransfer: "cap_wheelchair_transfer",
	models.CapManualHandling:     "cap_manual_handling",
	models.CapMedication:         "cap_medication",
	models.CapBehaviourSupport:   "cap_behaviour_support",
}

// FieldForCapability reports the index field for a capability tag.
func FieldForCapability(c models.Capability) (string, bool) {
	f, ok := capabilityFields[c]
	return f, ok
}

// BuildOrgQuery derives the organisation-side predicate from a match spec.
func BuildOrgQuery(spec models.MatchSpec, limit int, logger *slog.Logger) Query {
	q := Query{
		Kind:          models.KindOrganisation,
		Sides:         spec.Sides(),
		VerifiedOnly:  spec.VerifiedOnly,
		Origin:        spec.Location,
		MaxDistanceKm: spec.MaxDistanceKm,
		Limit:         limit,
	}
	if spec.WheelchairAccess && spec.Type != models.RequestCare {
		q.WheelchairVehicle = true
	}
	q.Capabilities = mappedCapabilities(spec.Capabilities, logger)
	return q
}

// BuildWorkerQuery derives the worker-side predicate from a match spec.
// Workers are never filtered on organisation verification; that is an org
// attribute checked on their employer at verification time.
func BuildWorkerQuery(spec models.MatchSpec, limit int, logger *slog.Logger) Query {
	q := Query{
		Kind:          models.KindWorker,
		Sides:         spec.Sides(),
		Origin:        spec.Location,
		MaxDistanceKm: spec.MaxDistanceKm,
		Limit:         limit,
	}
	if spec.WheelchairAccess && spec.Type != models.RequestCare {
		q.WheelchairVehicle = true
	}
	q.Capabilities = mappedCapabilities(spec.Capabilities, logger)
	return q
}

func mappedCapabilities(caps []models.Capability, logger *slog.Logger) []models.Capability {
	out := make([]models.Capability, 0, len(caps))
	for _, c := range caps {
		if _, ok := capabilityFields[c]; !ok {
			if logger != nil {
				logger.Warn("ignoring unmapped capability filter", "capability", string(c))
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// matchesFilters applies the non-geo parts of a query to a profile.
func matchesFilters(q Query, p models.ProviderProfile) bool {
	if !p.Active || p.Kind != q.Kind {
		return false
	}
	if !servesAny(p, q.Sides) {
		return false
	}
	if q.VerifiedOnly && !p.Verified {
		return false
	}
	if q.WheelchairVehicle && !p.WheelchairVehicle {
		return false
	}
	for _, c := range q.Capabilities {
		if !hasCapability(p, c) {
			return false
		}
	}
	return true
}

func servesAny(p models.ProviderProfile, sides []models.Side) bool {
	for _, s := range sides {
		if serves(p, s) {
			return true
		}
	}
	return false
}

func serves(p models.ProviderProfile, s models.Side) bool {
	if s == models.SideCare {
		return p.ProvidesCare
	}
	return p.ProvidesTransport
}

func hasCapability(p models.ProviderProfile, c models.Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// expand turns one profile hit into per-side candidates for every requested
// side the profile serves.
func expand(q Query, p models.ProviderProfile, distKm *float64) []models.Candidate {
	out := make([]models.Candidate, 0, 2)
	for _, s := range q.Sides {
		if !serves(p, s) {
			continue
		}
		out = append(out, models.Candidate{
			ID:           p.ID,
			Kind:         p.Kind,
			OrgID:        p.OrgID,
			Side:         s,
			TextScore:    p.Relevance,
			DistanceKm:   distKm,
			Loc:          p.Loc,
			Reliability:  p.Reliability,
			Capabilities: append([]models.Capability(nil), p.Capabilities...),
		})
	}
	return out
}
