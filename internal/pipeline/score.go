package pipeline

import (
	"math"
	"sort"

	"github.com/example/care-coordination/internal/geo"
	"github.com/example/care-coordination/internal/models"
)

// scoreCandidates computes the weighted match score for every verified
// candidate and returns them in final ranking order. Ordering is fully
// deterministic: score descending, then reliability descending, then
// lexicographically smaller identifier, so repeat runs over identical inputs
// persist identically.
func (p *Pipeline) scoreCandidates(spec models.MatchSpec, cands []models.VerifiedCandidate) []models.ScoredCandidate {
	var maxText float64
	for _, c := range cands {
		if c.TextScore > maxText {
			maxText = c.TextScore
		}
	}

	out := make([]models.ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		distTerm, approximated := p.distanceTerm(spec, c.Candidate)

		overlap := 1.0
		if len(spec.Capabilities) > 0 {
			have := 0
			for _, want := range spec.Capabilities {
				if c.HasCapability(want) {
					have++
				}
			}
			overlap = float64(have) / float64(len(spec.Capabilities))
		}

		text := 0.0
		if maxText > 0 {
			text = c.TextScore / maxText
		}

		score := p.Cfg.DistanceWeight*distTerm +
			p.Cfg.ReliabilityWeight*c.Reliability +
			p.Cfg.CapabilityWeight*overlap +
			p.Cfg.TextWeight*text

		out = append(out, models.ScoredCandidate{
			VerifiedCandidate: c,
			Score:             score,
			Approximated:      approximated,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Side < b.Side
	})

	ranks := make(map[models.Side]int)
	for i := range out {
		ranks[out[i].Side]++
		out[i].Rank = ranks[out[i].Side]
	}
	return out
}

// distanceTerm normalizes geo distance into [0,1], closer is better. When the
// index carried no distance the term is estimated from profile coordinates
// and flagged as approximated; with no coordinates at all the term is zero
// and still approximated, so classification can only cap the group.
func (p *Pipeline) distanceTerm(spec models.MatchSpec, c models.Candidate) (float64, bool) {
	if spec.Location == nil {
		return 0, false
	}
	maxKm := spec.MaxDistanceKm
	if maxKm <= 0 {
		maxKm = p.Cfg.DefaultMaxDistanceKm
	}
	if c.DistanceKm != nil {
		return 1 - math.Min(*c.DistanceKm/maxKm, 1), false
	}
	if c.Loc == nil {
		return 0, true
	}
	return 1 - math.Min(p.estimateKm(*spec.Location, *c.Loc)/maxKm, 1), true
}

func (p *Pipeline) estimateKm(from, to models.Coord) float64 {
	if p.DistCache != nil {
		if v, ok := p.DistCache.Get(from, to); ok {
			return v
		}
	}
	if p.Estimator != nil {
		if v, err := p.Estimator.EstimateKm(from, to); err == nil {
			if p.DistCache != nil {
				p.DistCache.Set(from, to, v)
			}
			return v
		}
	}
	return geo.HaversineKm(from, to)
}
