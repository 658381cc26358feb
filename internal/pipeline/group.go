package pipeline

import (
	"sort"

	"github.com/example/care-coordination/internal/models"
)

// buildGroups partitions scored candidates into presentable recommendation
// groups and attaches confidence labels.
//
// For a both-type request a combined group is an organisation verified on the
// care and transport sides at once; the split group pairs the best
// independently-scored candidate of each side. When both exist the combined
// group ranks first if its score is within the configured tolerance of the
// split aggregate, otherwise the split group leads. Single-type requests
// yield one single-side group. A group is always produced, even with zero
// members, so an exhausted candidate set reads as human_review rather than
// an error.
func (p *Pipeline) buildGroups(spec models.MatchSpec, scored []models.ScoredCandidate) []models.RecommendationGroup {
	bySide := make(map[models.Side][]models.ScoredCandidate)
	for _, sc := range scored {
		bySide[sc.Side] = append(bySide[sc.Side], sc)
	}

	if spec.Type != models.RequestBoth {
		side := spec.Sides()[0]
		return []models.RecommendationGroup{p.singleSideGroup(bySide[side])}
	}

	care := bySide[models.SideCare]
	transport := bySide[models.SideTransport]

	combined := p.combinedGroups(care, transport)
	split := p.splitGroup(care, transport)

	if len(combined) == 0 {
		return []models.RecommendationGroup{split}
	}
	best := combined[0]

	// A split pairing that is just the combined organisation on both sides
	// adds nothing over the combined group.
	if sameSingleOrg(split, best) {
		return []models.RecommendationGroup{best}
	}
	if best.Score >= split.Score-p.Cfg.CombinedTolerance {
		return []models.RecommendationGroup{best, split}
	}
	return []models.RecommendationGroup{split, best}
}

func (p *Pipeline) singleSideGroup(list []models.ScoredCandidate) models.RecommendationGroup {
	g := models.RecommendationGroup{Kind: models.GroupSplit}
	if len(list) == 0 {
		g.Confidence = p.classify(0, 0, false, true)
		return g
	}
	top := list[0]
	gap := top.Score
	if len(list) > 1 {
		gap = top.Score - list[1].Score
	}
	g.Members = []models.ScoredCandidate{top}
	g.Score = top.Score
	g.Confidence = p.classify(top.Score, gap, top.Approximated, false)
	return g
}

// combinedGroups finds organisations verified on both sides, ranked by the
// mean of their two side scores. Confidence is classified against the
// runner-up combined organisation.
func (p *Pipeline) combinedGroups(care, transport []models.ScoredCandidate) []models.RecommendationGroup {
	careOrgs := make(map[string]models.ScoredCandidate)
	for _, sc := range care {
		if sc.Kind == models.KindOrganisation {
			if _, seen := careOrgs[sc.ID]; !seen {
				careOrgs[sc.ID] = sc
			}
		}
	}
	var groups []models.RecommendationGroup
	seen := make(map[string]bool)
	for _, sc := range transport {
		if sc.Kind != models.KindOrganisation || seen[sc.ID] {
			continue
		}
		careSide, ok := careOrgs[sc.ID]
		if !ok {
			continue
		}
		seen[sc.ID] = true
		groups = append(groups, models.RecommendationGroup{
			Kind:    models.GroupCombined,
			Members: []models.ScoredCandidate{careSide, sc},
			Score:   (careSide.Score + sc.Score) / 2,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].Members[0].ID < groups[j].Members[0].ID
	})
	for i := range groups {
		gap := groups[i].Score
		if len(groups) > 1 {
			if i == 0 {
				gap = groups[0].Score - groups[1].Score
			} else {
				gap = groups[i].Score - groups[0].Score
			}
		}
		groups[i].Confidence = p.classify(groups[i].Score, gap, anyApproximated(groups[i].Members), false)
	}
	return groups
}

// splitGroup pairs the best care candidate with the best transport candidate.
// The gap used for classification is against the next-best pairing, formed by
// swapping in the runner-up on either side.
func (p *Pipeline) splitGroup(care, transport []models.ScoredCandidate) models.RecommendationGroup {
	g := models.RecommendationGroup{Kind: models.GroupSplit}
	if len(care) == 0 && len(transport) == 0 {
		g.Confidence = p.classify(0, 0, false, true)
		return g
	}
	var members []models.ScoredCandidate
	var sum float64
	if len(care) > 0 {
		members = append(members, care[0])
		sum += care[0].Score
	}
	if len(transport) > 0 {
		members = append(members, transport[0])
		sum += transport[0].Score
	}
	g.Members = members
	g.Score = sum / 2

	// A required side with zero verified candidates forces human review.
	if len(care) == 0 || len(transport) == 0 {
		g.Confidence = p.classify(0, 0, false, true)
		return g
	}

	gap := g.Score
	bestAlt := -1.0
	if len(care) > 1 {
		if alt := (care[1].Score + transport[0].Score) / 2; alt > bestAlt {
			bestAlt = alt
		}
	}
	if len(transport) > 1 {
		if alt := (care[0].Score + transport[1].Score) / 2; alt > bestAlt {
			bestAlt = alt
		}
	}
	if bestAlt >= 0 {
		gap = g.Score - bestAlt
	}
	g.Confidence = p.classify(g.Score, gap, anyApproximated(members), false)
	return g
}

func anyApproximated(members []models.ScoredCandidate) bool {
	for _, m := range members {
		if m.Approximated {
			return true
		}
	}
	return false
}

func sameSingleOrg(split, combined models.RecommendationGroup) bool {
	if len(combined.Members) == 0 || len(split.Members) == 0 {
		return false
	}
	orgID := combined.Members[0].ID
	for _, m := range split.Members {
		if m.ID != orgID {
			return false
		}
	}
	return true
}
