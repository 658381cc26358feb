package pipeline

import (
	"testing"

	"github.com/example/care-coordination/internal/models"
)

func scored(id string, kind models.CandidateKind, side models.Side, score float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		VerifiedCandidate: models.VerifiedCandidate{Candidate: models.Candidate{
			ID: id, Kind: kind, Side: side, Reliability: score,
		}},
		Score: score,
	}
}

func TestSplitGroupMissingSideForcesHumanReview(t *testing.T) {
	p := scoringPipeline(testConfig())
	spec := models.MatchSpec{Type: models.RequestBoth}
	groups := p.buildGroups(spec, []models.ScoredCandidate{
		scored("org-care", models.KindOrganisation, models.SideCare, 0.95),
	})
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	g := groups[0]
	if g.Kind != models.GroupSplit || g.Confidence != models.ConfidenceHumanReview {
		t.Fatalf("expected split human_review group, got %+v", g)
	}
	if len(g.Members) != 1 || g.Members[0].ID != "org-care" {
		t.Fatalf("expected the present side only, got %+v", g.Members)
	}
}

func TestCombinedAbsorbsIdenticalSplit(t *testing.T) {
	p := scoringPipeline(testConfig())
	spec := models.MatchSpec{Type: models.RequestBoth}
	// One organisation is the best on both sides; a split pairing of it with
	// itself adds nothing.
	groups := p.buildGroups(spec, []models.ScoredCandidate{
		scored("org-a", models.KindOrganisation, models.SideCare, 0.9),
		scored("org-a", models.KindOrganisation, models.SideTransport, 0.9),
	})
	if len(groups) != 1 || groups[0].Kind != models.GroupCombined {
		t.Fatalf("expected single combined group, got %+v", groups)
	}
}

func TestCombinedRunnerUpGapDrivesConfidence(t *testing.T) {
	p := scoringPipeline(testConfig())
	spec := models.MatchSpec{Type: models.RequestBoth}
	groups := p.buildGroups(spec, []models.ScoredCandidate{
		scored("org-a", models.KindOrganisation, models.SideCare, 0.92),
		scored("org-a", models.KindOrganisation, models.SideTransport, 0.92),
		scored("org-b", models.KindOrganisation, models.SideCare, 0.90),
		scored("org-b", models.KindOrganisation, models.SideTransport, 0.90),
	})
	var combined *models.RecommendationGroup
	for i := range groups {
		if groups[i].Kind == models.GroupCombined {
			combined = &groups[i]
			break
		}
	}
	if combined == nil {
		t.Fatalf("no combined group in %+v", groups)
	}
	// Top combined scores 0.92 but the runner-up sits 0.02 behind, inside
	// the 0.10 margin, so the choice is ambiguous.
	if combined.Confidence != models.ConfidenceNeedsVerification {
		t.Fatalf("expected needs_verification, got %s", combined.Confidence)
	}
}

func TestWorkerPairsNeverFormCombined(t *testing.T) {
	p := scoringPipeline(testConfig())
	spec := models.MatchSpec{Type: models.RequestBoth}
	groups := p.buildGroups(spec, []models.ScoredCandidate{
		scored("worker-1", models.KindWorker, models.SideCare, 0.9),
		scored("worker-1", models.KindWorker, models.SideTransport, 0.9),
	})
	for _, g := range groups {
		if g.Kind == models.GroupCombined {
			t.Fatal("workers alone must not form a combined group")
		}
	}
}
