package pipeline

import (
	"testing"

	"github.com/example/care-coordination/internal/models"
)

func classifierPipeline() *Pipeline {
	p := scoringPipeline(testConfig())
	// thresholds: auto >= 0.80 with margin >= 0.10, verify >= 0.60
	return p
}

func TestClassify(t *testing.T) {
	p := classifierPipeline()
	cases := []struct {
		name         string
		top, gap     float64
		approximated bool
		empty        bool
		want         models.Confidence
	}{
		{"unambiguous best", 0.9, 0.2, false, false, models.ConfidenceAutoAccept},
		{"margin too small", 0.9, 0.05, false, false, models.ConfidenceNeedsVerification},
		{"good score approximated", 0.9, 0.3, true, false, models.ConfidenceNeedsVerification},
		{"middling score", 0.65, 0.3, false, false, models.ConfidenceNeedsVerification},
		{"weak score", 0.4, 0.4, false, false, models.ConfidenceHumanReview},
		{"weak approximated", 0.4, 0.4, true, false, models.ConfidenceHumanReview},
		{"empty group", 0, 0, false, true, models.ConfidenceHumanReview},
	}
	for _, tc := range cases {
		if got := p.classify(tc.top, tc.gap, tc.approximated, tc.empty); got != tc.want {
			t.Errorf("%s: classify(%v,%v,%v,%v) = %s, want %s", tc.name, tc.top, tc.gap, tc.approximated, tc.empty, got, tc.want)
		}
	}
}

// Raising the top score with a fixed runner-up must never move the label
// toward human_review.
func TestClassifyMonotonicInTopScore(t *testing.T) {
	p := classifierPipeline()
	rank := map[models.Confidence]int{
		models.ConfidenceHumanReview:       0,
		models.ConfidenceNeedsVerification: 1,
		models.ConfidenceAutoAccept:        2,
	}
	const runnerUp = 0.55
	prev := -1
	for top := runnerUp; top <= 1.0; top += 0.01 {
		got := rank[p.classify(top, top-runnerUp, false, false)]
		if got < prev {
			t.Fatalf("label degraded at top=%v", top)
		}
		prev = got
	}
}
