package pipeline

import "github.com/example/care-coordination/internal/models"

// classify maps a group's top score and its gap to the next-best alternative
// of the same kind onto the confidence taxonomy. Downstream never upgrades
// the label; persistence stores exactly what this returns.
//
// An approximated soft signal (estimated distance) caps the label at
// needs_verification regardless of score.
func (p *Pipeline) classify(top, gap float64, approximated, empty bool) models.Confidence {
	if empty {
		return models.ConfidenceHumanReview
	}
	if !approximated && top >= p.Cfg.AutoAcceptThreshold && gap >= p.Cfg.MinMargin {
		return models.ConfidenceAutoAccept
	}
	if top >= p.Cfg.VerifyThreshold {
		return models.ConfidenceNeedsVerification
	}
	return models.ConfidenceHumanReview
}
