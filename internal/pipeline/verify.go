package pipeline

import (
	"context"
	"sync"

	"github.com/example/care-coordination/internal/models"
	"github.com/example/care-coordination/internal/observability"
)

// verifyCandidates re-checks hard constraints against the authoritative store.
// The search index is allowed to lag, so nothing it returned is trusted for
// availability, capacity or clearance. Candidates failing any applicable
// constraint are dropped; only store connectivity problems are errors.
//
// Fan-out is bounded so a burst of candidates cannot overwhelm the store.
func (p *Pipeline) verifyCandidates(ctx context.Context, spec models.MatchSpec, cands []models.Candidate) ([]models.VerifiedCandidate, error) {
	type outcome struct {
		vc   models.VerifiedCandidate
		pass bool
		err  error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]outcome, len(cands))
	sem := make(chan struct{}, p.Cfg.VerifyConcurrency)
	var wg sync.WaitGroup

	for i, c := range cands {
		wg.Add(1)
		go func(i int, c models.Candidate) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = outcome{err: ctx.Err()}
				return
			}
			vc, pass, err := p.verifyOne(ctx, spec, c)
			results[i] = outcome{vc: vc, pass: pass, err: err}
			if err != nil {
				cancel()
			}
		}(i, c)
	}
	wg.Wait()

	out := make([]models.VerifiedCandidate, 0, len(cands))
	for _, res := range results {
		if res.err != nil {
			return nil, newError(KindVerifyFailed, spec.RequestID, res.err)
		}
		if !res.pass {
			observability.CandidatesDropped.Inc()
			continue
		}
		observability.CandidatesVerified.Inc()
		out = append(out, res.vc)
	}
	return out, nil
}

func (p *Pipeline) verifyOne(ctx context.Context, spec models.MatchSpec, c models.Candidate) (models.VerifiedCandidate, bool, error) {
	vc := models.VerifiedCandidate{Candidate: c}

	ok, err := p.Store.VerifyAvailability(ctx, c.ID, spec.Window)
	if err != nil {
		return vc, false, err
	}
	vc.Checks.Availability = ok
	if !ok {
		return vc, false, nil
	}

	// Vehicle/pool capacity applies only to the transport side. Workers draw
	// on their employer's pool when they have one.
	vc.Checks.Capacity = true
	if c.Side == models.SideTransport {
		orgRef := c.ID
		if c.Kind == models.KindWorker && c.OrgID != "" {
			orgRef = c.OrgID
		}
		ok, err = p.Store.VerifyCapacity(ctx, orgRef)
		if err != nil {
			return vc, false, err
		}
		vc.Checks.Capacity = ok
		if !ok {
			return vc, false, nil
		}
	}

	vc.Checks.Clearance = true
	if c.Kind == models.KindWorker {
		ok, err = p.Store.VerifyClearance(ctx, c.ID)
		if err != nil {
			return vc, false, err
		}
		vc.Checks.Clearance = ok
		if !ok {
			return vc, false, nil
		}
	}

	return vc, true, nil
}
