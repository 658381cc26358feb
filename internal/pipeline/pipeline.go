// Package pipeline turns a coordination request id into a persisted,
// idempotent set of ranked, confidence-labeled recommendation groups.
//
// The run is a strict left-to-right sequence: load -> search -> verify ->
// score -> group -> persist. Discovery reads the eventually-consistent search
// index; verification re-checks every hard constraint against the
// authoritative store before anything is scored. No stage retries; the first
// error aborts the run before persistence.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/care-coordination/internal/config"
	"github.com/example/care-coordination/internal/geo"
	"github.com/example/care-coordination/internal/models"
	"github.com/example/care-coordination/internal/observability"
	"github.com/example/care-coordination/internal/search"
	"github.com/example/care-coordination/internal/storage"
)

type stage string

const (
	stageLoading    stage = "loading"
	stageSearching  stage = "searching"
	stageVerifying  stage = "verifying"
	stageScoring    stage = "scoring"
	stageGrouping   stage = "grouping"
	stagePersisting stage = "persisting"
	stageDone       stage = "done"
)

// Pipeline owns one recommendation run end to end. All collaborators are
// injected interfaces so runs are reproducible against in-memory fakes.
// Instances are safe for concurrent use across request ids; concurrent runs
// for the same id converge through the persister's upsert.
type Pipeline struct {
	Requests storage.RequestStore
	Index    search.Index
	Store    storage.AuthoritativeStore
	Recs     storage.RecommendationStore
	Cfg      config.MatchConfig
	Logger   *slog.Logger

	// Optional routing estimator and cache for candidates without an
	// indexed distance.
	Estimator geo.Estimator
	DistCache *geo.Cache
}

func New(requests storage.RequestStore, index search.Index, store storage.AuthoritativeStore, recs storage.RecommendationStore, cfg config.MatchConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Requests: requests, Index: index, Store: store, Recs: recs, Cfg: cfg, Logger: logger}
}

// Result is the successful output of one run.
type Result struct {
	RequestID   string                       `json:"request_id"`
	Groups      []models.RecommendationGroup `json:"groups"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

// Run executes the full pipeline for one request id.
func (p *Pipeline) Run(ctx context.Context, requestID string) (*Result, error) {
	start := time.Now()
	logger := p.Logger.With("request_id", requestID)
	st := stageLoading

	res, err := p.run(ctx, requestID, &st, logger)

	observability.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues(string(KindOf(err))).Inc()
		logger.Error("pipeline run failed", "stage", string(st), "error", err)
		return nil, err
	}
	observability.PipelineRunsTotal.WithLabelValues("success").Inc()
	logger.Info("pipeline run complete", "groups", len(res.Groups), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, requestID string, st *stage, logger *slog.Logger) (*Result, error) {
	spec, err := p.loadSpec(ctx, requestID)
	if err != nil {
		return nil, err
	}

	*st = stageSearching
	cands, err := p.searchCandidates(ctx, spec, logger)
	if err != nil {
		return nil, err
	}

	*st = stageVerifying
	verified, err := p.verifyCandidates(ctx, spec, cands)
	if err != nil {
		return nil, err
	}

	*st = stageScoring
	scored := p.scoreCandidates(spec, verified)

	*st = stageGrouping
	groups := p.buildGroups(spec, scored)

	*st = stagePersisting
	for _, g := range groups {
		rec := models.Recommendation{
			RequestID:     requestID,
			GroupKind:     g.Kind,
			CandidateRefs: g.CandidateRefs(),
			Score:         g.Score,
			Confidence:    g.Confidence,
		}
		if _, err := p.Recs.UpsertRecommendation(ctx, rec); err != nil {
			return nil, newError(KindInternal, requestID, err)
		}
		observability.RecommendationUpserts.Inc()
	}
	if err := p.Requests.UpdateRequestStatus(ctx, requestID, models.StatusRecommended); err != nil {
		return nil, newError(KindInternal, requestID, err)
	}

	*st = stageDone
	return &Result{RequestID: requestID, Groups: groups, GeneratedAt: time.Now().UTC()}, nil
}

// searchCandidates runs the organisation and worker index queries
// concurrently; they are independent reads.
func (p *Pipeline) searchCandidates(ctx context.Context, spec models.MatchSpec, logger *slog.Logger) ([]models.Candidate, error) {
	orgQ := search.BuildOrgQuery(spec, p.Cfg.SearchLimit, logger)
	workerQ := search.BuildWorkerQuery(spec, p.Cfg.SearchLimit, logger)

	var (
		wg              sync.WaitGroup
		orgRes, workRes []models.Candidate
		orgErr, workErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		orgRes, orgErr = p.Index.Search(ctx, orgQ)
	}()
	go func() {
		defer wg.Done()
		workRes, workErr = p.Index.Search(ctx, workerQ)
	}()
	wg.Wait()

	if orgErr != nil {
		return nil, newError(KindSearchFailed, spec.RequestID, orgErr)
	}
	if workErr != nil {
		return nil, newError(KindSearchFailed, spec.RequestID, workErr)
	}
	return append(orgRes, workRes...), nil
}
