package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/example/care-coordination/internal/config"
	"github.com/example/care-coordination/internal/models"
	"github.com/example/care-coordination/internal/search"
	"github.com/example/care-coordination/internal/storage"
)

const reqID = "7f9c24e5-1b8a-4a1d-9e0f-3c2b1a0d8e7f"

var window = models.TimeWindow{
	From:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	Until: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
}

// testConfig scores on reliability alone so expected scores are readable.
func testConfig() config.MatchConfig {
	cfg := config.DefaultMatchConfig()
	cfg.DistanceWeight = 0
	cfg.ReliabilityWeight = 1
	cfg.CapabilityWeight = 0
	cfg.TextWeight = 0
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T) (*Pipeline, *storage.MemoryStore, *search.MemoryIndex) {
	t.Helper()
	store := storage.NewMemoryStore()
	index := search.NewMemoryIndex()
	p := New(store, index, store, store, testConfig(), testLogger())
	return p, store, index
}

func addRequest(t *testing.T, store *storage.MemoryStore, id string, typ models.RequestType, status models.Status) {
	t.Helper()
	err := store.CreateRequest(context.Background(), &models.CoordinationRequest{
		ID:          id,
		RequesterID: "participant-1",
		Type:        typ,
		Status:      status,
		Requirements: models.Requirements{
			Window: window,
		},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
}

func addOrg(t *testing.T, index *search.MemoryIndex, store *storage.MemoryStore, id string, rel float64, care, transport, available bool) {
	t.Helper()
	index.Upsert(context.Background(), models.ProviderProfile{
		ID:                id,
		Kind:              models.KindOrganisation,
		Active:            true,
		ProvidesCare:      care,
		ProvidesTransport: transport,
		Reliability:       rel,
		Updated:           time.Now(),
	})
	if available {
		store.AddAvailability(id, window)
	}
	if transport {
		store.SetCapacity(id, 2)
	}
}

func TestRunNotFound(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Run(context.Background(), reqID)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRunTerminalStatusNoSideEffects(t *testing.T) {
	for _, status := range []models.Status{models.StatusCancelled, models.StatusCompleted} {
		p, store, index := newTestPipeline(t)
		addRequest(t, store, reqID, models.RequestCare, status)
		counting := &countingIndex{inner: index}
		p.Index = counting

		_, err := p.Run(context.Background(), reqID)
		if KindOf(err) != KindInvalidStatus {
			t.Fatalf("status %s: expected InvalidStatus, got %v", status, err)
		}
		if counting.calls != 0 {
			t.Fatalf("status %s: expected no search calls, got %d", status, counting.calls)
		}
		recs, _ := store.ListRecommendations(context.Background(), reqID)
		if len(recs) != 0 {
			t.Fatalf("status %s: expected no persisted rows, got %d", status, len(recs))
		}
	}
}

func TestRunCareOnlyAutoAccept(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	addOrg(t, index, store, "org-a", 0.9, true, false, true)

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(res.Groups))
	}
	g := res.Groups[0]
	if g.Kind != models.GroupSplit || len(g.Members) != 1 || g.Members[0].ID != "org-a" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.Confidence != models.ConfidenceAutoAccept {
		t.Fatalf("expected auto_accept, got %s", g.Confidence)
	}

	req, _ := store.LoadRequest(context.Background(), reqID)
	if req.Status != models.StatusRecommended {
		t.Fatalf("expected recommended status, got %s", req.Status)
	}
}

func TestRunIdempotent(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	addOrg(t, index, store, "org-a", 0.9, true, false, true)
	addOrg(t, index, store, "org-b", 0.7, true, false, true)

	if _, err := p.Run(context.Background(), reqID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := store.ListRecommendations(context.Background(), reqID)

	if _, err := p.Run(context.Background(), reqID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := store.ListRecommendations(context.Background(), reqID)

	if len(first) != len(second) {
		t.Fatalf("row count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Score != second[i].Score || first[i].Confidence != second[i].Confidence {
			t.Fatalf("row %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestConstraintStrictness(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	// org-hi has the best search score but no availability slot.
	addOrg(t, index, store, "org-hi", 0.99, true, false, false)
	addOrg(t, index, store, "org-lo", 0.7, true, false, true)

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, g := range res.Groups {
		for _, m := range g.Members {
			if m.ID == "org-hi" {
				t.Fatal("candidate failing a hard constraint appeared in output")
			}
		}
	}
	if res.Groups[0].Members[0].ID != "org-lo" {
		t.Fatalf("expected org-lo to win, got %+v", res.Groups[0])
	}
}

func TestRunCareOnlyZeroCandidates(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(res.Groups))
	}
	g := res.Groups[0]
	if len(g.Members) != 0 || g.Confidence != models.ConfidenceHumanReview {
		t.Fatalf("expected empty human_review group, got %+v", g)
	}
}

func TestRunBothCombinedWithinTolerance(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestBoth, models.StatusPending)
	// org-alpha covers both sides at 0.92; the best split pairing
	// aggregates to (0.95+0.93)/2 = 0.94, a gap inside the 0.05 tolerance.
	addOrg(t, index, store, "org-alpha", 0.92, true, true, true)
	addOrg(t, index, store, "org-bravo", 0.95, true, false, true)
	addOrg(t, index, store, "org-charlie", 0.93, false, true, true)

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("expected combined and split groups, got %d", len(res.Groups))
	}
	if res.Groups[0].Kind != models.GroupCombined {
		t.Fatalf("expected combined first within tolerance, got %s", res.Groups[0].Kind)
	}
	if res.Groups[1].Kind != models.GroupSplit {
		t.Fatalf("expected split second, got %s", res.Groups[1].Kind)
	}
	if got := res.Groups[0].Score; math.Abs(got-0.92) > 1e-9 {
		t.Fatalf("combined score = %v, want 0.92", got)
	}
	if got := res.Groups[1].Score; math.Abs(got-0.94) > 1e-9 {
		t.Fatalf("split aggregate = %v, want 0.94", got)
	}
}

func TestRunSplitFirstBeyondTolerance(t *testing.T) {
	p, store, index := newTestPipeline(t)
	p.Cfg.CombinedTolerance = 0.01
	addRequest(t, store, reqID, models.RequestBoth, models.StatusPending)
	addOrg(t, index, store, "org-alpha", 0.80, true, true, true)
	addOrg(t, index, store, "org-bravo", 0.95, true, false, true)
	addOrg(t, index, store, "org-charlie", 0.93, false, true, true)

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Groups) != 2 || res.Groups[0].Kind != models.GroupSplit {
		t.Fatalf("expected split ranked first, got %+v", res.Groups)
	}
}

func TestRunSearchFailed(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	p.Index = failingIndex{}

	_, err := p.Run(context.Background(), reqID)
	if KindOf(err) != KindSearchFailed {
		t.Fatalf("expected SearchFailed, got %v", err)
	}
}

func TestRunVerifyFailedAbortsBeforePersist(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	addOrg(t, index, store, "org-a", 0.9, true, false, true)
	p.Store = failingAuthStore{}

	_, err := p.Run(context.Background(), reqID)
	if KindOf(err) != KindVerifyFailed {
		t.Fatalf("expected VerifyFailed, got %v", err)
	}
	recs, _ := store.ListRecommendations(context.Background(), reqID)
	if len(recs) != 0 {
		t.Fatalf("expected no persisted rows after abort, got %d", len(recs))
	}
}

func TestWorkerClearanceRequired(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)

	for _, id := range []string{"worker-cleared", "worker-lapsed"} {
		index.Upsert(context.Background(), models.ProviderProfile{
			ID: id, Kind: models.KindWorker, Active: true,
			ProvidesCare: true, Reliability: 0.9, Updated: time.Now(),
		})
		store.AddAvailability(id, window)
	}
	store.SetClearance("worker-cleared", time.Now().Add(24*time.Hour))
	store.SetClearance("worker-lapsed", time.Now().Add(-time.Hour))

	res, err := p.Run(context.Background(), reqID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	g := res.Groups[0]
	if len(g.Members) != 1 || g.Members[0].ID != "worker-cleared" {
		t.Fatalf("expected only the cleared worker, got %+v", g.Members)
	}
}

func TestConcurrentRunsConverge(t *testing.T) {
	p, store, index := newTestPipeline(t)
	addRequest(t, store, reqID, models.RequestCare, models.StatusPending)
	addOrg(t, index, store, "org-a", 0.9, true, false, true)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := p.Run(context.Background(), reqID)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent run: %v", err)
		}
	}
	recs, _ := store.ListRecommendations(context.Background(), reqID)
	if len(recs) != 1 {
		t.Fatalf("expected converged single row, got %d", len(recs))
	}
}

type countingIndex struct {
	inner search.Index
	calls int
}

func (c *countingIndex) Search(ctx context.Context, q search.Query) ([]models.Candidate, error) {
	c.calls++
	return c.inner.Search(ctx, q)
}

type failingIndex struct{}

func (failingIndex) Search(ctx context.Context, q search.Query) ([]models.Candidate, error) {
	return nil, errors.New("index unavailable")
}

type failingAuthStore struct{}

func (failingAuthStore) VerifyAvailability(ctx context.Context, candidateID string, w models.TimeWindow) (bool, error) {
	return false, errors.New("store unavailable")
}

func (failingAuthStore) VerifyCapacity(ctx context.Context, orgID string) (bool, error) {
	return false, errors.New("store unavailable")
}

func (failingAuthStore) VerifyClearance(ctx context.Context, workerID string) (bool, error) {
	return false, errors.New("store unavailable")
}
