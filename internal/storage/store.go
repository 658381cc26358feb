package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/care-coordination/internal/models"
)

// ErrRequestNotFound is returned when a coordination request id is unknown.
var ErrRequestNotFound = errors.New("coordination request not found")

// RequestStore loads and transitions coordination requests.
type RequestStore interface {
	LoadRequest(ctx context.Context, id string) (*models.CoordinationRequest, error)
	CreateRequest(ctx context.Context, req *models.CoordinationRequest) error
	UpdateRequestStatus(ctx context.Context, id string, status models.Status) error
}

// AuthoritativeStore re-checks hard constraints the search index cannot
// guarantee fresh. Each check returns pass/fail as data; only connectivity
// problems surface as errors.
type AuthoritativeStore interface {
	VerifyAvailability(ctx context.Context, candidateID string, w models.TimeWindow) (bool, error)
	VerifyCapacity(ctx context.Context, orgID string) (bool, error)
	VerifyClearance(ctx context.Context, workerID string) (bool, error)
}

// RecommendationStore persists pipeline output. Upserts are keyed on
// (request id, group kind, candidate reference set) so repeat runs update in
// place instead of duplicating rows.
type RecommendationStore interface {
	UpsertRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error)
	ListRecommendations(ctx context.Context, requestID string) ([]models.Recommendation, error)
}

// refsKey canonicalizes a candidate reference set: same members in any order
// identify the same row.
func refsKey(refs []string) string {
	sorted := append([]string(nil), refs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// MemoryStore backs all three store interfaces in process, for local runs and
// tests.
type MemoryStore struct {
	mu           sync.RWMutex
	requests     map[string]*models.CoordinationRequest
	availability map[string][]models.TimeWindow
	capacity     map[string]int       // org id -> remaining vehicle/pool slots
	clearance    map[string]time.Time // worker id -> clearance expiry
	recs         map[string]models.Recommendation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:     make(map[string]*models.CoordinationRequest),
		availability: make(map[string][]models.TimeWindow),
		capacity:     make(map[string]int),
		clearance:    make(map[string]time.Time),
		recs:         make(map[string]models.Recommendation),
	}
}

func (m *MemoryStore) LoadRequest(ctx context.Context, id string) (*models.CoordinationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *MemoryStore) CreateRequest(ctx context.Context, req *models.CoordinationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, id string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	return nil
}

// AddAvailability registers an availability slot for a provider or worker.
func (m *MemoryStore) AddAvailability(id string, w models.TimeWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability[id] = append(m.availability[id], w)
}

// SetCapacity sets the remaining vehicle/pool slots for an organisation.
func (m *MemoryStore) SetCapacity(orgID string, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity[orgID] = remaining
}

// SetClearance records a worker clearance valid until the given expiry.
func (m *MemoryStore) SetClearance(workerID string, expires time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearance[workerID] = expires
}

func (m *MemoryStore) VerifyAvailability(ctx context.Context, candidateID string, w models.TimeWindow) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, slot := range m.availability[candidateID] {
		if slot.From.Before(w.Until) && slot.Until.After(w.From) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) VerifyCapacity(ctx context.Context, orgID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capacity[orgID] > 0, nil
}

func (m *MemoryStore) VerifyClearance(ctx context.Context, workerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.clearance[workerID]
	return ok && exp.After(time.Now()), nil
}

func (m *MemoryStore) UpsertRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.RequestID + "|" + string(rec.GroupKind) + "|" + refsKey(rec.CandidateRefs)
	now := time.Now()
	if existing, ok := m.recs[key]; ok {
		existing.Score = rec.Score
		existing.Confidence = rec.Confidence
		existing.UpdatedAt = now
		m.recs[key] = existing
		return existing, nil
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.recs[key] = rec
	return rec, nil
}

func (m *MemoryStore) ListRecommendations(ctx context.Context, requestID string) ([]models.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Recommendation, 0)
	for _, rec := range m.recs {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return refsKey(out[i].CandidateRefs) < refsKey(out[j].CandidateRefs)
	})
	return out, nil
}
