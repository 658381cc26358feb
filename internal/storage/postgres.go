package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/care-coordination/internal/models"
)

// PostgresStore implements RequestStore, AuthoritativeStore and
// RecommendationStore against the transactional system of record.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) LoadRequest(ctx context.Context, id string) (*models.CoordinationRequest, error) {
	var (
		req      models.CoordinationRequest
		reqJSON  []byte
		lat, lng sql.NullFloat64
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, requester_id, type, status, requirements, lat, lng, created_at, updated_at
		FROM coordination_requests WHERE id = $1`, id).
		Scan(&req.ID, &req.RequesterID, &req.Type, &req.Status, &reqJSON, &lat, &lng, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(reqJSON) > 0 {
		if err := json.Unmarshal(reqJSON, &req.Requirements); err != nil {
			return nil, err
		}
	}
	if lat.Valid && lng.Valid {
		req.Location = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &req, nil
}

func (p *PostgresStore) CreateRequest(ctx context.Context, req *models.CoordinationRequest) error {
	reqJSON, err := json.Marshal(req.Requirements)
	if err != nil {
		return err
	}
	var lat, lng sql.NullFloat64
	if req.Location != nil {
		lat = sql.NullFloat64{Float64: req.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: req.Location.Lng, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO coordination_requests(id, requester_id, type, status, requirements, lat, lng, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.RequesterID, req.Type, req.Status, reqJSON, lat, lng, req.CreatedAt, req.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status models.Status) error {
	res, err := p.db.ExecContext(ctx, `UPDATE coordination_requests SET status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (p *PostgresStore) VerifyAvailability(ctx context.Context, candidateID string, w models.TimeWindow) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM availability_slots
			WHERE provider_id = $1 AND starts_at < $3 AND ends_at > $2
		)`, candidateID, w.From, w.Until).Scan(&ok)
	return ok, err
}

func (p *PostgresStore) VerifyCapacity(ctx context.Context, orgID string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM vehicle_pools
			WHERE org_id = $1 AND capacity > reserved
		)`, orgID).Scan(&ok)
	return ok, err
}

func (p *PostgresStore) VerifyClearance(ctx context.Context, workerID string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM clearances
			WHERE worker_id = $1 AND expires_at > now()
		)`, workerID).Scan(&ok)
	return ok, err
}

// UpsertRecommendation writes one group atomically. The unique index on
// (request_id, group_kind, candidate_refs) is the authority under concurrent
// runs: a conflicting write resolves last-write-wins on score and confidence.
func (p *PostgresStore) UpsertRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error) {
	refs := canonicalRefs(rec.CandidateRefs)
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO recommendations(request_id, group_kind, candidate_refs, score, confidence, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,now(),now())
		ON CONFLICT (request_id, group_kind, candidate_refs)
		DO UPDATE SET score = EXCLUDED.score, confidence = EXCLUDED.confidence, updated_at = now()
		RETURNING created_at, updated_at`,
		rec.RequestID, rec.GroupKind, refs, rec.Score, rec.Confidence).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (p *PostgresStore) ListRecommendations(ctx context.Context, requestID string) ([]models.Recommendation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT request_id, group_kind, candidate_refs, score, confidence, created_at, updated_at
		FROM recommendations WHERE request_id = $1 ORDER BY score DESC, candidate_refs`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Recommendation
	for rows.Next() {
		var (
			rec  models.Recommendation
			refs string
		)
		if err := rows.Scan(&rec.RequestID, &rec.GroupKind, &refs, &rec.Score, &rec.Confidence, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if refs != "" {
			rec.CandidateRefs = strings.Split(refs, ",")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func canonicalRefs(refs []string) string {
	return refsKey(refs)
}
