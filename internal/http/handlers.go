package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/care-coordination/internal/ingest"
	"github.com/example/care-coordination/internal/models"
	"github.com/example/care-coordination/internal/notify"
	"github.com/example/care-coordination/internal/payments"
	"github.com/example/care-coordination/internal/pipeline"
	"github.com/example/care-coordination/internal/search"
	"github.com/example/care-coordination/internal/storage"
)

// transportDepositPence is the manual-capture hold placed when an accepted
// recommendation includes a transport side.
const transportDepositPence = 2500

type Server struct {
	Pipeline *pipeline.Pipeline
	Requests storage.RequestStore
	Index    search.Index
	Kafka    *ingest.KafkaProducer
	WSReg    *notify.WSRegistry
	Payments payments.Client

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the API with explicit dependencies so tests can substitute
// in-memory fakes for every collaborator.
func NewServer(p *pipeline.Pipeline, requests storage.RequestStore, index search.Index, kafka *ingest.KafkaProducer, wsreg *notify.WSRegistry, pay payments.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Pipeline: p,
		Requests: requests,
		Index:    index,
		Kafka:    kafka,
		WSReg:    wsreg,
		Payments: pay,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/recommendations", s.handleRecommendations).Methods("GET")
	s.mux.HandleFunc("/api/v1/requests", s.handleCreateRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{request_id}/accept", s.handleAcceptRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{request_id}/cancel", s.handleCancelRequest).Methods("POST")
	s.mux.HandleFunc("/internal/providers/profile", s.handleProviderProfile).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/coordinators/{coordinator_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleRecommendations is the boundary entry point for the recommendation
// pipeline. The request id must be a syntactically valid UUID before the
// pipeline is invoked at all.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if _, err := uuid.Parse(requestID); err != nil {
		writeError(w, http.StatusBadRequest, "request_id must be a valid UUID")
		return
	}

	res, err := s.Pipeline.Run(r.Context(), requestID)
	if err != nil {
		writeError(w, statusForKind(pipeline.KindOf(err)), err.Error())
		return
	}

	s.notifyReviewers(requestID, res.Groups)

	// Recommendations are request-specific and mutate over time.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func statusForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindInvalidStatus:
		return http.StatusConflict
	case pipeline.KindSearchFailed, pipeline.KindVerifyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// notifyReviewers pushes a best-effort notice to connected coordinators for
// every group that did not auto-accept.
func (s *Server) notifyReviewers(requestID string, groups []models.RecommendationGroup) {
	if s.WSReg == nil {
		return
	}
	for _, g := range groups {
		if g.Confidence == models.ConfidenceAutoAccept {
			continue
		}
		s.WSReg.Broadcast(notify.ReviewNotice{
			RequestID:  requestID,
			GroupKind:  g.Kind,
			Confidence: g.Confidence,
			Score:      g.Score,
			At:         time.Now().UTC(),
		})
	}
}

type createRequestBody struct {
	RequesterID  string              `json:"requester_id"`
	Type         models.RequestType  `json:"type"`
	Requirements models.Requirements `json:"requirements"`
	Location     *models.Coord       `json:"location,omitempty"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch body.Type {
	case models.RequestCare, models.RequestTransport, models.RequestBoth:
	default:
		writeError(w, http.StatusBadRequest, "type must be care, transport or both")
		return
	}
	now := time.Now().UTC()
	req := &models.CoordinationRequest{
		ID:           uuid.NewString(),
		RequesterID:  body.RequesterID,
		Type:         body.Type,
		Status:       models.StatusPending,
		Requirements: body.Requirements,
		Location:     body.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Requests.CreateRequest(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// handleAcceptRequest completes a recommended request. Accepting a request
// with a transport side places a manual-capture deposit hold.
func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if _, err := uuid.Parse(requestID); err != nil {
		writeError(w, http.StatusBadRequest, "request_id must be a valid UUID")
		return
	}
	req, err := s.Requests.LoadRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, storage.ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Status != models.StatusRecommended {
		writeError(w, http.StatusConflict, "request is not in recommended status")
		return
	}

	resp := map[string]any{"request_id": requestID, "status": models.StatusCompleted}
	if req.Type != models.RequestCare && s.Payments != nil {
		intentID, err := s.Payments.Hold(r.Context(), transportDepositPence, "gbp", req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "deposit hold failed")
			return
		}
		resp["payment_intent_id"] = intentID
	}
	if err := s.Requests.UpdateRequestStatus(r.Context(), requestID, models.StatusCompleted); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if _, err := uuid.Parse(requestID); err != nil {
		writeError(w, http.StatusBadRequest, "request_id must be a valid UUID")
		return
	}
	req, err := s.Requests.LoadRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, storage.ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Status.Terminal() {
		writeError(w, http.StatusConflict, "request is already terminal")
		return
	}

	var body struct {
		PaymentIntentID string `json:"payment_intent_id,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.PaymentIntentID != "" && s.Payments != nil {
		if err := s.Payments.Cancel(r.Context(), body.PaymentIntentID); err != nil {
			s.logger.Warn("deposit release failed", "request_id", requestID, "error", err)
		}
	}

	if err := s.Requests.UpdateRequestStatus(r.Context(), requestID, models.StatusCancelled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"request_id": requestID, "status": models.StatusCancelled})
}

// handleProviderProfile ingests a provider/worker profile update. With Kafka
// configured the update travels through the broker to the indexer; otherwise
// it is applied to the index directly.
func (s *Server) handleProviderProfile(w http.ResponseWriter, r *http.Request) {
	var p models.ProviderProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.ID == "" {
		writeError(w, http.StatusBadRequest, "profile id is required")
		return
	}
	if p.Updated.IsZero() {
		p.Updated = time.Now().UTC()
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishProfile(p); err != nil {
			writeError(w, http.StatusBadGateway, "profile publish failed")
			return
		}
	} else if up, ok := s.Index.(search.Upserter); ok {
		if err := up.Upsert(r.Context(), p); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["coordinator_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
