package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow is the requested support window, half-open [From, Until).
type TimeWindow struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

// RequestType says which sides of support a coordination request needs.
type RequestType string

const (
	RequestCare      RequestType = "care"
	RequestTransport RequestType = "transport"
	RequestBoth      RequestType = "both"
)

// Side is one half of a request: the care side or the transport side.
type Side string

const (
	SideCare      Side = "care"
	SideTransport Side = "transport"
)

// Status is the coordination request lifecycle.
// pending -> awaiting_review -> matching -> recommended -> completed,
// with cancelled reachable from any non-terminal state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAwaitingReview Status = "awaiting_review"
	StatusMatching       Status = "matching"
	StatusRecommended    Status = "recommended"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Capability tags a worker skill the request may require. Unrecognized tags
// coming in from request blobs are ignored by the filter builder.
type Capability string

const (
	CapDriving            Capability = "driving"
	CapWheelchairTransfer Capability = "wheelchair_transfer"
	CapManualHandling     Capability = "manual_handling"
	CapMedication         Capability = "medication_administration"
	CapBehaviourSupport   Capability = "positive_behaviour_support"
)

// Requirements is the raw requirements blob stored on a request.
type Requirements struct {
	Capabilities     []string   `json:"capabilities,omitempty"`
	WheelchairAccess bool       `json:"wheelchair_access,omitempty"`
	VerifiedOnly     bool       `json:"verified_only,omitempty"`
	MaxDistanceKm    float64    `json:"max_distance_km,omitempty"`
	Window           TimeWindow `json:"window"`
}

type CoordinationRequest struct {
	ID           string       `json:"id"`
	RequesterID  string       `json:"requester_id"`
	Type         RequestType  `json:"type"`
	Status       Status       `json:"status"`
	Requirements Requirements `json:"requirements"`
	Location     *Coord       `json:"location,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// MatchSpec is the normalized matching criteria derived from a request.
// It is recomputed per pipeline run and never persisted.
type MatchSpec struct {
	RequestID        string
	Type             RequestType
	Capabilities     []Capability
	Location         *Coord
	MaxDistanceKm    float64
	WheelchairAccess bool
	VerifiedOnly     bool
	Window           TimeWindow
}

// Sides lists the support sides the spec needs, in fixed order.
func (s MatchSpec) Sides() []Side {
	switch s.Type {
	case RequestBoth:
		return []Side{SideCare, SideTransport}
	case RequestTransport:
		return []Side{SideTransport}
	default:
		return []Side{SideCare}
	}
}

type CandidateKind string

const (
	KindOrganisation CandidateKind = "organisation"
	KindWorker       CandidateKind = "worker"
)

// Candidate is a search-index hit. It exists only within one pipeline run.
type Candidate struct {
	ID           string        `json:"id"`
	Kind         CandidateKind `json:"kind"`
	OrgID        string        `json:"org_id,omitempty"` // for workers, the employing organisation
	Side         Side          `json:"side"`
	TextScore    float64       `json:"text_score"`
	DistanceKm   *float64      `json:"distance_km,omitempty"` // nil when the index had no geo point
	Loc          *Coord        `json:"loc,omitempty"`
	Reliability  float64       `json:"reliability"` // 0..1 as stored
	Capabilities []Capability  `json:"capabilities,omitempty"`
}

func (c Candidate) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// ConstraintChecks records the authoritative-store outcome per hard constraint.
type ConstraintChecks struct {
	Availability bool `json:"availability"`
	Capacity     bool `json:"capacity"`  // vehicle/pool slot, checked only when transport applies
	Clearance    bool `json:"clearance"` // checked only for workers
}

type VerifiedCandidate struct {
	Candidate
	Checks ConstraintChecks `json:"checks"`
}

type ScoredCandidate struct {
	VerifiedCandidate
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
	// Approximated is set when the distance signal was estimated rather
	// than read from the index; it caps confidence at needs_verification.
	Approximated bool `json:"approximated,omitempty"`
}

type GroupKind string

const (
	GroupCombined GroupKind = "combined"
	GroupSplit    GroupKind = "split"
)

type Confidence string

const (
	ConfidenceAutoAccept        Confidence = "auto_accept"
	ConfidenceNeedsVerification Confidence = "needs_verification"
	ConfidenceHumanReview       Confidence = "human_review"
)

// RecommendationGroup is one presentable match: a single organisation covering
// the whole request (combined) or a care/transport candidate pairing (split).
type RecommendationGroup struct {
	Kind       GroupKind         `json:"kind"`
	Members    []ScoredCandidate `json:"members"`
	Score      float64           `json:"score"`
	Confidence Confidence        `json:"confidence"`
}

// CandidateRefs is the identity of the group for persistence purposes.
func (g RecommendationGroup) CandidateRefs() []string {
	refs := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		refs = append(refs, m.ID)
	}
	return refs
}

// Recommendation is the persisted row, unique per
// (request id, group kind, candidate reference set).
type Recommendation struct {
	RequestID     string     `json:"request_id"`
	GroupKind     GroupKind  `json:"group_kind"`
	CandidateRefs []string   `json:"candidate_refs"`
	Score         float64    `json:"score"`
	Confidence    Confidence `json:"confidence"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProviderProfile is the ingestion payload that feeds the search index. The
// server publishes these to Kafka and the indexer applies them to Redis, so
// the index may lag the authoritative store.
type ProviderProfile struct {
	ID                string        `json:"id"`
	Kind              CandidateKind `json:"kind"`
	OrgID             string        `json:"org_id,omitempty"`
	Active            bool          `json:"active"`
	Verified          bool          `json:"verified"`
	ProvidesCare      bool          `json:"provides_care"`
	ProvidesTransport bool          `json:"provides_transport"`
	WheelchairVehicle bool          `json:"wheelchair_vehicle"`
	Capabilities      []Capability  `json:"capabilities,omitempty"`
	Reliability       float64       `json:"reliability"` // 0..1
	Relevance         float64       `json:"relevance"`   // index ranking signal, 0..1
	Loc               *Coord        `json:"loc,omitempty"`
	Updated           time.Time     `json:"updated"`
}
