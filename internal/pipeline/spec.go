package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/care-coordination/internal/models"
	"github.com/example/care-coordination/internal/storage"
)

// knownCapabilities is the enumerated capability set the pipeline recognizes.
// Requirement tags outside this set are dropped, not propagated into queries.
var knownCapabilities = map[string]models.Capability{
	string(models.CapDriving):            models.CapDriving,
	string(models.CapWheelchairTransfer): models.CapWheelchairTransfer,
	string(models.CapManualHandling):     models.CapManualHandling,
	string(models.CapMedication):         models.CapMedication,
	string(models.CapBehaviourSupport):   models.CapBehaviourSupport,
}

// ParseCapability maps a raw requirement tag onto the capability enum.
func ParseCapability(tag string) (models.Capability, bool) {
	c, ok := knownCapabilities[tag]
	return c, ok
}

// loadSpec loads the request and derives its match spec. The derivation is
// pure; only the load touches the store.
func (p *Pipeline) loadSpec(ctx context.Context, requestID string) (models.MatchSpec, error) {
	req, err := p.Requests.LoadRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrRequestNotFound) {
			return models.MatchSpec{}, newError(KindNotFound, requestID, err)
		}
		return models.MatchSpec{}, newError(KindInternal, requestID, err)
	}
	if req.Status.Terminal() {
		return models.MatchSpec{}, newError(KindInvalidStatus, requestID,
			fmt.Errorf("request status %q is terminal", req.Status))
	}
	spec := DeriveSpec(req, p.Cfg.DefaultMaxDistanceKm)
	for _, tag := range req.Requirements.Capabilities {
		if _, ok := ParseCapability(tag); !ok {
			p.Logger.Warn("dropping unrecognized capability tag", "request_id", requestID, "tag", tag)
		}
	}
	return spec, nil
}

// DeriveSpec computes the normalized matching criteria for a request. It is
// pure and stable across repeated calls for the same request snapshot.
func DeriveSpec(req *models.CoordinationRequest, defaultMaxDistanceKm float64) models.MatchSpec {
	spec := models.MatchSpec{
		RequestID:        req.ID,
		Type:             req.Type,
		Location:         req.Location,
		MaxDistanceKm:    req.Requirements.MaxDistanceKm,
		WheelchairAccess: req.Requirements.WheelchairAccess,
		VerifiedOnly:     req.Requirements.VerifiedOnly,
		Window:           req.Requirements.Window,
	}
	if spec.MaxDistanceKm <= 0 {
		spec.MaxDistanceKm = defaultMaxDistanceKm
	}
	for _, tag := range req.Requirements.Capabilities {
		if c, ok := ParseCapability(tag); ok {
			spec.Capabilities = append(spec.Capabilities, c)
		}
	}
	return spec
}
