package service

import (
	"fmt"

	"github.com/akinolu52/e-tap/module/core/domain"
)

// GeofenceEvaluator tracks membership per fence and reports only the changes.
// It is not safe for concurrent use; TrackingSession serializes calls.
type GeofenceEvaluator struct {
	fences []domain.Geofence
	inside []bool
}

func NewGeofenceEvaluator(fences []domain.Geofence) (*GeofenceEvaluator, error) {
	seen := make(map[string]struct{}, len(fences))
	for _, f := range fences {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate fence id %s", domain.ErrInvalidFenceConfig, f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	return &GeofenceEvaluator{
		fences: append([]domain.Geofence(nil), fences...),
		inside: make([]bool, len(fences)),
	}, nil
}

func (e *GeofenceEvaluator) Evaluate(sample domain.LocationSample) []domain.TransitionEvent {
	var events []domain.TransitionEvent
	for i, gf := range e.fences {
		in := Distance(sample.Coordinate, gf.Center) < gf.RadiusMeters
		if in == e.inside[i] {
			continue
		}
		events = append(events, domain.TransitionEvent{FenceID: gf.ID, Entered: in})
		e.inside[i] = in
	}
	return events
}

func (e *GeofenceEvaluator) Fences() []domain.Geofence {
	return append([]domain.Geofence(nil), e.fences...)
}
