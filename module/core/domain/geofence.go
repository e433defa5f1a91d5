package domain

import "fmt"

type Geofence struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`
}

func (g Geofence) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("%w: id: required", ErrInvalidFenceConfig)
	}
	if g.RadiusMeters <= 0 {
		return fmt.Errorf("%w: fence %s: radius must be positive", ErrInvalidFenceConfig, g.ID)
	}
	if err := g.Center.Validate(); err != nil {
		return fmt.Errorf("%w: fence %s: %v", ErrInvalidFenceConfig, g.ID, err)
	}
	return nil
}

type TransitionEvent struct {
	FenceID string `json:"fence_id"`
	Entered bool   `json:"entered"`
}
