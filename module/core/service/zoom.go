package service

import (
	"fmt"

	"github.com/akinolu52/e-tap/module/core/domain"
)

const (
	MinZoomLevel     = 3
	MaxZoomLevel     = 20
	DefaultZoomLevel = 14

	// zoomFactor is how much the viewport spans change per accepted step.
	zoomFactor = 10
)

// ZoomController holds a discrete zoom level bounded by [min, max]. It is not
// safe for concurrent use; TrackingSession serializes calls.
type ZoomController struct {
	level int
	min   int
	max   int
}

func NewZoomController(level, min, max int) (*ZoomController, error) {
	if min >= max {
		return nil, fmt.Errorf("zoom bounds: min %d must be below max %d", min, max)
	}
	if level < min || level > max {
		return nil, fmt.Errorf("zoom level %d: must be between %d and %d", level, min, max)
	}
	return &ZoomController{level: level, min: min, max: max}, nil
}

// Step moves the level one notch. A request issued exactly at a bound is first
// pulled one notch back inside before the range check, so leaving a bound moves
// two levels; anything still at or past a bound after that is rejected.
func (z *ZoomController) Step(zoomIn bool) (int, bool) {
	cur := z.level
	if !zoomIn && cur == z.max {
		cur--
	} else if zoomIn && cur == z.min {
		cur++
	}

	if cur >= z.max || cur <= z.min {
		return z.level, false
	}

	if zoomIn {
		cur++
	} else {
		cur--
	}
	z.level = cur
	return cur, true
}

// ApplyStep steps the level and, only when the step is accepted, rescales vp.
func (z *ZoomController) ApplyStep(vp domain.Viewport, zoomIn bool) (domain.Viewport, bool) {
	if _, ok := z.Step(zoomIn); !ok {
		return vp, false
	}
	if zoomIn {
		vp.LatitudeSpan /= zoomFactor
		vp.LongitudeSpan /= zoomFactor
	} else {
		vp.LatitudeSpan *= zoomFactor
		vp.LongitudeSpan *= zoomFactor
	}
	return vp, true
}

func (z *ZoomController) State() domain.ZoomState {
	return domain.ZoomState{Level: z.level, Min: z.min, Max: z.max}
}
