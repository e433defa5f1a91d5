package domain

import (
	"fmt"
	"time"
)

type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	return nil
}

type LocationSample struct {
	Coordinate     Coordinate `json:"coordinate"`
	AccuracyMeters float64    `json:"accuracy"`
	Timestamp      time.Time  `json:"timestamp"`
}

type AccuracyClass string

const (
	AccuracyLowest            AccuracyClass = "lowest"
	AccuracyBalanced          AccuracyClass = "balanced"
	AccuracyHigh              AccuracyClass = "high"
	AccuracyBestForNavigation AccuracyClass = "best_for_navigation"
)

// SubscribeConfig is handed to the device when a sample subscription is opened.
// The device applies the interval and distance filters before publishing.
type SubscribeConfig struct {
	Accuracy          AccuracyClass `json:"accuracy"`
	MinInterval       time.Duration `json:"min_interval"`
	MinDistanceMeters float64       `json:"min_distance_meters"`
}

type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
)
