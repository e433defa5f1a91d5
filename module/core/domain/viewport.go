package domain

import "fmt"

type Viewport struct {
	Center        Coordinate `json:"center"`
	LatitudeSpan  float64    `json:"latitude_span"`
	LongitudeSpan float64    `json:"longitude_span"`
}

func (v Viewport) Validate() error {
	if v.LatitudeSpan <= 0 || v.LongitudeSpan <= 0 {
		return fmt.Errorf("viewport: spans must be positive")
	}
	return v.Center.Validate()
}

type ZoomState struct {
	Level int `json:"level"`
	Min   int `json:"min"`
	Max   int `json:"max"`
}
