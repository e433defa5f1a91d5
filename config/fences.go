package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type fenceFile struct {
	Fences []fenceEntry `yaml:"fences" validate:"required,min=1,unique=ID,dive"`
}

type fenceEntry struct {
	ID           string  `yaml:"id"            validate:"required"`
	Title        string  `yaml:"title"`
	Latitude     float64 `yaml:"latitude"      validate:"gte=-90,lte=90"`
	Longitude    float64 `yaml:"longitude"     validate:"gte=-180,lte=180"`
	RadiusMeters float64 `yaml:"radius_meters" validate:"gt=0"`
}

// DefaultFences are the two Lagos markers the app ships with.
func DefaultFences() []domain.Geofence {
	return []domain.Geofence{
		{ID: "1", Title: "Point 1", Center: domain.Coordinate{Lat: 6.4541, Lon: 3.3947}, RadiusMeters: 100},
		{ID: "2", Title: "Point 2", Center: domain.Coordinate{Lat: 6.432012, Lon: 3.4153161}, RadiusMeters: 100},
	}
}

// LoadFences reads the fence list from a YAML file. An empty path yields
// DefaultFences.
func LoadFences(path string) ([]domain.Geofence, error) {
	if path == "" {
		return DefaultFences(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fences: %w", err)
	}
	return ParseFences(data)
}

func ParseFences(data []byte) ([]domain.Geofence, error) {
	var file fenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrInvalidFenceConfig, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFenceConfig, err)
	}

	fences := make([]domain.Geofence, len(file.Fences))
	for i, f := range file.Fences {
		fences[i] = domain.Geofence{
			ID:           f.ID,
			Title:        f.Title,
			Center:       domain.Coordinate{Lat: f.Latitude, Lon: f.Longitude},
			RadiusMeters: f.RadiusMeters,
		}
	}
	return fences, nil
}
