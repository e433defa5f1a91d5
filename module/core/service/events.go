package service

import (
	"context"
	"fmt"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/database"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*EventLogService)(nil)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// EventLogService records session events so a UI can rebuild what happened
// last (started, paused, geofence crossings) without the session storing it.
type EventLogService struct {
	repo database.EventRepository
}

func NewEventLogService(repo database.EventRepository) *EventLogService {
	return &EventLogService{repo: repo}
}

func (s *EventLogService) Publish(ctx context.Context, event *domain.Event) error {
	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("record event %s: %w", event.Kind, err)
	}
	return nil
}

func (s *EventLogService) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Event, error) {
	switch {
	case limit <= 0:
		limit = DefaultEventLimit
	case limit > MaxEventLimit:
		limit = MaxEventLimit
	}
	return s.repo.ListBySession(ctx, sessionID, limit)
}
