package database

import (
	"context"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type EventRepository interface {
	Insert(ctx context.Context, event *domain.Event) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.Event, error)
}
