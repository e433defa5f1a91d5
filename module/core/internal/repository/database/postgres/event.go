package postgres

import (
	"context"
	"database/sql"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/database"
)

var _ database.EventRepository = (*EventRepo)(nil)

const schema = `CREATE TABLE IF NOT EXISTS session_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	fence_id    TEXT NOT NULL DEFAULT '',
	accuracy    DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
)`

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *EventRepo) Insert(ctx context.Context, event *domain.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, kind, fence_id, accuracy, reason, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.SessionID, string(event.Kind), event.FenceID, event.AccuracyMeters, event.Reason, event.OccurredAt,
	)
	return err
}

// ListBySession returns the most recent events first.
func (r *EventRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, kind, fence_id, accuracy, reason, occurred_at FROM session_events WHERE session_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Event
	for rows.Next() {
		var ev domain.Event
		var kind string
		if err := rows.Scan(&ev.SessionID, &kind, &ev.FenceID, &ev.AccuracyMeters, &ev.Reason, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		results = append(results, ev)
	}
	return results, rows.Err()
}
