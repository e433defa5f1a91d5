package publisher

import (
	"context"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// ViewportPublisher is called while the session holds its state lock and must not block.
type ViewportPublisher interface {
	PublishViewport(vp domain.Viewport)
}
