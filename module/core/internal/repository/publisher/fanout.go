package publisher

import (
	"context"
	"errors"

	"github.com/akinolu52/e-tap/module/core/domain"
)

var _ EventPublisher = Fanout(nil)

// Fanout delivers each event to every publisher, in order, and joins the errors.
type Fanout []EventPublisher

func (f Fanout) Publish(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
