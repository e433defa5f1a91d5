package source

import (
	"context"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type SampleSource interface {
	RequestPermission(ctx context.Context) (domain.PermissionStatus, error)
	CurrentSample(ctx context.Context) (domain.LocationSample, error)
	Subscribe(ctx context.Context, cfg domain.SubscribeConfig) (Subscription, error)
}

// Subscription delivers samples in the order the device produced them.
// Cancel stops delivery and may be called more than once.
type Subscription interface {
	Samples() <-chan domain.LocationSample
	Cancel()
}
