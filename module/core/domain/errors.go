package domain

import "errors"

var (
	ErrPermissionDenied   = errors.New("location permission denied")
	ErrSubscriptionFailed = errors.New("location subscription failed")
	ErrInvalidFenceConfig = errors.New("invalid geofence config")
	ErrSessionClosed      = errors.New("tracking session closed")
)
