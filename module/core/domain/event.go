package domain

import "time"

type EventKind string

const (
	EventSessionStarted     EventKind = "session_started"
	EventSessionPaused      EventKind = "session_paused"
	EventSessionStopped     EventKind = "session_stopped"
	EventPermissionDenied   EventKind = "permission_denied"
	EventLowAccuracy        EventKind = "low_accuracy"
	EventGeofenceEntered    EventKind = "geofence_entered"
	EventGeofenceExited     EventKind = "geofence_exited"
	EventSubscriptionFailed EventKind = "subscription_failed"
)

// Event is what the tracking core tells the outside world. It never carries
// coordinates; location history is not recorded anywhere.
type Event struct {
	SessionID      string    `json:"session_id"`
	Kind           EventKind `json:"kind"`
	FenceID        string    `json:"fence_id,omitempty"`
	AccuracyMeters float64   `json:"accuracy,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
