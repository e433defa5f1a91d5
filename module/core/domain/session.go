package domain

type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

type SessionSnapshot struct {
	ID       string        `json:"id"`
	Status   SessionStatus `json:"status"`
	Viewport Viewport      `json:"viewport"`
	Zoom     ZoomState     `json:"zoom"`
}
