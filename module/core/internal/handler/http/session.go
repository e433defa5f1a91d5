package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type sessionService interface {
	ID() string
	Snapshot() domain.SessionSnapshot
	Viewport() domain.Viewport
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Locate(ctx context.Context) (domain.Viewport, error)
	ZoomIn() (domain.Viewport, bool)
	ZoomOut() (domain.Viewport, bool)
}

type eventService interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]domain.Event, error)
}

type zoomResponse struct {
	Changed  bool             `json:"changed"`
	Viewport domain.Viewport  `json:"viewport"`
	Zoom     domain.ZoomState `json:"zoom"`
}

type SessionHandler struct {
	session sessionService
	events  eventService
}

func NewSessionHandler(session sessionService, events eventService) *SessionHandler {
	return &SessionHandler{session: session, events: events}
}

func (h *SessionHandler) Register(r *gin.RouterGroup) {
	g := r.Group("/session")
	g.GET("", h.GetSession)
	g.POST("/start", h.Start)
	g.POST("/pause", h.Pause)
	g.POST("/stop", h.Stop)
	g.POST("/locate", h.Locate)
	g.POST("/zoom/in", h.ZoomIn)
	g.POST("/zoom/out", h.ZoomOut)
	g.GET("/viewport", h.GetViewport)
	g.GET("/events", h.GetEvents)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.transition(c, h.session.Start)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.transition(c, h.session.Pause)
}

func (h *SessionHandler) Stop(c *gin.Context) {
	h.transition(c, h.session.Stop)
}

func (h *SessionHandler) transition(c *gin.Context, fn func(context.Context) error) {
	if err := fn(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *SessionHandler) Locate(c *gin.Context) {
	vp, err := h.session.Locate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vp)
}

func (h *SessionHandler) ZoomIn(c *gin.Context) {
	vp, changed := h.session.ZoomIn()
	h.writeZoom(c, vp, changed)
}

func (h *SessionHandler) ZoomOut(c *gin.Context) {
	vp, changed := h.session.ZoomOut()
	h.writeZoom(c, vp, changed)
}

// a rejected step is a normal outcome, not an error
func (h *SessionHandler) writeZoom(c *gin.Context, vp domain.Viewport, changed bool) {
	c.JSON(http.StatusOK, zoomResponse{
		Changed:  changed,
		Viewport: vp,
		Zoom:     h.session.Snapshot().Zoom,
	})
}

func (h *SessionHandler) GetViewport(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Viewport())
}

func (h *SessionHandler) GetEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = n
	}

	events, err := h.events.Recent(c.Request.Context(), h.session.ID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSubscriptionFailed):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
