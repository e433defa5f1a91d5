package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/akinolu52/e-tap/module/core/domain"
	handler "github.com/akinolu52/e-tap/module/core/internal/handler/http"
	"github.com/akinolu52/e-tap/module/core/internal/handler/subscriber"
	"github.com/akinolu52/e-tap/module/core/internal/handler/ws"
	"github.com/akinolu52/e-tap/module/core/internal/repository/database/postgres"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher/rabbitmq"
	"github.com/akinolu52/e-tap/module/core/service"
)

type Options struct {
	DeviceID             string
	DeviceRequestTimeout time.Duration
	Fences               []domain.Geofence
	Zoom                 domain.ZoomState
	Session              service.SessionConfig
	Logger               *slog.Logger
}

type Module struct {
	Session  *service.TrackingSession
	EventLog *service.EventLogService
	hub      *ws.Hub
	handler  *handler.SessionHandler
}

func Build(ctx context.Context, db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, opts Options) (*Module, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	eventRepo := postgres.NewEventRepo(db)
	if err := eventRepo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("event repo: %w", err)
	}

	eventPub, err := rabbitmq.NewEventPublisher(amqpConn)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	fences, err := service.NewGeofenceEvaluator(opts.Fences)
	if err != nil {
		return nil, fmt.Errorf("geofences: %w", err)
	}

	zoom, err := service.NewZoomController(opts.Zoom.Level, opts.Zoom.Min, opts.Zoom.Max)
	if err != nil {
		return nil, fmt.Errorf("zoom: %w", err)
	}

	eventLog := service.NewEventLogService(eventRepo)
	hub := ws.NewHub(logger)
	src := subscriber.NewLocationSubscriber(mqttClient, opts.DeviceID, opts.DeviceRequestTimeout, logger)

	sink := publisher.Fanout{hub, eventPub, eventLog}
	session, err := service.NewTrackingSession(opts.Session, src, sink, hub, fences, zoom, logger)
	if err != nil {
		return nil, err
	}

	return &Module{
		Session:  session,
		EventLog: eventLog,
		hub:      hub,
		handler:  handler.NewSessionHandler(session, eventLog),
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
	m.hub.Register(r)
}

// Close stops the session before disconnecting websocket clients so they
// receive the final session_stopped event.
func (m *Module) Close() error {
	err := m.Session.Close()
	m.hub.Close()
	return err
}
