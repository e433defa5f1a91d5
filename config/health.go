package config

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akinolu52/e-tap/module/core/domain"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type amqpConn interface {
	IsClosed() bool
}

type mqttConn interface {
	IsConnected() bool
}

type sessionReporter interface {
	Snapshot() domain.SessionSnapshot
}

type HealthChecker struct {
	db       dbPinger
	amqpConn amqpConn
	mqtt     mqttConn
	session  sessionReporter
}

func NewHealthChecker(db dbPinger, amqpConn amqpConn, mqttClient mqttConn, session sessionReporter) *HealthChecker {
	return &HealthChecker{db: db, amqpConn: amqpConn, mqtt: mqttClient, session: session}
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		deps["postgres"] = gin.H{"status": "down", "error": err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		deps["postgres"] = gin.H{"status": "up"}
	}

	if h.amqpConn.IsClosed() {
		deps["rabbitmq"] = gin.H{"status": "down", "error": "connection closed"}
		status = http.StatusServiceUnavailable
	} else {
		deps["rabbitmq"] = gin.H{"status": "up"}
	}

	// samples cannot arrive without the broker
	if !h.mqtt.IsConnected() {
		deps["mqtt"] = gin.H{"status": "down", "error": "not connected"}
		status = http.StatusServiceUnavailable
	} else {
		deps["mqtt"] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	body := gin.H{
		"status":       overall,
		"dependencies": deps,
	}
	if h.session != nil {
		snap := h.session.Snapshot()
		body["session"] = gin.H{"id": snap.ID, "status": snap.Status}
	}
	c.JSON(status, body)
}
