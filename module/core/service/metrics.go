package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_samples_processed_total",
		Help: "Location samples routed through the tracking session",
	})

	lowAccuracySamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_low_accuracy_samples_total",
		Help: "Samples whose accuracy was worse than the configured threshold",
	})

	geofenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_geofence_transitions_total",
		Help: "Geofence membership transitions by fence and direction",
	}, []string{"fence", "direction"})

	zoomSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_zoom_steps_total",
		Help: "Zoom requests by direction and result",
	}, []string{"direction", "result"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_session_transitions_total",
		Help: "Session status changes by target status",
	}, []string{"status"})

	notifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_notify_failures_total",
		Help: "Events that could not be delivered to the notification sink",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_events_dropped_total",
		Help: "Events discarded because the delivery queue was full",
	}, []string{"kind"})
)
