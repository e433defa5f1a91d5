package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher"
	"github.com/akinolu52/e-tap/module/core/internal/repository/source"
)

const (
	DefaultAccuracyThresholdMeters = 10
	DefaultViewportSpan            = 0.05
	defaultNotifyTimeout           = 5 * time.Second
	eventQueueSize                 = 64
)

type SessionConfig struct {
	AccuracyThresholdMeters float64
	Subscribe               domain.SubscribeConfig
	InitialViewport         domain.Viewport
	NotifyTimeout           time.Duration
}

func DefaultSessionConfig(center domain.Coordinate) SessionConfig {
	return SessionConfig{
		AccuracyThresholdMeters: DefaultAccuracyThresholdMeters,
		Subscribe: domain.SubscribeConfig{
			Accuracy:          domain.AccuracyBestForNavigation,
			MinInterval:       10 * time.Second,
			MinDistanceMeters: 50,
		},
		InitialViewport: domain.Viewport{
			Center:        center,
			LatitudeSpan:  DefaultViewportSpan,
			LongitudeSpan: DefaultViewportSpan,
		},
		NotifyTimeout: defaultNotifyTimeout,
	}
}

// TrackingSession owns the sample subscription of one device and everything
// derived from it: geofence membership, the viewport and the zoom level.
type TrackingSession struct {
	id     string
	cfg    SessionConfig
	source source.SampleSource
	sink   publisher.EventPublisher
	view   publisher.ViewportPublisher
	log    *slog.Logger
	closed atomic.Bool

	// events is drained in order by deliver; emit never blocks on the sink.
	events       chan domain.Event
	stopDelivery chan struct{}
	delivered    chan struct{}

	// lifecycle serializes Start, Pause, Stop, Close and Locate.
	lifecycle sync.Mutex
	sub       *activeSubscription

	mu       sync.Mutex
	status   domain.SessionStatus
	viewport domain.Viewport
	fences   *GeofenceEvaluator
	zoom     *ZoomController
}

type activeSubscription struct {
	stream source.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	// ended is set when the source closed the stream on its own.
	ended atomic.Bool
}

func NewTrackingSession(
	cfg SessionConfig,
	src source.SampleSource,
	sink publisher.EventPublisher,
	view publisher.ViewportPublisher,
	fences *GeofenceEvaluator,
	zoom *ZoomController,
	logger *slog.Logger,
) (*TrackingSession, error) {
	if src == nil {
		return nil, fmt.Errorf("tracking session: sample source required")
	}
	if fences == nil || zoom == nil {
		return nil, fmt.Errorf("tracking session: geofence evaluator and zoom controller required")
	}
	if err := cfg.InitialViewport.Validate(); err != nil {
		return nil, fmt.Errorf("tracking session: %w", err)
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	s := &TrackingSession{
		id:           id,
		cfg:          cfg,
		source:       src,
		sink:         sink,
		view:         view,
		log:          logger.With("component", "tracking_session", "session_id", id),
		events:       make(chan domain.Event, eventQueueSize),
		stopDelivery: make(chan struct{}),
		delivered:    make(chan struct{}),
		status:       domain.SessionIdle,
		viewport:     cfg.InitialViewport,
		fences:       fences,
		zoom:         zoom,
	}
	go s.deliver()
	return s, nil
}

func (s *TrackingSession) ID() string {
	return s.id
}

func (s *TrackingSession) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{
		ID:       s.id,
		Status:   s.status,
		Viewport: s.viewport,
		Zoom:     s.zoom.State(),
	}
}

func (s *TrackingSession) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *TrackingSession) Viewport() domain.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Start asks the device for permission and opens the sample subscription.
// Calling it while already active does nothing, unless the source ended the
// stream, in which case a new one is opened. On any failure the session keeps
// the status it had before the call.
func (s *TrackingSession) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	if s.Status() == domain.SessionActive {
		if s.sub != nil && !s.sub.ended.Load() {
			return nil
		}
		s.cancelSubscription()
	}

	perm, err := s.source.RequestPermission(ctx)
	if err != nil {
		s.emit(domain.Event{Kind: domain.EventSubscriptionFailed, Reason: err.Error()})
		return fmt.Errorf("%w: request permission: %w", domain.ErrSubscriptionFailed, err)
	}
	if perm != domain.PermissionGranted {
		s.log.Warn("location permission denied", "status", perm)
		s.emit(domain.Event{Kind: domain.EventPermissionDenied, Reason: "permission not granted"})
		return domain.ErrPermissionDenied
	}

	stream, err := s.source.Subscribe(ctx, s.cfg.Subscribe)
	if err != nil {
		s.emit(domain.Event{Kind: domain.EventSubscriptionFailed, Reason: err.Error()})
		return fmt.Errorf("%w: subscribe: %w", domain.ErrSubscriptionFailed, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &activeSubscription{stream: stream, cancel: cancel, done: make(chan struct{})}
	s.sub = sub
	s.setStatus(domain.SessionActive)
	s.emit(domain.Event{Kind: domain.EventSessionStarted})

	go s.consume(runCtx, sub)
	return nil
}

// Pause releases the subscription but keeps geofence membership and the
// viewport. Only valid while active.
func (s *TrackingSession) Pause(_ context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Status() != domain.SessionActive {
		return nil
	}
	s.cancelSubscription()
	s.setStatus(domain.SessionPaused)
	s.emit(domain.Event{Kind: domain.EventSessionPaused})
	return nil
}

func (s *TrackingSession) Stop(_ context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()
	return nil
}

// Close disposes of the session. Any live subscription is cancelled and queued
// events are handed to the sink before it returns. The session cannot be
// started again.
func (s *TrackingSession) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	s.stopLocked()
	close(s.stopDelivery)
	<-s.delivered
	return nil
}

func (s *TrackingSession) stopLocked() {
	switch s.Status() {
	case domain.SessionActive, domain.SessionPaused:
	default:
		return
	}
	s.cancelSubscription()
	s.setStatus(domain.SessionStopped)
	s.emit(domain.Event{Kind: domain.EventSessionStopped})
}

// Locate recenters the viewport on a one-shot position fix.
func (s *TrackingSession) Locate(ctx context.Context) (domain.Viewport, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return domain.Viewport{}, domain.ErrSessionClosed
	}

	perm, err := s.source.RequestPermission(ctx)
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("request permission: %w", err)
	}
	if perm != domain.PermissionGranted {
		s.emit(domain.Event{Kind: domain.EventPermissionDenied, Reason: "permission not granted"})
		return domain.Viewport{}, domain.ErrPermissionDenied
	}

	sample, err := s.source.CurrentSample(ctx)
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("current sample: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport.Center = sample.Coordinate
	s.publishViewport(s.viewport)
	return s.viewport, nil
}

func (s *TrackingSession) ZoomIn() (domain.Viewport, bool) {
	return s.stepZoom(true)
}

func (s *TrackingSession) ZoomOut() (domain.Viewport, bool) {
	return s.stepZoom(false)
}

func (s *TrackingSession) stepZoom(in bool) (domain.Viewport, bool) {
	direction := "out"
	if in {
		direction = "in"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vp, ok := s.zoom.ApplyStep(s.viewport, in)
	if !ok {
		zoomSteps.WithLabelValues(direction, "rejected").Inc()
		return s.viewport, false
	}
	zoomSteps.WithLabelValues(direction, "accepted").Inc()
	s.viewport = vp
	s.publishViewport(vp)
	return vp, true
}

func (s *TrackingSession) consume(ctx context.Context, sub *activeSubscription) {
	defer close(sub.done)

	samples := sub.stream.Samples()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				sub.ended.Store(true)
				s.log.Warn("sample stream closed by source")
				s.emit(domain.Event{Kind: domain.EventSubscriptionFailed, Reason: "sample stream closed"})
				return
			}
			// both cases may be ready at once; cancellation wins
			if ctx.Err() != nil {
				return
			}
			s.handleSample(sample)
		}
	}
}

func (s *TrackingSession) handleSample(sample domain.LocationSample) {
	samplesProcessed.Inc()

	var events []domain.Event
	if sample.AccuracyMeters > s.cfg.AccuracyThresholdMeters {
		lowAccuracySamples.Inc()
		s.log.Warn("low gps accuracy", "accuracy", sample.AccuracyMeters)
		events = append(events, domain.Event{Kind: domain.EventLowAccuracy, AccuracyMeters: sample.AccuracyMeters})
	}

	s.mu.Lock()
	transitions := s.fences.Evaluate(sample)
	s.mu.Unlock()

	for _, tr := range transitions {
		kind, direction := domain.EventGeofenceExited, "exited"
		if tr.Entered {
			kind, direction = domain.EventGeofenceEntered, "entered"
		}
		geofenceTransitions.WithLabelValues(tr.FenceID, direction).Inc()
		s.log.Info("geofence transition", "fence_id", tr.FenceID, "direction", direction)
		events = append(events, domain.Event{Kind: kind, FenceID: tr.FenceID})
	}

	for _, ev := range events {
		s.emit(ev)
	}

	s.mu.Lock()
	s.viewport.Center = sample.Coordinate
	s.publishViewport(s.viewport)
	s.mu.Unlock()
}

func (s *TrackingSession) cancelSubscription() {
	sub := s.sub
	if sub == nil {
		return
	}
	s.sub = nil

	sub.cancel()
	sub.stream.Cancel()
	<-sub.done
}

func (s *TrackingSession) setStatus(status domain.SessionStatus) {
	s.mu.Lock()
	prev := s.status
	s.status = status
	s.mu.Unlock()

	sessionTransitions.WithLabelValues(string(status)).Inc()
	s.log.Info("session status changed", "from", prev, "to", status)
}

// publishViewport must be called with mu held so viewers see updates in order.
func (s *TrackingSession) publishViewport(vp domain.Viewport) {
	if s.view != nil {
		s.view.PublishViewport(vp)
	}
}

// emit queues an event for delivery. A full queue drops the event rather
// than stall the sample path.
func (s *TrackingSession) emit(ev domain.Event) {
	if s.sink == nil {
		return
	}
	ev.SessionID = s.id
	ev.OccurredAt = time.Now()

	select {
	case s.events <- ev:
	default:
		eventsDropped.WithLabelValues(string(ev.Kind)).Inc()
		s.log.Warn("event queue full, dropping event", "kind", ev.Kind)
	}
}

func (s *TrackingSession) deliver() {
	defer close(s.delivered)
	for {
		select {
		case ev := <-s.events:
			s.notify(ev)
		case <-s.stopDelivery:
			for {
				select {
				case ev := <-s.events:
					s.notify(ev)
				default:
					return
				}
			}
		}
	}
}

// notify runs on the delivery goroutine; sink errors never reach session state.
func (s *TrackingSession) notify(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.sink.Publish(ctx, &ev); err != nil {
		notifyFailures.WithLabelValues(string(ev.Kind)).Inc()
		s.log.Warn("deliver event failed", "kind", ev.Kind, "error", err)
	}
}
