package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/source"
)

var _ source.SampleSource = (*LocationSubscriber)(nil)

const (
	qos                   = 1
	sampleBufferSize      = 64
	defaultRequestTimeout = 30 * time.Second

	topicLocation         = "location"
	topicLocationRequest  = "location/request"
	topicLocationAnswer   = "location/response"
	topicLocationConfig   = "location/config"
	topicPermissionAsk    = "permission/request"
	topicPermissionAnswer = "permission/response"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	RequestID string  `json:"request_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

type requestMessage struct {
	RequestID string `json:"request_id"`
}

type permissionMessage struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type configMessage struct {
	Accuracy          domain.AccuracyClass `json:"accuracy"`
	MinIntervalMs     int64                `json:"min_interval_ms"`
	MinDistanceMeters float64              `json:"min_distance_meters"`
}

// LocationSubscriber bridges one device's MQTT topics to the tracking core.
// Every topic lives under /devices/{id}/. One-shot replies never share a topic
// with the live stream: the client keeps a single handler per topic.
type LocationSubscriber struct {
	client         mqttClient
	deviceID       string
	requestTimeout time.Duration
	log            *slog.Logger
}

func NewLocationSubscriber(client mqttClient, deviceID string, requestTimeout time.Duration, logger *slog.Logger) *LocationSubscriber {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationSubscriber{
		client:         client,
		deviceID:       deviceID,
		requestTimeout: requestTimeout,
		log:            logger.With("component", "location_subscriber", "device_id", deviceID),
	}
}

func (s *LocationSubscriber) topic(suffix string) string {
	return fmt.Sprintf("/devices/%s/%s", s.deviceID, suffix)
}

func (s *LocationSubscriber) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	return roundTrip(ctx, s, topicPermissionAsk, topicPermissionAnswer, func(payload []byte) (domain.PermissionStatus, string, error) {
		var msg permissionMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return "", "", err
		}
		if msg.Status == string(domain.PermissionGranted) {
			return domain.PermissionGranted, msg.RequestID, nil
		}
		return domain.PermissionDenied, msg.RequestID, nil
	})
}

func (s *LocationSubscriber) CurrentSample(ctx context.Context) (domain.LocationSample, error) {
	return roundTrip(ctx, s, topicLocationRequest, topicLocationAnswer, func(payload []byte) (domain.LocationSample, string, error) {
		msg, err := s.decodeLocation(payload)
		if err != nil {
			return domain.LocationSample{}, "", err
		}
		return toSample(msg), msg.RequestID, nil
	})
}

// Subscribe pushes cfg to the device as a retained message and starts
// forwarding its location topic.
func (s *LocationSubscriber) Subscribe(ctx context.Context, cfg domain.SubscribeConfig) (source.Subscription, error) {
	payload, err := json.Marshal(configMessage{
		Accuracy:          cfg.Accuracy,
		MinIntervalMs:     cfg.MinInterval.Milliseconds(),
		MinDistanceMeters: cfg.MinDistanceMeters,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := s.wait(ctx, s.client.Publish(s.topic(topicLocationConfig), qos, true, payload)); err != nil {
		return nil, fmt.Errorf("publish config: %w", err)
	}

	locTopic := s.topic(topicLocation)
	stream := &sampleStream{
		samples: make(chan domain.LocationSample, sampleBufferSize),
		done:    make(chan struct{}),
		unsubscribe: func() {
			s.unsubscribe(locTopic)
		},
	}
	if err := s.wait(ctx, s.client.Subscribe(locTopic, qos, stream.handler(s))); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", locTopic, err)
	}

	s.log.Info("location subscription opened", "accuracy", cfg.Accuracy, "min_interval", cfg.MinInterval, "min_distance", cfg.MinDistanceMeters)
	return stream, nil
}

func (s *LocationSubscriber) decodeLocation(payload []byte) (*locationMessage, error) {
	var raw locationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid location message: %w", err)
	}
	if err := validateLocationMessage(&raw); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if raw.DeviceID != s.deviceID {
		return nil, fmt.Errorf("device_id: expected %s, got %s", s.deviceID, raw.DeviceID)
	}
	return &raw, nil
}

func (s *LocationSubscriber) wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LocationSubscriber) unsubscribe(topic string) {
	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(s.requestTimeout) {
		s.log.Warn("unsubscribe timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.log.Warn("unsubscribe failed", "topic", topic, "error", err)
	}
}

// roundTrip publishes a request carrying a fresh request id and waits for the
// first reply on replySuffix that echoes it.
func roundTrip[T any](ctx context.Context, s *LocationSubscriber, requestSuffix, replySuffix string, decode func(payload []byte) (T, string, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	reqID := uuid.NewString()
	replies := make(chan T, 1)
	replyTopic := s.topic(replySuffix)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		v, id, err := decode(msg.Payload())
		if err != nil {
			s.log.Debug("ignoring reply", "topic", msg.Topic(), "error", err)
			return
		}
		if id != reqID {
			return
		}
		select {
		case replies <- v:
		default:
		}
	}

	if err := s.wait(ctx, s.client.Subscribe(replyTopic, qos, handler)); err != nil {
		return zero, fmt.Errorf("subscribe %s: %w", replyTopic, err)
	}
	defer s.unsubscribe(replyTopic)

	payload, err := json.Marshal(requestMessage{RequestID: reqID})
	if err != nil {
		return zero, fmt.Errorf("marshal request: %w", err)
	}
	if err := s.wait(ctx, s.client.Publish(s.topic(requestSuffix), qos, false, payload)); err != nil {
		return zero, fmt.Errorf("publish %s: %w", requestSuffix, err)
	}

	select {
	case v := <-replies:
		return v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("await %s: %w", replySuffix, ctx.Err())
	}
}

type sampleStream struct {
	samples     chan domain.LocationSample
	done        chan struct{}
	once        sync.Once
	unsubscribe func()
}

func (st *sampleStream) Samples() <-chan domain.LocationSample {
	return st.samples
}

func (st *sampleStream) Cancel() {
	st.once.Do(func() {
		close(st.done)
		st.unsubscribe()
	})
}

// handler blocks the MQTT router while the buffer is full so that samples are
// never dropped or reordered.
func (st *sampleStream) handler(s *LocationSubscriber) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		raw, err := s.decodeLocation(msg.Payload())
		if err != nil {
			s.log.Warn("dropping location message", "error", err)
			return
		}

		select {
		case <-st.done:
			return
		default:
		}

		select {
		case st.samples <- toSample(raw):
		case <-st.done:
		}
	}
}

func toSample(msg *locationMessage) domain.LocationSample {
	return domain.LocationSample{
		Coordinate:     domain.Coordinate{Lat: msg.Latitude, Lon: msg.Longitude},
		AccuracyMeters: msg.Accuracy,
		Timestamp:      time.Unix(msg.Timestamp, 0),
	}
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Accuracy < 0 {
		return fmt.Errorf("accuracy: must not be negative")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
