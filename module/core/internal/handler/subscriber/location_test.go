package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/akinolu52/e-tap/module/core/domain"
)

const deviceID = "device-1"

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	subscribeErr error
	onPublish    func(c *fakeClient, topic string, payload []byte)

	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	body := payload.([]byte)
	c.mu.Lock()
	c.published = append(c.published, published{topic: topic, retained: retained, payload: body})
	hook := c.onPublish
	c.mu.Unlock()

	if hook != nil {
		hook(c, topic, body)
	}
	return newToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if c.subscribeErr != nil {
		return newToken(c.subscribeErr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return newToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
		c.unsubscribed = append(c.unsubscribed, t)
	}
	return newToken(nil)
}

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, &fakeMQTTMessage{topic: topic, payload: payload})
	}
}

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 0 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return f.topic }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

func newTestSubscriber(client *fakeClient, timeout time.Duration) *LocationSubscriber {
	return NewLocationSubscriber(client, deviceID, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func requestID(t *testing.T, payload []byte) string {
	t.Helper()
	var req requestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("invalid request payload: %v", err)
	}
	if req.RequestID == "" {
		t.Fatal("request_id missing")
	}
	return req.RequestID
}

func TestRequestPermission_Granted(t *testing.T) {
	client := newFakeClient()
	client.onPublish = func(c *fakeClient, topic string, payload []byte) {
		if topic != "/devices/device-1/permission/request" {
			return
		}
		id := requestID(t, payload)
		// a reply to someone else's request must be ignored
		c.deliver("/devices/device-1/permission/response", mustJSON(t, permissionMessage{RequestID: "other", Status: "denied"}))
		c.deliver("/devices/device-1/permission/response", mustJSON(t, permissionMessage{RequestID: id, Status: "granted"}))
	}

	sub := newTestSubscriber(client, time.Second)
	status, err := sub.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.PermissionGranted {
		t.Errorf("expected granted, got %s", status)
	}
	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != "/devices/device-1/permission/response" {
		t.Errorf("expected reply topic to be released, got %v", client.unsubscribed)
	}
}

func TestRequestPermission_Denied(t *testing.T) {
	client := newFakeClient()
	client.onPublish = func(c *fakeClient, topic string, payload []byte) {
		c.deliver("/devices/device-1/permission/response", mustJSON(t, permissionMessage{RequestID: requestID(t, payload), Status: "denied"}))
	}

	status, err := newTestSubscriber(client, time.Second).RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.PermissionDenied {
		t.Errorf("expected denied, got %s", status)
	}
}

func TestRequestPermission_Timeout(t *testing.T) {
	client := newFakeClient()

	_, err := newTestSubscriber(client, 20*time.Millisecond).RequestPermission(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRequestPermission_SubscribeError(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("not connected")

	if _, err := newTestSubscriber(client, time.Second).RequestPermission(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCurrentSample(t *testing.T) {
	client := newFakeClient()
	client.onPublish = func(c *fakeClient, topic string, payload []byte) {
		if topic != "/devices/device-1/location/request" {
			return
		}
		id := requestID(t, payload)
		c.deliver("/devices/device-1/location/response", mustJSON(t, locationMessage{
			DeviceID: deviceID, RequestID: "other", Latitude: 1, Longitude: 1, Accuracy: 3, Timestamp: 1715003456,
		}))
		c.deliver("/devices/device-1/location/response", mustJSON(t, locationMessage{
			DeviceID: deviceID, RequestID: id, Latitude: 6.4541, Longitude: 3.3947, Accuracy: 4, Timestamp: 1715003457,
		}))
	}

	sample, err := newTestSubscriber(client, time.Second).CurrentSample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.Coordinate != (domain.Coordinate{Lat: 6.4541, Lon: 3.3947}) {
		t.Errorf("expected the reply sample, got %+v", sample.Coordinate)
	}
	if !sample.Timestamp.Equal(time.Unix(1715003457, 0)) {
		t.Errorf("unexpected timestamp %v", sample.Timestamp)
	}
}

func TestCurrentSample_KeepsLiveStream(t *testing.T) {
	client := newFakeClient()
	client.onPublish = func(c *fakeClient, topic string, payload []byte) {
		if topic != "/devices/device-1/location/request" {
			return
		}
		c.deliver("/devices/device-1/location/response", mustJSON(t, locationMessage{
			DeviceID: deviceID, RequestID: requestID(t, payload), Latitude: 6.4541, Longitude: 3.3947, Accuracy: 4, Timestamp: 1715003457,
		}))
	}
	sub := newTestSubscriber(client, time.Second)

	stream, err := sub.Subscribe(context.Background(), domain.SubscribeConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Cancel()

	if _, err := sub.CurrentSample(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.mu.Lock()
	_, live := client.handlers["/devices/device-1/location"]
	client.mu.Unlock()
	if !live {
		t.Fatal("location handler removed by a one-shot request")
	}

	client.deliver("/devices/device-1/location", mustJSON(t, locationMessage{
		DeviceID: deviceID, Latitude: 6.46, Longitude: 3.39, Accuracy: 5, Timestamp: 1715003458,
	}))
	select {
	case s := <-stream.Samples():
		if s.Coordinate.Lat != 6.46 {
			t.Errorf("unexpected sample %+v", s.Coordinate)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample delivered after CurrentSample")
	}
}

func TestSubscribe_PublishesConfigAndForwardsInOrder(t *testing.T) {
	client := newFakeClient()
	sub := newTestSubscriber(client, time.Second)

	stream, err := sub.Subscribe(context.Background(), domain.SubscribeConfig{
		Accuracy:          domain.AccuracyBestForNavigation,
		MinInterval:       10 * time.Second,
		MinDistanceMeters: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.published) != 1 {
		t.Fatalf("expected config publish, got %d", len(client.published))
	}
	cfg := client.published[0]
	if cfg.topic != "/devices/device-1/location/config" || !cfg.retained {
		t.Errorf("expected retained config on config topic, got %+v", cfg)
	}
	var cm configMessage
	if err := json.Unmarshal(cfg.payload, &cm); err != nil {
		t.Fatal(err)
	}
	if cm.MinIntervalMs != 10000 || cm.MinDistanceMeters != 50 || cm.Accuracy != domain.AccuracyBestForNavigation {
		t.Errorf("unexpected config %+v", cm)
	}

	for i := 1; i <= 3; i++ {
		client.deliver("/devices/device-1/location", mustJSON(t, locationMessage{
			DeviceID: deviceID, Latitude: float64(i), Longitude: 3, Accuracy: 5, Timestamp: int64(1715003456 + i),
		}))
	}
	// invalid payloads are dropped
	client.deliver("/devices/device-1/location", []byte("invalid"))
	client.deliver("/devices/device-1/location", mustJSON(t, locationMessage{DeviceID: "other", Latitude: 9, Timestamp: 1}))

	for i := 1; i <= 3; i++ {
		s := <-stream.Samples()
		if s.Coordinate.Lat != float64(i) {
			t.Fatalf("sample %d out of order: %+v", i, s.Coordinate)
		}
	}
	select {
	case s := <-stream.Samples():
		t.Fatalf("unexpected sample %+v", s)
	default:
	}

	stream.Cancel()
	stream.Cancel()
	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != "/devices/device-1/location" {
		t.Errorf("expected a single unsubscribe, got %v", client.unsubscribed)
	}
}

func TestSubscribe_HandlerReturnsAfterCancel(t *testing.T) {
	client := newFakeClient()
	stream, err := newTestSubscriber(client, time.Second).Subscribe(context.Background(), domain.SubscribeConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handler := client.handlers["/devices/device-1/location"]
	stream.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		payload := mustJSON(t, locationMessage{DeviceID: deviceID, Timestamp: 1})
		for i := 0; i < sampleBufferSize+5; i++ {
			handler(nil, &fakeMQTTMessage{topic: "/devices/device-1/location", payload: payload})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked after cancel")
	}
}

func TestSubscribe_Error(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("not connected")

	if _, err := newTestSubscriber(client, time.Second).Subscribe(context.Background(), domain.SubscribeConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateLocationMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     locationMessage
		wantErr bool
	}{
		{"valid", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 1}, false},
		{"empty device_id", locationMessage{Latitude: 0, Longitude: 0, Timestamp: 1}, true},
		{"lat too low", locationMessage{DeviceID: "X", Latitude: -91, Longitude: 0, Timestamp: 1}, true},
		{"lat too high", locationMessage{DeviceID: "X", Latitude: 91, Longitude: 0, Timestamp: 1}, true},
		{"lon too low", locationMessage{DeviceID: "X", Latitude: 0, Longitude: -181, Timestamp: 1}, true},
		{"lon too high", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 181, Timestamp: 1}, true},
		{"negative accuracy", locationMessage{DeviceID: "X", Accuracy: -1, Timestamp: 1}, true},
		{"zero timestamp", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 0}, true},
		{"negative timestamp", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLocationMessage(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLocationMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
