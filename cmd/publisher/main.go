package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const (
	qos = 1

	// walk center is the first default fence
	originLat = 6.4541
	originLon = 3.3947

	metersPerDegree = 111320.0
	walkSteps       = 24
)

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
	Accuracy          string  `json:"accuracy"`
	MinIntervalMs     int64   `json:"min_interval_ms"`
	MinDistanceMeters float64 `json:"min_distance_meters"`
}

type options struct {
	broker         string
	deviceID       string
	interval       time.Duration
	radius         float64
	poorAccuracy   float64
	denyPermission bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{broker: "tcp://localhost:1883"}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		opts.broker = v
	}

	cmd := &cobra.Command{
		Use:   "publisher",
		Short: "Simulate a GPS device walking in and out of a geofence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.broker, "broker", opts.broker, "MQTT broker URL")
	f.StringVar(&opts.deviceID, "device", "device-1", "device id")
	f.DurationVar(&opts.interval, "interval", 10*time.Second, "interval between samples until the server sends a config")
	f.Float64Var(&opts.radius, "radius", 300, "walk amplitude in meters around the origin")
	f.Float64Var(&opts.poorAccuracy, "poor-accuracy", 0.2, "fraction of samples reported with accuracy above 10m")
	f.BoolVar(&opts.denyPermission, "deny", false, "deny location permission")
	return cmd
}

type device struct {
	opts    options
	client  mqtt.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu   sync.Mutex
	step int
}

func run(ctx context.Context, opts options) error {
	if opts.interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	client := mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker(opts.broker).
		SetClientID("mock-device-" + opts.deviceID))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	d := &device{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(opts.interval), 1),
		log:     slog.Default().With("device_id", opts.deviceID),
	}

	handlers := map[string]mqtt.MessageHandler{
		d.topic("permission/request"): d.onPermissionRequest,
		d.topic("location/request"):   d.onLocationRequest,
		d.topic("location/config"):    d.onConfig,
	}
	for topic, h := range handlers {
		if token := client.Subscribe(topic, qos, h); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}

	d.log.Info("connected", "broker", opts.broker, "interval", opts.interval)
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Info("shutting down")
			return nil
		}
		d.publishLocation("")
	}
}

func (d *device) topic(suffix string) string {
	return fmt.Sprintf("/devices/%s/%s", d.opts.deviceID, suffix)
}

func (d *device) onPermissionRequest(_ mqtt.Client, msg mqtt.Message) {
	var req requestMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		d.log.Warn("invalid permission request", "error", err)
		return
	}

	status := "granted"
	if d.opts.denyPermission {
		status = "denied"
	}
	d.publish(d.topic("permission/response"), permissionMessage{RequestID: req.RequestID, Status: status})
	d.log.Info("answered permission request", "status", status)
}

func (d *device) onLocationRequest(_ mqtt.Client, msg mqtt.Message) {
	var req requestMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		d.log.Warn("invalid location request", "error", err)
		return
	}
	d.publishLocation(req.RequestID)
}

func (d *device) onConfig(_ mqtt.Client, msg mqtt.Message) {
	var cfg configMessage
	if err := json.Unmarshal(msg.Payload(), &cfg); err != nil {
		d.log.Warn("invalid config", "error", err)
		return
	}
	if cfg.MinIntervalMs > 0 {
		d.limiter.SetLimit(rate.Every(time.Duration(cfg.MinIntervalMs) * time.Millisecond))
	}
	d.log.Info("applied config", "accuracy", cfg.Accuracy, "min_interval_ms", cfg.MinIntervalMs, "min_distance", cfg.MinDistanceMeters)
}

// walkPosition moves north and south through the origin so every fence
// around it is entered and exited once per cycle.
func walkPosition(radius float64, step int) (lat, lon float64) {
	offset := radius * math.Sin(2*math.Pi*float64(step)/walkSteps)
	return originLat + offset/metersPerDegree, originLon
}

func (d *device) publishLocation(requestID string) {
	d.mu.Lock()
	step := d.step
	if requestID == "" {
		d.step++
	}
	d.mu.Unlock()

	lat, lon := walkPosition(d.opts.radius, step)
	accuracy := 3 + rand.Float64()*5
	if rand.Float64() < d.opts.poorAccuracy {
		accuracy = 15 + rand.Float64()*25
	}

	msg := locationMessage{
		DeviceID:  d.opts.deviceID,
		RequestID: requestID,
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  accuracy,
		Timestamp: time.Now().Unix(),
	}
	topic := d.topic("location")
	if requestID != "" {
		topic = d.topic("location/response")
	}
	d.publish(topic, msg)
	d.log.Info("published location", "lat", msg.Latitude, "lon", msg.Longitude, "accuracy", msg.Accuracy, "request_id", requestID)
}

func (d *device) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		d.log.Error("marshal", "topic", topic, "error", err)
		return
	}
	token := d.client.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		d.log.Warn("publish failed", "topic", topic, "error", err)
	}
}
