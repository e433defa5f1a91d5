package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/akinolu52/e-tap/config"
	"github.com/akinolu52/e-tap/module/core"
	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fences, err := config.LoadFences(cfg.FencesFile)
	if err != nil {
		return fmt.Errorf("fences: %w", err)
	}

	db, err := config.NewPostgres(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer func() { _ = amqpConn.Close() }()

	mqttClient, err := config.NewMQTT(cfg)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	defer mqttClient.Disconnect(250)

	coreModule, err := core.Build(ctx, db, amqpConn, mqttClient, coreOptions(cfg, fences, logger))
	if err != nil {
		return fmt.Errorf("core module: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	health := config.NewHealthChecker(db, amqpConn, mqttClient, coreModule.Session)
	health.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	coreModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "port", cfg.HTTPPort, "device_id", cfg.DeviceID, "fences", len(fences))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// center the map once on boot; the device may not be online yet
		locateCtx, cancel := context.WithTimeout(gctx, cfg.Tracking.DeviceRequestTimeout)
		defer cancel()
		if _, err := coreModule.Session.Locate(locateCtx); err != nil {
			logger.Warn("initial locate failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := coreModule.Close(); cerr != nil {
			logger.Warn("close session", "error", cerr)
		}
		return err
	})

	return g.Wait()
}

func coreOptions(cfg *config.Config, fences []domain.Geofence, logger *slog.Logger) core.Options {
	t := cfg.Tracking
	return core.Options{
		DeviceID:             cfg.DeviceID,
		DeviceRequestTimeout: t.DeviceRequestTimeout,
		Fences:               fences,
		Zoom: domain.ZoomState{
			Level: t.InitialZoomLevel,
			Min:   t.MinZoomLevel,
			Max:   t.MaxZoomLevel,
		},
		Session: service.SessionConfig{
			AccuracyThresholdMeters: t.AccuracyThresholdMeters,
			Subscribe: domain.SubscribeConfig{
				Accuracy:          domain.AccuracyClass(t.SampleAccuracy),
				MinInterval:       t.SampleInterval,
				MinDistanceMeters: t.SampleMinDistanceMeters,
			},
			InitialViewport: domain.Viewport{
				Center:        domain.Coordinate{Lat: t.InitialLatitude, Lon: t.InitialLongitude},
				LatitudeSpan:  t.ViewportSpan,
				LongitudeSpan: t.ViewportSpan,
			},
			NotifyTimeout: t.NotifyTimeout,
		},
		Logger: logger,
	}
}
