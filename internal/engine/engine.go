// Package engine wires the controller together: MQTT ingestion, the decision
// engine, the schedule state machine and the HTTP, WebSocket and gRPC
// surfaces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/agsys/smart-irrigation/internal/api"
	"github.com/agsys/smart-irrigation/internal/irrigation"
	"github.com/agsys/smart-irrigation/internal/messaging"
	"github.com/agsys/smart-irrigation/internal/notify"
	"github.com/agsys/smart-irrigation/internal/registry"
	"github.com/agsys/smart-irrigation/internal/satellite"
	"github.com/agsys/smart-irrigation/internal/schedule"
	"github.com/agsys/smart-irrigation/internal/storage"
	"github.com/agsys/smart-irrigation/internal/telemetry"
	"github.com/agsys/smart-irrigation/internal/weather"
)

// RedisConfig holds weather cache connection settings. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config holds engine configuration
type Config struct {
	DatabasePath   string
	MQTT           messaging.Config
	Topics         messaging.Topics
	HTTP           api.Config
	GRPCAddr       string // gRPC health listener, empty to disable
	Redis          RedisConfig
	Weather        weather.Config
	Satellite      satellite.Config
	HealthInterval time.Duration // readiness refresh
	Debug          bool
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		DatabasePath:   "/var/lib/agsys/irrigation.db",
		MQTT:           messaging.DefaultConfig(),
		Topics:         messaging.DefaultTopics(),
		HTTP:           api.DefaultConfig(),
		GRPCAddr:       ":50051",
		Weather:        weather.DefaultConfig(),
		Satellite:      satellite.DefaultConfig(),
		HealthInterval: 10 * time.Second,
	}
}

// Engine is the irrigation controller
type Engine struct {
	config Config
	db     *storage.DB
	mqtt   *messaging.Client
	redis  *redis.Client

	registry    *registry.Registry
	normalizer  *telemetry.Normalizer
	dispatcher  *messaging.Dispatcher
	acks        *messaging.AckListener
	recommender *irrigation.Service
	schedules   *schedule.Manager
	monitor     *satellite.Monitor
	sink        *notify.Sink
	hub         *api.Hub
	api         *api.Server

	grpcServer *grpc.Server
	health     *health.Server

	cancel   context.CancelFunc
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new engine instance
func New(config Config) (*Engine, error) {
	db, err := storage.Open(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	e := &Engine{
		config:   config,
		db:       db,
		mqtt:     messaging.NewClient(config.MQTT),
		hub:      api.NewHub(),
		health:   health.NewServer(),
		stopChan: make(chan struct{}),
	}

	var wx weather.Provider = weather.NewOpenMeteo(config.Weather)
	if config.Redis.Addr != "" {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		wx = weather.NewCache(wx, e.redis, config.Weather.CurrentTTL, config.Weather.ForecastTTL)
	}

	e.registry = registry.New(db)
	e.normalizer = telemetry.New(e.registry, db)
	e.dispatcher = messaging.NewDispatcher(e.mqtt, config.Topics)
	e.sink = notify.NewSink(db, e.hub)
	e.schedules = schedule.NewManager(db, wx, e.dispatcher, e.sink)
	e.acks = messaging.NewAckListener(e.schedules)
	e.recommender = irrigation.NewService(db, wx)
	e.monitor = satellite.NewMonitor(db, satellite.NewNDVIClient(config.Satellite), wx, config.Satellite)

	e.normalizer.OnReading(func(device registry.Identity, r *storage.SensorReading) {
		if config.Debug {
			log.Printf("Reading %d from %s (%s)", r.ID, device.HardwareID, device.DeviceType)
		}
		e.hub.Broadcast(api.EventReading, r)
	})
	e.schedules.OnChange(func(s *storage.IrrigationSchedule) {
		e.hub.Broadcast(api.EventSchedule, s)
	})
	e.monitor.OnUpdate(func(h *storage.CropHealth) {
		e.hub.Broadcast(api.EventCropHealth, h)
	})

	e.api = api.NewServer(config.HTTP, api.Deps{
		Store:         db,
		Devices:       e.registry,
		Commands:      e.dispatcher,
		Recommender:   e.recommender,
		Schedules:     e.schedules,
		Health:        e.monitor,
		Notifications: e.sink,
	}, e.hub)

	return e, nil
}

// Start starts the engine. The MQTT connection is established in the
// background so the HTTP surface is available while the broker is down.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	subs := map[string]messaging.Handler{
		e.config.Topics.Telemetry(): e.normalizer.HandleMessage,
		e.config.Topics.Status():    e.normalizer.HandleMessage,
		e.config.Topics.Ack():       e.acks.HandleMessage,
	}
	for filter, h := range subs {
		if err := e.mqtt.Subscribe(filter, h); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
		}
	}

	if e.config.GRPCAddr != "" {
		lis, err := net.Listen("tcp", e.config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", e.config.GRPCAddr, err)
		}
		e.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(e.grpcServer, e.health)

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			log.Printf("gRPC health listening on %s", lis.Addr())
			if err := e.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Printf("gRPC server error: %v", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.api.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.mqtt.Connect(ctx); err != nil {
			log.Printf("Failed to connect to MQTT broker: %v", err)
		}
	}()

	e.wg.Add(1)
	go e.readinessLoop(ctx)

	if e.config.Satellite.RefreshInterval > 0 {
		e.wg.Add(1)
		go e.cropHealthLoop(ctx)
	}

	log.Println("Engine started")
	return nil
}

// Stop stops the engine
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.cancel != nil {
			e.cancel()
		}

		e.health.Shutdown()
		if e.grpcServer != nil {
			e.grpcServer.GracefulStop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.api.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping HTTP server: %v", err)
		}
		cancel()

		e.wg.Wait()
		e.mqtt.Disconnect()

		if e.redis != nil {
			if err := e.redis.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		}
		if err := e.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}

		log.Println("Engine stopped")
	})
	return nil
}

// readinessLoop publishes SERVING while the database answers and the broker
// session is up
func (e *Engine) readinessLoop(ctx context.Context) {
	defer e.wg.Done()

	e.updateReadiness(ctx)

	ticker := time.NewTicker(e.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.updateReadiness(ctx)
		}
	}
}

func (e *Engine) updateReadiness(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.db.Ping(pingCtx); err != nil {
		log.Printf("Database not ready: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if !e.mqtt.IsConnected() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	e.health.SetServingStatus("", status)
	return status
}

// cropHealthLoop periodically refreshes NDVI health for every active crop
func (e *Engine) cropHealthLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Satellite.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.monitor.RefreshAll(ctx)
			if err != nil {
				log.Printf("Crop health refresh failed: %v", err)
				continue
			}
			log.Printf("Crop health refreshed for %d crops", n)
		}
	}
}
