// Package api exposes the controller over HTTP and streams live events over
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/agsys/smart-irrigation/internal/irrigation"
	"github.com/agsys/smart-irrigation/internal/messaging"
	"github.com/agsys/smart-irrigation/internal/registry"
	"github.com/agsys/smart-irrigation/internal/satellite"
	"github.com/agsys/smart-irrigation/internal/schedule"
	"github.com/agsys/smart-irrigation/internal/storage"
)

// Config holds HTTP server configuration
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
}

// DefaultConfig returns default HTTP configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Store is the direct persistence the handlers use
type Store interface {
	CreateFarm(ctx context.Context, f *storage.Farm) error
	GetFarm(ctx context.Context, id string) (*storage.Farm, error)
	CreateCrop(ctx context.Context, c *storage.Crop) error
	GetCrop(ctx context.Context, id string) (*storage.Crop, error)
	GetFarmDevices(ctx context.Context, farmID string) ([]*storage.Device, error)
	GetReadings(ctx context.Context, deviceID string, from, to *time.Time, limit int) ([]*storage.SensorReading, error)
}

// Devices is the device registry
type Devices interface {
	Register(ctx context.Context, req registry.RegisterRequest) (*storage.Device, error)
	Get(ctx context.Context, deviceID string) (*storage.Device, error)
	SetStatus(ctx context.Context, deviceID string, status storage.DeviceStatus) error
	Stats(ctx context.Context, deviceID string, window time.Duration) (*storage.DeviceStats, error)
}

// Commands sends operator commands to devices
type Commands interface {
	SendDeviceCommand(farmID, hardwareID string, action messaging.DeviceAction, params map[string]any) (messaging.Result, error)
}

// Recommender produces irrigation recommendations
type Recommender interface {
	Recommend(ctx context.Context, farmID string) ([]irrigation.Recommendation, error)
}

// Schedules is the schedule state machine
type Schedules interface {
	Create(ctx context.Context, req schedule.CreateRequest) (*storage.IrrigationSchedule, error)
	Confirm(ctx context.Context, id string, at time.Time) (*storage.IrrigationSchedule, error)
	Trigger(ctx context.Context, id string) (messaging.Result, error)
	Cancel(ctx context.Context, id string) (*storage.IrrigationSchedule, error)
	Get(ctx context.Context, id string) (*storage.IrrigationSchedule, error)
	ListForFarm(ctx context.Context, farmID string, limit int) ([]*storage.IrrigationSchedule, error)
}

// HealthMonitor refreshes crop health snapshots
type HealthMonitor interface {
	UpdateCropHealth(ctx context.Context, crop *storage.Crop) (*storage.CropHealth, error)
}

// Notifications lists stored notifications
type Notifications interface {
	Recent(ctx context.Context, farmID string, limit int) ([]*storage.Notification, error)
}

// Deps are the collaborators behind the routes
type Deps struct {
	Store         Store
	Devices       Devices
	Commands      Commands
	Recommender   Recommender
	Schedules     Schedules
	Health        HealthMonitor
	Notifications Notifications
}

// Server is the HTTP API server
type Server struct {
	deps       Deps
	hub        *Hub
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates an API server. hub may be nil, in which case /ws is not
// served.
func NewServer(config Config, deps Deps, hub *Hub) *Server {
	s := &Server{
		deps:   deps,
		hub:    hub,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	r := s.router
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	r.HandleFunc("/api/farms", s.createFarm).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/farms/{farmId}/crops", s.createCrop).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/farms/{farmId}/devices", s.listFarmDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/farms/{farmId}/recommendations", s.getRecommendations).Methods(http.MethodGet)
	r.HandleFunc("/api/farms/{farmId}/schedules", s.listSchedules).Methods(http.MethodGet)
	r.HandleFunc("/api/farms/{farmId}/notifications", s.listNotifications).Methods(http.MethodGet)

	r.HandleFunc("/api/devices/register", s.registerDevice).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/devices/{id}", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/status", s.updateDeviceStatus).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/api/devices/{id}/readings", s.getReadings).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/command", s.sendCommand).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/api/schedules", s.createSchedule).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/schedules/{id}", s.getSchedule).Methods(http.MethodGet)
	r.HandleFunc("/api/schedules/{id}/confirm", s.confirmSchedule).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/schedules/{id}/trigger", s.triggerSchedule).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/schedules/{id}/cancel", s.cancelSchedule).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/api/crops/{id}/health/refresh", s.refreshCropHealth).Methods(http.MethodPost, http.MethodOptions)

	if s.hub != nil {
		r.Handle("/ws", s.hub).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Printf("HTTP API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling JSON response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondError sends {"error": message}
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// respondErr maps a domain error onto a status code. Unknown errors are
// logged and hidden behind a generic 500.
func respondErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
		respondError(w, code, "internal server error")
		return
	}
	respondError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, registry.ErrFarmNotFound),
		errors.Is(err, irrigation.ErrFarmNotFound),
		errors.Is(err, schedule.ErrFarmNotFound),
		errors.Is(err, schedule.ErrScheduleNotFound),
		errors.Is(err, satellite.ErrNoImagery),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidDevice),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, messaging.ErrInvalidCommand),
		errors.Is(err, satellite.ErrInvalidBoundary),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrAlreadyRegistered),
		errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, schedule.ErrNoDevice),
		errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
