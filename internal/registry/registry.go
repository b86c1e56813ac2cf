// Package registry resolves hardware device identifiers to registered devices
// and handles device registration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agsys/smart-irrigation/internal/storage"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrFarmNotFound      = errors.New("farm not found")
	ErrAlreadyRegistered = errors.New("device already registered")
	ErrInvalidDevice     = errors.New("invalid device")
)

// Store is the persistence the registry needs
type Store interface {
	GetFarm(ctx context.Context, id string) (*storage.Farm, error)
	CreateDevice(ctx context.Context, d *storage.Device) error
	GetDevice(ctx context.Context, id string) (*storage.Device, error)
	GetDeviceByHardwareID(ctx context.Context, hardwareID string) (*storage.Device, error)
	SetDeviceStatus(ctx context.Context, id string, status storage.DeviceStatus) error
	GetDeviceStats(ctx context.Context, deviceID string, since time.Time) (*storage.DeviceStats, error)
}

// Identity is the cached part of a device record. Status, last-seen and
// battery change at runtime and are not cached.
type Identity struct {
	ID         string
	HardwareID string
	FarmID     string
	DeviceType storage.DeviceType
}

// Registry is the device registry adapter
type Registry struct {
	store Store
	mu    sync.RWMutex
	known map[string]Identity // keyed by hardware id
}

// New creates a registry backed by store
func New(store Store) *Registry {
	return &Registry{
		store: store,
		known: make(map[string]Identity),
	}
}

// Resolve looks up a device by hardware id. It never creates devices.
func (r *Registry) Resolve(ctx context.Context, hardwareID string) (Identity, error) {
	r.mu.RLock()
	id, ok := r.known[hardwareID]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	d, err := r.store.GetDeviceByHardwareID(ctx, hardwareID)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, ErrDeviceNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to resolve device %s: %w", hardwareID, err)
	}

	id = identityOf(d)
	r.remember(id)
	return id, nil
}

// Get returns the full device record by internal id
func (r *Registry) Get(ctx context.Context, deviceID string) (*storage.Device, error) {
	d, err := r.store.GetDevice(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

// RegisterRequest describes a device to register
type RegisterRequest struct {
	FarmID     string             `json:"farmId"`
	HardwareID string             `json:"deviceId"`
	DeviceType storage.DeviceType `json:"deviceType"`
	Name       string             `json:"name,omitempty"`
	Latitude   *float64           `json:"latitude,omitempty"`
	Longitude  *float64           `json:"longitude,omitempty"`
}

// Validate checks the request fields
func (req RegisterRequest) Validate() error {
	if req.FarmID == "" {
		return fmt.Errorf("%w: farm id is required", ErrInvalidDevice)
	}
	if n := len(req.HardwareID); n < 8 || n > 100 {
		return fmt.Errorf("%w: device id must be 8-100 characters", ErrInvalidDevice)
	}
	if !req.DeviceType.Valid() {
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidDevice, req.DeviceType)
	}
	if len(req.Name) > 100 {
		return fmt.Errorf("%w: name longer than 100 characters", ErrInvalidDevice)
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90) {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidDevice)
	}
	if req.Longitude != nil && (*req.Longitude < -180 || *req.Longitude > 180) {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidDevice)
	}
	return nil
}

// Register creates a device. Hardware ids are unique across the fleet.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*storage.Device, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.store.GetFarm(ctx, req.FarmID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFarmNotFound
		}
		return nil, fmt.Errorf("failed to load farm: %w", err)
	}

	name := req.Name
	if name == "" {
		name = req.HardwareID
	}

	d := &storage.Device{
		ID:         uuid.New().String(),
		HardwareID: req.HardwareID,
		FarmID:     req.FarmID,
		DeviceType: req.DeviceType,
		Name:       name,
		Status:     storage.DeviceActive,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	}
	if err := r.store.CreateDevice(ctx, d); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to store device: %w", err)
	}

	r.remember(identityOf(d))
	log.Printf("Device registered: %s (%s) on farm %s", d.HardwareID, d.DeviceType, d.FarmID)
	return d, nil
}

// SetStatus applies an explicit status edit
func (r *Registry) SetStatus(ctx context.Context, deviceID string, status storage.DeviceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDevice, status)
	}
	if err := r.store.SetDeviceStatus(ctx, deviceID, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}

// Stats summarizes a device's readings over the trailing window
func (r *Registry) Stats(ctx context.Context, deviceID string, window time.Duration) (*storage.DeviceStats, error) {
	stats, err := r.store.GetDeviceStats(ctx, deviceID, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	stats.WindowHours = int(window / time.Hour)
	return stats, nil
}

func (r *Registry) remember(id Identity) {
	r.mu.Lock()
	r.known[id.HardwareID] = id
	r.mu.Unlock()
}

func identityOf(d *storage.Device) Identity {
	return Identity{
		ID:         d.ID,
		HardwareID: d.HardwareID,
		FarmID:     d.FarmID,
		DeviceType: d.DeviceType,
	}
}
