// Package schedule implements the irrigation schedule lifecycle:
//
//	pending -> scheduled -> in_progress -> completed | failed
//	pending | scheduled -> cancelled
//
// Every transition is a compare-and-set on the stored status, so concurrent
// or duplicate requests apply at most once.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agsys/smart-irrigation/internal/messaging"
	"github.com/agsys/smart-irrigation/internal/storage"
	"github.com/agsys/smart-irrigation/internal/weather"
)

//go:generate mockgen -destination=mock_schedule.go -package=schedule github.com/agsys/smart-irrigation/internal/schedule WeatherSource,Dispatcher,Notifier

// Store is the persistence the state machine needs
type Store interface {
	GetFarm(ctx context.Context, id string) (*storage.Farm, error)
	GetCrop(ctx context.Context, id string) (*storage.Crop, error)
	GetDevice(ctx context.Context, id string) (*storage.Device, error)
	InsertSchedule(ctx context.Context, s *storage.IrrigationSchedule) error
	GetSchedule(ctx context.Context, id string) (*storage.IrrigationSchedule, error)
	GetFarmSchedules(ctx context.Context, farmID string, limit int) ([]*storage.IrrigationSchedule, error)
	TransitionSchedule(ctx context.Context, id string, to storage.ScheduleStatus, change storage.ScheduleChange, from ...storage.ScheduleStatus) (bool, error)
}

// WeatherSource supplies the snapshot frozen into new schedules
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Current, error)
}

// Dispatcher sends device commands
type Dispatcher interface {
	Publish(farmID, hardwareID, command string, params map[string]any) messaging.Result
}

// Notifier delivers operator notifications
type Notifier interface {
	Notify(ctx context.Context, n *storage.Notification) error
}

// CreateRequest describes a schedule to create
type CreateRequest struct {
	FarmID            string                `json:"farmId"`
	CropID            string                `json:"cropId,omitempty"`
	DeviceID          string                `json:"deviceId,omitempty"`
	ScheduledTime     *time.Time            `json:"scheduledTime,omitempty"`
	DurationMinutes   int                   `json:"durationMinutes"`
	WaterVolumeLiters *float64              `json:"waterVolumeLiters,omitempty"`
	TriggeredBy       storage.TriggerSource `json:"triggeredBy"`
	Notes             string                `json:"notes,omitempty"`
}

// Manager runs schedule transitions
type Manager struct {
	store    Store
	weather  WeatherSource
	dispatch Dispatcher
	notifier Notifier
	now      func() time.Time
	onChange func(*storage.IrrigationSchedule)
}

// NewManager creates a schedule manager. weather may be nil.
func NewManager(store Store, wx WeatherSource, dispatch Dispatcher, notifier Notifier) *Manager {
	return &Manager{
		store:    store,
		weather:  wx,
		dispatch: dispatch,
		notifier: notifier,
		now:      time.Now,
	}
}

// OnChange registers a callback invoked with the schedule after every
// committed transition
func (m *Manager) OnChange(fn func(*storage.IrrigationSchedule)) {
	m.onChange = fn
}

// Create stores a new schedule. It is scheduled when a time is given and
// pending otherwise. Current weather is captured once and never refreshed.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*storage.IrrigationSchedule, error) {
	if req.DurationMinutes < 1 {
		return nil, fmt.Errorf("%w: duration must be at least 1 minute", ErrInvalidSchedule)
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = storage.TriggerManual
	}
	if !req.TriggeredBy.Valid() {
		return nil, fmt.Errorf("%w: unknown trigger source %q", ErrInvalidSchedule, req.TriggeredBy)
	}

	farm, err := m.store.GetFarm(ctx, req.FarmID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrFarmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load farm: %w", err)
	}

	if req.CropID != "" {
		crop, err := m.store.GetCrop(ctx, req.CropID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: crop %s not found", ErrInvalidSchedule, req.CropID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load crop: %w", err)
		}
		if crop.FarmID != farm.ID {
			return nil, fmt.Errorf("%w: crop %s belongs to another farm", ErrInvalidSchedule, req.CropID)
		}
	}

	if req.DeviceID != "" {
		device, err := m.store.GetDevice(ctx, req.DeviceID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: device %s not found", ErrInvalidSchedule, req.DeviceID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load device: %w", err)
		}
		if device.FarmID != farm.ID {
			return nil, fmt.Errorf("%w: device %s belongs to another farm", ErrInvalidSchedule, req.DeviceID)
		}
	}

	s := &storage.IrrigationSchedule{
		ID:                uuid.New().String(),
		FarmID:            farm.ID,
		CropID:            req.CropID,
		DeviceID:          req.DeviceID,
		ScheduledTime:     req.ScheduledTime,
		DurationMinutes:   req.DurationMinutes,
		WaterVolumeLiters: req.WaterVolumeLiters,
		Status:            storage.SchedulePending,
		TriggeredBy:       req.TriggeredBy,
		WeatherCondition:  m.snapshot(ctx, farm),
		Notes:             req.Notes,
	}
	if s.ScheduledTime != nil {
		s.Status = storage.ScheduleScheduled
	}

	if err := m.store.InsertSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	log.Printf("Schedule %s created for farm %s (%s, %d min)", s.ID, s.FarmID, s.Status, s.DurationMinutes)
	m.changed(s)
	return s, nil
}

// Confirm fixes the time of a pending schedule
func (m *Manager) Confirm(ctx context.Context, id string, at time.Time) (*storage.IrrigationSchedule, error) {
	change := storage.ScheduleChange{ScheduledTime: &at}
	return m.transition(ctx, id, storage.ScheduleScheduled, change, storage.SchedulePending)
}

// Trigger starts a scheduled run. The transition commits before the start
// command is published, and a failed publish does not roll it back; the
// publish result is returned for the caller to act on.
func (m *Manager) Trigger(ctx context.Context, id string) (messaging.Result, error) {
	s, err := m.get(ctx, id)
	if err != nil {
		return messaging.Result{}, err
	}
	if s.DeviceID == "" {
		return messaging.Result{}, ErrNoDevice
	}

	device, err := m.store.GetDevice(ctx, s.DeviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return messaging.Result{}, ErrNoDevice
	}
	if err != nil {
		return messaging.Result{}, fmt.Errorf("failed to load device: %w", err)
	}

	now := m.now()
	s, err = m.transition(ctx, id, storage.ScheduleInProgress, storage.ScheduleChange{ExecutedAt: &now}, storage.ScheduleScheduled)
	if err != nil {
		return messaging.Result{}, err
	}

	res := m.dispatch.Publish(s.FarmID, device.HardwareID, "start", map[string]any{
		"scheduleId":      s.ID,
		"durationMinutes": s.DurationMinutes,
	})
	if !res.Attempted() {
		log.Printf("Schedule %s is in progress but start command was not sent: %s", s.ID, res.Reason)
	}
	return res, nil
}

// Complete applies an acknowledgment. A schedule already in a terminal state
// is left untouched and no error is returned.
func (m *Manager) Complete(ctx context.Context, id string, status storage.ScheduleStatus, actualVolumeLiters *float64) error {
	if status != storage.ScheduleCompleted && status != storage.ScheduleFailed {
		return ErrInvalidAckStatus
	}

	now := m.now()
	change := storage.ScheduleChange{CompletedAt: &now, ActualVolumeLiters: actualVolumeLiters}
	s, err := m.transition(ctx, id, status, change, storage.ScheduleInProgress)

	var terr *TransitionError
	if errors.As(err, &terr) && terr.From.Terminal() {
		log.Printf("Ignoring duplicate ack for schedule %s (already %s)", id, terr.From)
		return nil
	}
	if err != nil {
		return err
	}

	m.notifyCompletion(ctx, s)
	return nil
}

// Cancel cancels a schedule that has not started
func (m *Manager) Cancel(ctx context.Context, id string) (*storage.IrrigationSchedule, error) {
	return m.transition(ctx, id, storage.ScheduleCancelled, storage.ScheduleChange{},
		storage.SchedulePending, storage.ScheduleScheduled)
}

// Get returns a schedule
func (m *Manager) Get(ctx context.Context, id string) (*storage.IrrigationSchedule, error) {
	return m.get(ctx, id)
}

// ListForFarm returns a farm's most recent schedules
func (m *Manager) ListForFarm(ctx context.Context, farmID string, limit int) ([]*storage.IrrigationSchedule, error) {
	if limit <= 0 {
		limit = 50
	}
	schedules, err := m.store.GetFarmSchedules(ctx, farmID, limit)
	if err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = []*storage.IrrigationSchedule{}
	}
	return schedules, nil
}

func (m *Manager) transition(ctx context.Context, id string, to storage.ScheduleStatus, change storage.ScheduleChange, from ...storage.ScheduleStatus) (*storage.IrrigationSchedule, error) {
	ok, err := m.store.TransitionSchedule(ctx, id, to, change, from...)
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule %s: %w", id, err)
	}

	s, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &TransitionError{ScheduleID: id, From: s.Status, To: to}
	}

	log.Printf("Schedule %s -> %s", id, to)
	m.changed(s)
	return s, nil
}

func (m *Manager) get(ctx context.Context, id string) (*storage.IrrigationSchedule, error) {
	s, err := m.store.GetSchedule(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
	}
	return s, nil
}

func (m *Manager) notifyCompletion(ctx context.Context, s *storage.IrrigationSchedule) {
	farm, err := m.store.GetFarm(ctx, s.FarmID)
	if err != nil {
		log.Printf("Failed to load farm %s for notification: %v", s.FarmID, err)
		return
	}

	n := &storage.Notification{
		FarmerID: farm.FarmerID,
		FarmID:   farm.ID,
		Type:     "irrigation",
		Priority: "low",
		Title:    "Irrigation Completed",
		Message:  fmt.Sprintf("Irrigation completed for %d minutes", s.DurationMinutes),
		Channels: []string{"in_app"},
	}
	if s.Status == storage.ScheduleFailed {
		n.Priority = "high"
		n.Title = "Irrigation Failed"
		n.Message = "Irrigation failed. Please check your equipment."
	}

	if err := m.notifier.Notify(ctx, n); err != nil {
		log.Printf("Failed to send notification for schedule %s: %v", s.ID, err)
	}
}

func (m *Manager) snapshot(ctx context.Context, farm *storage.Farm) json.RawMessage {
	if m.weather == nil {
		return nil
	}
	current, err := m.weather.Current(ctx, farm.Latitude, farm.Longitude)
	if err != nil {
		log.Printf("Weather snapshot unavailable for farm %s: %v", farm.ID, err)
		return nil
	}
	data, err := json.Marshal(current)
	if err != nil {
		return nil
	}
	return data
}

func (m *Manager) changed(s *storage.IrrigationSchedule) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
