package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/agsys/smart-irrigation/internal/registry"
	"github.com/agsys/smart-irrigation/internal/storage"
)

//go:generate mockgen -destination=mock_telemetry.go -package=telemetry github.com/agsys/smart-irrigation/internal/telemetry Resolver,Store

// Resolver maps a hardware id to a registered device
type Resolver interface {
	Resolve(ctx context.Context, hardwareID string) (registry.Identity, error)
}

// Store applies normalized updates
type Store interface {
	ApplyReading(ctx context.Context, r *storage.SensorReading, battery *int) (int64, error)
	TouchDevice(ctx context.Context, id string, seenAt time.Time, status *storage.DeviceStatus, battery *int) error
}

// Outcome describes what Process did with a message
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeReading
	OutcomeStatus
	OutcomeUnknownDevice
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeReading:
		return "reading"
	case OutcomeStatus:
		return "status"
	case OutcomeUnknownDevice:
		return "unknown_device"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Normalizer handles telemetry and status messages
type Normalizer struct {
	resolver  Resolver
	store     Store
	timeout   time.Duration
	now       func() time.Time
	onReading func(registry.Identity, *storage.SensorReading)
}

// New creates a normalizer
func New(resolver Resolver, store Store) *Normalizer {
	return &Normalizer{
		resolver: resolver,
		store:    store,
		timeout:  10 * time.Second,
		now:      time.Now,
	}
}

// OnReading registers a callback invoked after each stored reading
func (n *Normalizer) OnReading(fn func(registry.Identity, *storage.SensorReading)) {
	n.onReading = fn
}

// HandleMessage is the MQTT entry point. Errors are logged, never returned.
func (n *Normalizer) HandleMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	outcome, err := n.Process(ctx, topic, payload)
	if err != nil {
		log.Printf("Failed to process message on %s: %v", topic, err)
		return
	}
	if outcome == OutcomeUnknownDevice {
		log.Printf("WARNING: received data for unknown device on %s", topic)
	}
}

// Process parses, resolves and applies one message
func (n *Normalizer) Process(ctx context.Context, topic string, payload []byte) (Outcome, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return OutcomeIgnored, err
	}
	if t.Category != CategorySensor && t.Category != CategoryStatus {
		return OutcomeIgnored, nil
	}

	p, err := DecodePayload(payload)
	if err != nil {
		return OutcomeIgnored, err
	}

	device, err := n.resolver.Resolve(ctx, t.HardwareID)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		return OutcomeUnknownDevice, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}

	switch t.Category {
	case CategorySensor:
		return OutcomeReading, n.applyReading(ctx, device, p)
	default:
		return OutcomeStatus, n.applyStatus(ctx, device, p)
	}
}

func (n *Normalizer) applyReading(ctx context.Context, device registry.Identity, p *Payload) error {
	reading := Normalize(device, p, n.now())
	battery := batteryLevel(p.Battery)

	if _, err := n.store.ApplyReading(ctx, reading, battery); err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}

	log.Printf("Saved reading for device %s on farm %s", device.HardwareID, device.FarmID)
	if keys := p.UnknownKeys(); len(keys) > 0 {
		log.Printf("Reading from %s kept untyped keys %v in raw payload", device.HardwareID, keys)
	}

	if n.onReading != nil {
		n.onReading(device, reading)
	}
	return nil
}

func (n *Normalizer) applyStatus(ctx context.Context, device registry.Identity, p *Payload) error {
	var status *storage.DeviceStatus
	if p.Status != nil {
		s := storage.DeviceStatus(*p.Status)
		if s.Valid() {
			status = &s
		} else {
			log.Printf("Ignoring unknown status %q from %s", *p.Status, device.HardwareID)
		}
	}

	if err := n.store.TouchDevice(ctx, device.ID, n.now(), status, batteryLevel(p.Battery)); err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	log.Printf("Device status update: %s/%s", device.FarmID, device.HardwareID)
	return nil
}

// Normalize maps a decoded payload onto a reading for the given device.
// A bare "temperature" key is soil temperature for soil sensors and air
// temperature for every other device type.
func Normalize(device registry.Identity, p *Payload, at time.Time) *storage.SensorReading {
	r := &storage.SensorReading{
		DeviceID:        device.ID,
		SoilMoisture:    p.SoilMoisture,
		SoilTemperature: p.SoilTemperature,
		AirTemperature:  p.AirTemperature,
		AirHumidity:     p.Humidity,
		LightIntensity:  p.Light,
		RawData:         p.Raw,
		RecordedAt:      at,
	}

	if p.Temperature != nil {
		if device.DeviceType == storage.DeviceTypeSoilSensor {
			r.SoilTemperature = p.Temperature
		} else {
			r.AirTemperature = p.Temperature
		}
	}
	// an explicit airTemperature wins over the generic key
	if p.AirTemperature != nil {
		r.AirTemperature = p.AirTemperature
	}

	return r
}

func batteryLevel(v *float64) *int {
	if v == nil {
		return nil
	}
	level := int(math.Round(math.Max(0, math.Min(100, *v))))
	return &level
}
