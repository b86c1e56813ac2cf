// Package storage provides SQLite database operations for the irrigation controller.
package storage

import (
	"encoding/json"
	"time"
)

// DeviceType identifies the kind of field device
type DeviceType string

const (
	DeviceTypeSoilSensor     DeviceType = "soil_sensor"
	DeviceTypeWaterPump      DeviceType = "water_pump"
	DeviceTypeValve          DeviceType = "valve"
	DeviceTypeWeatherStation DeviceType = "weather_station"
	DeviceTypeNPKSensor      DeviceType = "npk_sensor"
)

// Valid reports whether t is a known device type
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeSoilSensor, DeviceTypeWaterPump, DeviceTypeValve,
		DeviceTypeWeatherStation, DeviceTypeNPKSensor:
		return true
	}
	return false
}

// DeviceStatus is the operational status of a device
type DeviceStatus string

const (
	DeviceActive      DeviceStatus = "active"
	DeviceInactive    DeviceStatus = "inactive"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceOffline     DeviceStatus = "offline"
)

// Valid reports whether s is a known device status
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceActive, DeviceInactive, DeviceMaintenance, DeviceOffline:
		return true
	}
	return false
}

// Farm is the owner of crops, devices and schedules
type Farm struct {
	ID           string    `json:"id"`
	FarmerID     string    `json:"farmer_id"`
	Name         string    `json:"name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	AreaHectares float64   `json:"area_hectares"`
	Boundary     string    `json:"boundary,omitempty"` // GeoJSON polygon
	CreatedAt    time.Time `json:"created_at"`
}

// Crop status values
const (
	CropActive    = "active"
	CropHarvested = "harvested"
	CropFailed    = "failed"
)

// Crop is a planting on a farm
type Crop struct {
	ID           string    `json:"id"`
	FarmID       string    `json:"farm_id"`
	CropType     string    `json:"crop_type"`
	Variety      string    `json:"variety,omitempty"`
	AreaHectares float64   `json:"area_hectares"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Device represents a registered IoT device
type Device struct {
	ID           string          `json:"id"`
	HardwareID   string          `json:"hardware_id"` // Self-reported id, unique across the fleet
	FarmID       string          `json:"farm_id"`
	DeviceType   DeviceType      `json:"device_type"`
	Name         string          `json:"name"`
	Status       DeviceStatus    `json:"status"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	BatteryLevel *int            `json:"battery_level,omitempty"` // 0-100
	LastSeenAt   *time.Time      `json:"last_seen_at,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SensorReading is one normalized telemetry message
type SensorReading struct {
	ID              int64           `json:"id"`
	DeviceID        string          `json:"device_id"`
	SoilMoisture    *float64        `json:"soil_moisture,omitempty"` // percent
	SoilTemperature *float64        `json:"soil_temperature,omitempty"`
	AirTemperature  *float64        `json:"air_temperature,omitempty"`
	AirHumidity     *float64        `json:"air_humidity,omitempty"`
	LightIntensity  *float64        `json:"light_intensity,omitempty"`
	RawData         json.RawMessage `json:"raw_data"` // Original payload, always kept
	RecordedAt      time.Time       `json:"recorded_at"`
}

// HealthStatus bands a crop health score
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthHealthy   HealthStatus = "healthy"
	HealthModerate  HealthStatus = "moderate"
	HealthStressed  HealthStatus = "stressed"
	HealthCritical  HealthStatus = "critical"
)

// CropHealth is an NDVI-derived health snapshot
type CropHealth struct {
	ID              int64        `json:"id"`
	CropID          string       `json:"crop_id"`
	NDVIValue       float64      `json:"ndvi_value"`
	HealthScore     int          `json:"health_score"`
	HealthStatus    HealthStatus `json:"health_status"`
	MoistureLevel   *float64     `json:"moisture_level,omitempty"` // Satellite-derived
	Temperature     *float64     `json:"temperature,omitempty"`
	Humidity        *float64     `json:"humidity,omitempty"`
	Recommendations []string     `json:"recommendations"`
	DataSource      string       `json:"data_source"`
	RecordedAt      time.Time    `json:"recorded_at"`
}

// ScheduleStatus is a state of the irrigation schedule lifecycle
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleScheduled  ScheduleStatus = "scheduled"
	ScheduleInProgress ScheduleStatus = "in_progress"
	ScheduleCompleted  ScheduleStatus = "completed"
	ScheduleFailed     ScheduleStatus = "failed"
	ScheduleCancelled  ScheduleStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleCompleted || s == ScheduleFailed || s == ScheduleCancelled
}

// TriggerSource records who created a schedule
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerAuto     TriggerSource = "auto"
	TriggerSchedule TriggerSource = "schedule"
	TriggerSensor   TriggerSource = "sensor"
)

// Valid reports whether t is a known trigger source
func (t TriggerSource) Valid() bool {
	switch t {
	case TriggerManual, TriggerAuto, TriggerSchedule, TriggerSensor:
		return true
	}
	return false
}

// IrrigationSchedule is one planned or executed irrigation run
type IrrigationSchedule struct {
	ID                 string          `json:"id"`
	FarmID             string          `json:"farm_id"`
	CropID             string          `json:"crop_id,omitempty"`
	DeviceID           string          `json:"device_id,omitempty"`
	ScheduledTime      *time.Time      `json:"scheduled_time,omitempty"`
	DurationMinutes    int             `json:"duration_minutes"`
	WaterVolumeLiters  *float64        `json:"water_volume_liters,omitempty"`
	ActualVolumeLiters *float64        `json:"actual_volume_liters,omitempty"`
	Status             ScheduleStatus  `json:"status"`
	TriggeredBy        TriggerSource   `json:"triggered_by"`
	ExecutedAt         *time.Time      `json:"executed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	WeatherCondition   json.RawMessage `json:"weather_condition,omitempty"` // Frozen at creation
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Notification is an operator-facing message
type Notification struct {
	ID        int64     `json:"id"`
	FarmerID  string    `json:"farmer_id"`
	FarmID    string    `json:"farm_id"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Channels  []string  `json:"channels"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceStats summarizes a device's readings over a window
type DeviceStats struct {
	DeviceID        string     `json:"device_id"`
	WindowHours     int        `json:"window_hours"`
	ReadingCount    int        `json:"reading_count"`
	AvgSoilMoisture *float64   `json:"avg_soil_moisture,omitempty"`
	MinSoilMoisture *float64   `json:"min_soil_moisture,omitempty"`
	MaxSoilMoisture *float64   `json:"max_soil_moisture,omitempty"`
	AvgAirTemp      *float64   `json:"avg_air_temperature,omitempty"`
	LastReadingAt   *time.Time `json:"last_reading_at,omitempty"`
}
