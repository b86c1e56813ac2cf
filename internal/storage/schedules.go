package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// --- Irrigation Schedule Operations ---

const scheduleColumns = `id, farm_id, crop_id, device_id, scheduled_time, duration_minutes,
	water_volume_liters, actual_volume_liters, status, triggered_by, executed_at, completed_at,
	weather_condition, notes, created_at, updated_at`

// InsertSchedule stores a new schedule
func (db *DB) InsertSchedule(ctx context.Context, s *IrrigationSchedule) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO irrigation_schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FarmID, nullString(s.CropID), nullString(s.DeviceID), utcPtr(s.ScheduledTime),
		s.DurationMinutes, s.WaterVolumeLiters, s.ActualVolumeLiters, string(s.Status),
		string(s.TriggeredBy), utcPtr(s.ExecutedAt), utcPtr(s.CompletedAt),
		nullJSON(s.WeatherCondition), nullString(s.Notes), s.CreatedAt, s.UpdatedAt)
	return err
}

// GetSchedule retrieves a schedule by id
func (db *DB) GetSchedule(ctx context.Context, id string) (*IrrigationSchedule, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM irrigation_schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// GetFarmSchedules returns a farm's schedules, newest first
func (db *DB) GetFarmSchedules(ctx context.Context, farmID string, limit int) ([]*IrrigationSchedule, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM irrigation_schedules
		WHERE farm_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, farmID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*IrrigationSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ScheduleChange carries the columns a transition may stamp. Nil fields keep
// their stored value.
type ScheduleChange struct {
	ScheduledTime      *time.Time
	ExecutedAt         *time.Time
	CompletedAt        *time.Time
	ActualVolumeLiters *float64
}

// TransitionSchedule moves a schedule to status `to` only if its current
// status is one of `from`. It reports whether the row was updated.
func (db *DB) TransitionSchedule(ctx context.Context, id string, to ScheduleStatus, change ScheduleChange, from ...ScheduleStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{
		string(to),
		utcPtr(change.ScheduledTime),
		utcPtr(change.ExecutedAt),
		utcPtr(change.CompletedAt),
		change.ActualVolumeLiters,
		time.Now().UTC(),
		id,
	}
	for _, s := range from {
		args = append(args, string(s))
	}

	result, err := db.conn.ExecContext(ctx, `
		UPDATE irrigation_schedules SET
			status = ?,
			scheduled_time = COALESCE(?, scheduled_time),
			executed_at = COALESCE(?, executed_at),
			completed_at = COALESCE(?, completed_at),
			actual_volume_liters = COALESCE(?, actual_volume_liters),
			updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanSchedule(s rowScanner) (*IrrigationSchedule, error) {
	sc := &IrrigationSchedule{}
	var cropID, deviceID, weather, notes sql.NullString
	var scheduledTime, executedAt, completedAt sql.NullTime
	var volume, actualVolume sql.NullFloat64
	var status, triggeredBy string
	err := s.Scan(&sc.ID, &sc.FarmID, &cropID, &deviceID, &scheduledTime, &sc.DurationMinutes,
		&volume, &actualVolume, &status, &triggeredBy, &executedAt, &completedAt,
		&weather, &notes, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sc.CropID = cropID.String
	sc.DeviceID = deviceID.String
	sc.ScheduledTime = timePtr(scheduledTime)
	sc.WaterVolumeLiters = floatPtr(volume)
	sc.ActualVolumeLiters = floatPtr(actualVolume)
	sc.Status = ScheduleStatus(status)
	sc.TriggeredBy = TriggerSource(triggeredBy)
	sc.ExecutedAt = timePtr(executedAt)
	sc.CompletedAt = timePtr(completedAt)
	if weather.Valid && weather.String != "" {
		sc.WeatherCondition = json.RawMessage(weather.String)
	}
	sc.Notes = notes.String
	return sc, nil
}

// --- Crop Health Operations ---

// InsertCropHealth stores a crop health snapshot
func (db *DB) InsertCropHealth(ctx context.Context, h *CropHealth) (int64, error) {
	recs, err := json.Marshal(h.Recommendations)
	if err != nil {
		return 0, err
	}
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO crop_health (crop_id, ndvi_value, health_score, health_status, moisture_level,
			temperature, humidity, recommendations, data_source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.CropID, h.NDVIValue, h.HealthScore, string(h.HealthStatus), h.MoistureLevel,
		h.Temperature, h.Humidity, string(recs), h.DataSource, h.RecordedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	h.ID = id
	return id, nil
}

// GetLatestCropHealth returns the newest health snapshot for a crop
func (db *DB) GetLatestCropHealth(ctx context.Context, cropID string) (*CropHealth, error) {
	h := &CropHealth{}
	var status string
	var moisture, temp, humidity sql.NullFloat64
	var recs, source sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, crop_id, ndvi_value, health_score, health_status, moisture_level,
			temperature, humidity, recommendations, data_source, recorded_at
		FROM crop_health WHERE crop_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, cropID).
		Scan(&h.ID, &h.CropID, &h.NDVIValue, &h.HealthScore, &status, &moisture,
			&temp, &humidity, &recs, &source, &h.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.HealthStatus = HealthStatus(status)
	h.MoistureLevel = floatPtr(moisture)
	h.Temperature = floatPtr(temp)
	h.Humidity = floatPtr(humidity)
	h.DataSource = source.String
	if recs.Valid && recs.String != "" {
		if err := json.Unmarshal([]byte(recs.String), &h.Recommendations); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// --- Notification Operations ---

// InsertNotification stores a notification
func (db *DB) InsertNotification(ctx context.Context, n *Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return 0, err
	}
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO notifications (farmer_id, farm_id, type, priority, title, message, channels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.FarmerID, n.FarmID, n.Type, n.Priority, n.Title, n.Message, string(channels), n.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

// GetFarmNotifications returns a farm's notifications, newest first
func (db *DB) GetFarmNotifications(ctx context.Context, farmID string, limit int) ([]*Notification, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, farmer_id, farm_id, type, priority, title, message, channels, created_at
		FROM notifications WHERE farm_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, farmID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var channels string
		if err := rows.Scan(&n.ID, &n.FarmerID, &n.FarmID, &n.Type, &n.Priority, &n.Title,
			&n.Message, &channels, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(channels), &n.Channels); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
