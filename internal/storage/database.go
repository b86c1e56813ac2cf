package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS farms (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		area_hectares REAL,
		boundary TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS crops (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		crop_type TEXT NOT NULL,
		variety TEXT,
		area_hectares REAL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (farm_id) REFERENCES farms(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_crops_farm ON crops(farm_id, status);

	-- Field devices, hardware_id is the id devices put in their topics
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		hardware_id TEXT UNIQUE NOT NULL,
		farm_id TEXT NOT NULL,
		device_type TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		latitude REAL,
		longitude REAL,
		battery_level INTEGER,
		last_seen_at DATETIME,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (farm_id) REFERENCES farms(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_devices_farm ON devices(farm_id, device_type, status);

	CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		soil_moisture REAL,
		soil_temperature REAL,
		air_temperature REAL,
		air_humidity REAL,
		light_intensity REAL,
		raw_data TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sensor_readings_device ON sensor_readings(device_id, recorded_at);

	CREATE TABLE IF NOT EXISTS crop_health (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crop_id TEXT NOT NULL,
		ndvi_value REAL NOT NULL,
		health_score INTEGER NOT NULL,
		health_status TEXT NOT NULL,
		moisture_level REAL,
		temperature REAL,
		humidity REAL,
		recommendations TEXT,
		data_source TEXT,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY (crop_id) REFERENCES crops(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_crop_health_crop ON crop_health(crop_id, recorded_at);

	-- Schedules are never deleted, device/crop references are cleared instead
	CREATE TABLE IF NOT EXISTS irrigation_schedules (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		crop_id TEXT,
		device_id TEXT,
		scheduled_time DATETIME,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes >= 1),
		water_volume_liters REAL,
		actual_volume_liters REAL,
		status TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		executed_at DATETIME,
		completed_at DATETIME,
		weather_condition TEXT,
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (farm_id) REFERENCES farms(id),
		FOREIGN KEY (crop_id) REFERENCES crops(id) ON DELETE SET NULL,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_farm ON irrigation_schedules(farm_id, status);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		farmer_id TEXT NOT NULL,
		farm_id TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		channels TEXT NOT NULL,
		is_read INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_farm ON notifications(farm_id, created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// --- Farm Operations ---

// CreateFarm inserts a farm
func (db *DB) CreateFarm(ctx context.Context, f *Farm) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO farms (id, farmer_id, name, latitude, longitude, area_hectares, boundary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FarmerID, f.Name, f.Latitude, f.Longitude, f.AreaHectares, nullString(f.Boundary), f.CreatedAt)
	return mapConstraintError(err)
}

// GetFarm retrieves a farm by id
func (db *DB) GetFarm(ctx context.Context, id string) (*Farm, error) {
	f := &Farm{}
	var area sql.NullFloat64
	var boundary sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, farmer_id, name, latitude, longitude, area_hectares, boundary, created_at
		FROM farms WHERE id = ?`, id).
		Scan(&f.ID, &f.FarmerID, &f.Name, &f.Latitude, &f.Longitude, &area, &boundary, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.AreaHectares = area.Float64
	f.Boundary = boundary.String
	return f, nil
}

// --- Crop Operations ---

// CreateCrop inserts a crop
func (db *DB) CreateCrop(ctx context.Context, c *Crop) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = CropActive
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO crops (id, farm_id, crop_type, variety, area_hectares, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FarmID, c.CropType, nullString(c.Variety), c.AreaHectares, c.Status, c.CreatedAt)
	return err
}

// GetCrop retrieves a crop by id
func (db *DB) GetCrop(ctx context.Context, id string) (*Crop, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, farm_id, crop_type, variety, area_hectares, status, created_at
		FROM crops WHERE id = ?`, id)
	c, err := scanCrop(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetActiveCrops returns the active crops of a farm in creation order
func (db *DB) GetActiveCrops(ctx context.Context, farmID string) ([]*Crop, error) {
	return db.queryCrops(ctx, `
		SELECT id, farm_id, crop_type, variety, area_hectares, status, created_at
		FROM crops WHERE farm_id = ? AND status = ? ORDER BY created_at, rowid`, farmID, CropActive)
}

// GetAllActiveCrops returns active crops across all farms
func (db *DB) GetAllActiveCrops(ctx context.Context) ([]*Crop, error) {
	return db.queryCrops(ctx, `
		SELECT id, farm_id, crop_type, variety, area_hectares, status, created_at
		FROM crops WHERE status = ? ORDER BY farm_id, created_at, rowid`, CropActive)
}

func (db *DB) queryCrops(ctx context.Context, query string, args ...any) ([]*Crop, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crops []*Crop
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, err
		}
		crops = append(crops, c)
	}
	return crops, rows.Err()
}

func scanCrop(s rowScanner) (*Crop, error) {
	c := &Crop{}
	var variety sql.NullString
	var area sql.NullFloat64
	if err := s.Scan(&c.ID, &c.FarmID, &c.CropType, &variety, &area, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Variety = variety.String
	c.AreaHectares = area.Float64
	return c, nil
}

// --- Device Operations ---

const deviceColumns = `id, hardware_id, farm_id, device_type, name, status, latitude, longitude,
	battery_level, last_seen_at, metadata, created_at, updated_at`

// CreateDevice inserts a device, returning ErrDuplicate if the hardware id is taken
func (db *DB) CreateDevice(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = DeviceActive
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.HardwareID, d.FarmID, string(d.DeviceType), d.Name, string(d.Status),
		d.Latitude, d.Longitude, d.BatteryLevel, d.LastSeenAt, nullJSON(d.Metadata), d.CreatedAt, d.UpdatedAt)
	return mapConstraintError(err)
}

// GetDevice retrieves a device by internal id
func (db *DB) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDeviceByHardwareID retrieves a device by its hardware id
func (db *DB) GetDeviceByHardwareID(ctx context.Context, hardwareID string) (*Device, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE hardware_id = ?`, hardwareID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetFarmDevices retrieves all devices of a farm
func (db *DB) GetFarmDevices(ctx context.Context, farmID string) ([]*Device, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE farm_id = ? ORDER BY created_at, rowid`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// SetDeviceStatus updates the operational status of a device
func (db *DB) SetDeviceStatus(ctx context.Context, id string, status DeviceStatus) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchDevice stamps last-seen and optionally status and battery level
func (db *DB) TouchDevice(ctx context.Context, id string, seenAt time.Time, status *DeviceStatus, battery *int) error {
	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE devices SET
			last_seen_at = ?,
			status = COALESCE(?, status),
			battery_level = COALESCE(?, battery_level),
			updated_at = ?
		WHERE id = ?`, seenAt.UTC(), statusArg, battery, time.Now().UTC(), id)
	return err
}

func scanDevice(s rowScanner) (*Device, error) {
	d := &Device{}
	var deviceType, status string
	var lat, lon sql.NullFloat64
	var battery sql.NullInt64
	var lastSeen sql.NullTime
	var metadata sql.NullString
	err := s.Scan(&d.ID, &d.HardwareID, &d.FarmID, &deviceType, &d.Name, &status, &lat, &lon,
		&battery, &lastSeen, &metadata, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.DeviceType = DeviceType(deviceType)
	d.Status = DeviceStatus(status)
	d.Latitude = floatPtr(lat)
	d.Longitude = floatPtr(lon)
	if battery.Valid {
		b := int(battery.Int64)
		d.BatteryLevel = &b
	}
	d.LastSeenAt = timePtr(lastSeen)
	if metadata.Valid && metadata.String != "" {
		d.Metadata = json.RawMessage(metadata.String)
	}
	return d, nil
}

// --- Sensor Reading Operations ---

const readingColumns = `id, device_id, soil_moisture, soil_temperature, air_temperature,
	air_humidity, light_intensity, raw_data, recorded_at`

// ApplyReading stores a reading and updates the device's last-seen and, when
// battery is non-nil, battery level in a single transaction.
func (db *DB) ApplyReading(ctx context.Context, r *SensorReading, battery *int) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO sensor_readings
			(device_id, soil_moisture, soil_temperature, air_temperature, air_humidity, light_intensity, raw_data, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeviceID, r.SoilMoisture, r.SoilTemperature, r.AirTemperature, r.AirHumidity,
		r.LightIntensity, string(r.RawData), r.RecordedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE devices SET
			last_seen_at = ?,
			battery_level = COALESCE(?, battery_level),
			updated_at = ?
		WHERE id = ?`, r.RecordedAt.UTC(), battery, time.Now().UTC(), r.DeviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to update device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// GetReadings returns a device's readings, newest first, optionally bounded by time
func (db *DB) GetReadings(ctx context.Context, deviceID string, from, to *time.Time, limit int) ([]*SensorReading, error) {
	query := `SELECT ` + readingColumns + ` FROM sensor_readings WHERE device_id = ?`
	args := []any{deviceID}
	if from != nil {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UTC())
	}
	if to != nil {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*SensorReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// GetLatestFarmSoilReading returns the newest reading of the farm's first
// active soil sensor.
func (db *DB) GetLatestFarmSoilReading(ctx context.Context, farmID string) (*SensorReading, error) {
	var deviceID string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id FROM devices WHERE farm_id = ? AND device_type = ? AND status = ?
		ORDER BY created_at, rowid LIMIT 1`, farmID, string(DeviceTypeSoilSensor), string(DeviceActive)).
		Scan(&deviceID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	row := db.conn.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM sensor_readings
		WHERE device_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, deviceID)
	r, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// GetDeviceStats aggregates a device's readings recorded since the given time
func (db *DB) GetDeviceStats(ctx context.Context, deviceID string, since time.Time) (*DeviceStats, error) {
	stats := &DeviceStats{DeviceID: deviceID}
	var avgMoisture, minMoisture, maxMoisture, avgAir sql.NullFloat64
	var last sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(soil_moisture), MIN(soil_moisture), MAX(soil_moisture),
			AVG(air_temperature), MAX(recorded_at)
		FROM sensor_readings WHERE device_id = ? AND recorded_at >= ?`, deviceID, since.UTC()).
		Scan(&stats.ReadingCount, &avgMoisture, &minMoisture, &maxMoisture, &avgAir, &last)
	if err != nil {
		return nil, err
	}
	stats.AvgSoilMoisture = floatPtr(avgMoisture)
	stats.MinSoilMoisture = floatPtr(minMoisture)
	stats.MaxSoilMoisture = floatPtr(maxMoisture)
	stats.AvgAirTemp = floatPtr(avgAir)
	if last.Valid {
		// MAX() loses the column type, so the driver hands back text
		if t, err := parseSQLiteTime(last.String); err == nil {
			stats.LastReadingAt = &t
		}
	}
	return stats, nil
}

func scanReading(s rowScanner) (*SensorReading, error) {
	r := &SensorReading{}
	var soilMoisture, soilTemp, airTemp, airHumidity, light sql.NullFloat64
	var raw string
	err := s.Scan(&r.ID, &r.DeviceID, &soilMoisture, &soilTemp, &airTemp, &airHumidity, &light, &raw, &r.RecordedAt)
	if err != nil {
		return nil, err
	}
	r.SoilMoisture = floatPtr(soilMoisture)
	r.SoilTemperature = floatPtr(soilTemp)
	r.AirTemperature = floatPtr(airTemp)
	r.AirHumidity = floatPtr(airHumidity)
	r.LightIntensity = floatPtr(light)
	r.RawData = json.RawMessage(raw)
	return r, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
