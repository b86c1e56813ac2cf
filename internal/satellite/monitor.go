package satellite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/agsys/smart-irrigation/internal/irrigation"
	"github.com/agsys/smart-irrigation/internal/storage"
	"github.com/agsys/smart-irrigation/internal/weather"
)

//go:generate mockgen -destination=mock_satellite.go -package=satellite github.com/agsys/smart-irrigation/internal/satellite NDVISource,WeatherSource

// Store is the persistence the monitor needs
type Store interface {
	GetFarm(ctx context.Context, id string) (*storage.Farm, error)
	GetAllActiveCrops(ctx context.Context) ([]*storage.Crop, error)
	InsertCropHealth(ctx context.Context, h *storage.CropHealth) (int64, error)
}

// NDVISource returns NDVI statistics for an area
type NDVISource interface {
	Series(ctx context.Context, area orb.Geometry, from, to time.Time) ([]NDVISample, error)
}

// WeatherSource supplies current conditions
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Current, error)
}

// Monitor turns NDVI imagery into crop health snapshots
type Monitor struct {
	store      Store
	ndvi       NDVISource
	weather    WeatherSource
	lookback   time.Duration
	dataSource string
	workers    int
	now        func() time.Time
	onUpdate   func(*storage.CropHealth)
}

// NewMonitor creates a crop health monitor. weather may be nil.
func NewMonitor(store Store, ndvi NDVISource, wx WeatherSource, config Config) *Monitor {
	if config.Lookback <= 0 {
		config.Lookback = 7 * 24 * time.Hour
	}
	if config.DataSource == "" {
		config.DataSource = "ndvi-processor"
	}
	return &Monitor{
		store:      store,
		ndvi:       ndvi,
		weather:    wx,
		lookback:   config.Lookback,
		dataSource: config.DataSource,
		workers:    4,
		now:        time.Now,
	}
}

// OnUpdate registers a callback for every stored snapshot
func (m *Monitor) OnUpdate(fn func(*storage.CropHealth)) {
	m.onUpdate = fn
}

// UpdateCropHealth samples NDVI over the lookback window, scores the latest
// mean and stores a new snapshot. Soil moisture is left empty; it comes from
// sensors.
func (m *Monitor) UpdateCropHealth(ctx context.Context, crop *storage.Crop) (*storage.CropHealth, error) {
	farm, err := m.store.GetFarm(ctx, crop.FarmID)
	if err != nil {
		return nil, fmt.Errorf("failed to load farm %s: %w", crop.FarmID, err)
	}

	area, err := FarmPolygon(farm)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	samples, err := m.ndvi.Series(ctx, area, now.Add(-m.lookback), now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch NDVI: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNoImagery
	}
	latest := samples[len(samples)-1]

	h := &storage.CropHealth{
		CropID:     crop.ID,
		NDVIValue:  latest.Mean,
		DataSource: m.dataSource,
		RecordedAt: now,
	}
	if latest.Source != "" {
		h.DataSource = latest.Source
	}

	if m.weather != nil {
		current, err := m.weather.Current(ctx, farm.Latitude, farm.Longitude)
		if err != nil {
			log.Printf("Weather unavailable for crop %s: %v", crop.ID, err)
		} else {
			h.Temperature = &current.Temperature
			h.Humidity = &current.Humidity
		}
	}

	h.HealthScore = irrigation.HealthScore(h.NDVIValue)
	h.HealthStatus = irrigation.StatusForScore(h.HealthScore)
	h.Recommendations = irrigation.Advice(h.HealthScore, h.NDVIValue, h.MoistureLevel, h.Temperature)

	id, err := m.store.InsertCropHealth(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to store crop health: %w", err)
	}
	h.ID = id

	log.Printf("Crop %s health: ndvi=%.3f score=%d (%s)", crop.ID, h.NDVIValue, h.HealthScore, h.HealthStatus)
	if m.onUpdate != nil {
		m.onUpdate(h)
	}
	return h, nil
}

// RefreshAll updates every active crop and returns how many snapshots were
// stored. Per-crop failures are logged and skipped.
func (m *Monitor) RefreshAll(ctx context.Context) (int, error) {
	crops, err := m.store.GetAllActiveCrops(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active crops: %w", err)
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, crop := range crops {
		g.Go(func() error {
			if _, err := m.UpdateCropHealth(gctx, crop); err != nil {
				if !errors.Is(err, ErrNoImagery) {
					log.Printf("Failed to update health for crop %s: %v", crop.ID, err)
				}
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	g.Wait()

	return int(updated.Load()), nil
}
