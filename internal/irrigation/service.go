package irrigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agsys/smart-irrigation/internal/storage"
	"github.com/agsys/smart-irrigation/internal/weather"
)

//go:generate mockgen -destination=mock_irrigation.go -package=irrigation github.com/agsys/smart-irrigation/internal/irrigation Store,ForecastProvider

var ErrFarmNotFound = errors.New("farm not found")

const rainWindow = 24 * time.Hour

// Store is the persistence the decision engine reads from
type Store interface {
	GetFarm(ctx context.Context, id string) (*storage.Farm, error)
	GetActiveCrops(ctx context.Context, farmID string) ([]*storage.Crop, error)
	GetLatestCropHealth(ctx context.Context, cropID string) (*storage.CropHealth, error)
	GetLatestFarmSoilReading(ctx context.Context, farmID string) (*storage.SensorReading, error)
}

// ForecastProvider supplies short-range forecasts
type ForecastProvider interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

// Recommendation is one crop's irrigation recommendation
type Recommendation struct {
	CropID              string  `json:"cropId"`
	CropType            string  `json:"cropType"`
	RecommendedDuration int     `json:"recommendedDuration"`
	Urgency             Urgency `json:"urgency"`
	Reason              string  `json:"reason"`
	WeatherForecast     string  `json:"weatherForecast"`
	MoistureSource      string  `json:"moistureSource,omitempty"`

	// Reporting only
	WaterRequirement     WaterRequirement `json:"waterRequirement"`
	EstimatedDailyLiters float64          `json:"estimatedDailyLiters"`
}

// Service produces irrigation recommendations
type Service struct {
	store   Store
	weather ForecastProvider
	now     func() time.Time
}

// NewService creates a decision engine service
func NewService(store Store, wx ForecastProvider) *Service {
	return &Service{store: store, weather: wx, now: time.Now}
}

// CalculateIrrigationNeed fetches the farm's forecast and evaluates one crop.
// health and reading may be nil. It returns nil when no irrigation is needed.
func (s *Service) CalculateIrrigationNeed(ctx context.Context, crop *storage.Crop, farm *storage.Farm, health *storage.CropHealth, reading *storage.SensorReading) *Recommendation {
	return s.recommendCrop(crop, health, reading, s.forecast(ctx, farm))
}

// Recommend evaluates every active crop on the farm and returns the
// recommendations ranked by urgency
func (s *Service) Recommend(ctx context.Context, farmID string) ([]Recommendation, error) {
	farm, err := s.store.GetFarm(ctx, farmID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrFarmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load farm: %w", err)
	}

	crops, err := s.store.GetActiveCrops(ctx, farmID)
	if err != nil {
		return nil, fmt.Errorf("failed to load crops: %w", err)
	}
	if len(crops) == 0 {
		return []Recommendation{}, nil
	}

	var (
		forecast *weather.Forecast
		reading  *storage.SensorReading
		health   = make([]*storage.CropHealth, len(crops))
	)

	// Provider failures degrade to unknown instead of failing the pass
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		forecast = s.forecast(gctx, farm)
		return nil
	})
	g.Go(func() error {
		r, err := s.store.GetLatestFarmSoilReading(gctx, farmID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("Failed to load soil reading for farm %s: %v", farmID, err)
		}
		reading = r
		return nil
	})
	for i, crop := range crops {
		g.Go(func() error {
			h, err := s.store.GetLatestCropHealth(gctx, crop.ID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				log.Printf("Failed to load health for crop %s: %v", crop.ID, err)
			}
			health[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recs := []Recommendation{}
	for i, crop := range crops {
		if rec := s.recommendCrop(crop, health[i], reading, forecast); rec != nil {
			recs = append(recs, *rec)
		}
	}

	Rank(recs)
	return recs, nil
}

func (s *Service) recommendCrop(crop *storage.Crop, health *storage.CropHealth, reading *storage.SensorReading, forecast *weather.Forecast) *Recommendation {
	moisture, source := MoistureFrom(reading, health)
	rain := forecast.RainExpected(s.now(), rainWindow)

	in := Inputs{Moisture: moisture, RainExpected: rain}
	if health != nil {
		in.HealthStatus = health.HealthStatus
	}

	d := Evaluate(in)
	if d == nil {
		return nil
	}

	wx := "No significant rain expected"
	if rain {
		wx = "Rain expected in next 24 hours"
	}

	area := crop.AreaHectares
	if area <= 0 {
		area = 1
	}
	req := WaterRequirementFor(crop.CropType)

	return &Recommendation{
		CropID:               crop.ID,
		CropType:             crop.CropType,
		RecommendedDuration:  d.Duration,
		Urgency:              d.Urgency,
		Reason:               d.Reason,
		WeatherForecast:      wx,
		MoistureSource:       source,
		WaterRequirement:     req,
		EstimatedDailyLiters: req.Optimal * area,
	}
}

func (s *Service) forecast(ctx context.Context, farm *storage.Farm) *weather.Forecast {
	if s.weather == nil || farm == nil {
		return nil
	}
	f, err := s.weather.Forecast(ctx, farm.Latitude, farm.Longitude)
	if err != nil {
		log.Printf("Forecast unavailable for farm %s: %v", farm.ID, err)
		return nil
	}
	return f
}
