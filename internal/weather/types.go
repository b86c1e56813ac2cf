// Package weather provides current conditions and short-range precipitation
// forecasts for farm locations.
package weather

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("weather provider unavailable")

// Current is a point-in-time observation
type Current struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	RainMM      float64   `json:"rainMm"`
	Condition   string    `json:"condition"` // Rain or Clear
	ObservedAt  time.Time `json:"observedAt"`
}

const bucketSize = 3 * time.Hour

// Bucket is precipitation over a three-hour window starting at Time
type Bucket struct {
	Time            time.Time `json:"time"`
	PrecipitationMM float64   `json:"precipitationMm"`
}

// Forecast is a short-range precipitation forecast
type Forecast struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Buckets   []Bucket  `json:"buckets"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Provider is the weather collaborator
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (*Current, error)
	Forecast(ctx context.Context, lat, lon float64) (*Forecast, error)
}

// RainThresholdMM is the per-bucket precipitation above which rain counts
const RainThresholdMM = 5.0

// RainExpected reports whether any bucket that has not fully elapsed and
// starts within window of now carries more than RainThresholdMM. A nil
// forecast means no rain expected.
func (f *Forecast) RainExpected(now time.Time, window time.Duration) bool {
	if f == nil {
		return false
	}
	horizon := now.Add(window)
	for _, b := range f.Buckets {
		if !b.Time.Add(bucketSize).After(now) || b.Time.After(horizon) {
			continue
		}
		if b.PrecipitationMM > RainThresholdMM {
			return true
		}
	}
	return false
}
