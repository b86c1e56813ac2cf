package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Config holds weather provider configuration
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"-"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ForecastDays      int           `yaml:"forecast_days"`

	CurrentTTL  time.Duration `yaml:"-"`
	ForecastTTL time.Duration `yaml:"-"`
}

// DefaultConfig returns default weather configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.open-meteo.com/v1/forecast",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		ForecastDays:      2,
		CurrentTTL:        10 * time.Minute,
		ForecastTTL:       30 * time.Minute,
	}
}

// OpenMeteo is a Provider backed by the Open-Meteo forecast API
type OpenMeteo struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewOpenMeteo creates an Open-Meteo client
func NewOpenMeteo(config Config) *OpenMeteo {
	return &OpenMeteo{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		now:        time.Now,
	}
}

type currentResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		Rain        float64 `json:"rain"`
	} `json:"current"`
}

type hourlyResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Current returns current conditions at a location
func (o *OpenMeteo) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	params := o.baseParams(lat, lon)
	params.Set("current", "temperature_2m,relative_humidity_2m,rain")

	var resp currentResponse
	if err := o.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	condition := "Clear"
	if resp.Current.Rain > 0 {
		condition = "Rain"
	}

	return &Current{
		Temperature: resp.Current.Temperature,
		Humidity:    resp.Current.Humidity,
		RainMM:      resp.Current.Rain,
		Condition:   condition,
		ObservedAt:  o.now().UTC(),
	}, nil
}

// Forecast returns hourly precipitation folded into three-hour buckets
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	params := o.baseParams(lat, lon)
	params.Set("hourly", "precipitation")
	params.Set("forecast_days", strconv.Itoa(o.config.ForecastDays))

	var resp hourlyResponse
	if err := o.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Hourly.Time) != len(resp.Hourly.Precipitation) {
		return nil, fmt.Errorf("%w: hourly arrays differ in length", ErrUnavailable)
	}

	buckets, err := foldHourly(resp.Hourly.Time, resp.Hourly.Precipitation)
	if err != nil {
		return nil, err
	}

	return &Forecast{
		Latitude:  lat,
		Longitude: lon,
		Buckets:   buckets,
		FetchedAt: o.now().UTC(),
	}, nil
}

func (o *OpenMeteo) baseParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("timezone", "UTC")
	return params
}

func (o *OpenMeteo) get(ctx context.Context, params url.Values, dest any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode weather response: %w", err)
	}
	return nil
}

// foldHourly sums hourly precipitation into buckets aligned to 00:00, 03:00 ...
// UTC. Missing hourly values count as zero.
func foldHourly(times []string, precip []*float64) ([]Bucket, error) {
	var buckets []Bucket
	for i, ts := range times {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse forecast time %q: %w", ts, err)
		}
		start := t.Truncate(bucketSize)

		if n := len(buckets); n == 0 || !buckets[n-1].Time.Equal(start) {
			buckets = append(buckets, Bucket{Time: start})
		}
		if precip[i] != nil {
			buckets[len(buckets)-1].PrecipitationMM += *precip[i]
		}
	}
	return buckets, nil
}
