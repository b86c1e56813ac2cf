// Package satellite estimates crop health from NDVI imagery statistics.
package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidBoundary = errors.New("invalid farm boundary")
	ErrNoImagery       = errors.New("no NDVI imagery for period")
)

// Config holds NDVI processor configuration
type Config struct {
	ProcessorURL      string        `yaml:"processor_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"-"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Lookback          time.Duration `yaml:"-"`
	RefreshInterval   time.Duration `yaml:"-"`
	DataSource        string        `yaml:"data_source"`
}

// DefaultConfig returns default satellite configuration
func DefaultConfig() Config {
	return Config{
		ProcessorURL:      "http://127.0.0.1:8000",
		Timeout:           25 * time.Second,
		RequestsPerSecond: 1,
		Lookback:          7 * 24 * time.Hour,
		RefreshInterval:   6 * time.Hour,
		DataSource:        "ndvi-processor",
	}
}

// NDVISample is zonal NDVI statistics for one acquisition
type NDVISample struct {
	Date   time.Time `json:"date"`
	Mean   float64   `json:"mean"`
	Min    float64   `json:"min,omitempty"`
	Max    float64   `json:"max,omitempty"`
	Cloud  float64   `json:"cloud,omitempty"` // percent
	Source string    `json:"source,omitempty"`
}

type ndviRequest struct {
	GeoJSON *geojson.Feature `json:"geojson"`
	From    string           `json:"from"`
	To      string           `json:"to"`
}

type ndviResponse struct {
	Samples []NDVISample `json:"samples"`
}

// NDVIClient calls an NDVI processor service
type NDVIClient struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNDVIClient creates an NDVI processor client
func NewNDVIClient(config Config) *NDVIClient {
	if config.ProcessorURL == "" || config.ProcessorURL == "local" {
		config.ProcessorURL = "http://127.0.0.1:8000"
	}
	return &NDVIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
}

// Series returns NDVI samples for an area between from and to, oldest first
func (c *NDVIClient) Series(ctx context.Context, area orb.Geometry, from, to time.Time) ([]NDVISample, error) {
	if area == nil {
		return nil, fmt.Errorf("%w: empty geometry", ErrInvalidBoundary)
	}

	body, err := json.Marshal(ndviRequest{
		GeoJSON: geojson.NewFeature(area),
		From:    from.UTC().Format("2006-01-02"),
		To:      to.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal processor req: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ProcessorURL+"/ndvi", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor call failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor non-2xx: %s, body: %s", resp.Status, string(data))
	}

	var out ndviResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode processor resp: %w", err)
	}

	sort.SliceStable(out.Samples, func(i, j int) bool {
		return out.Samples[i].Date.Before(out.Samples[j].Date)
	})
	return out.Samples, nil
}
