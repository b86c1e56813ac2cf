package weather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RequestsPerSecond = 100
	cfg.Burst = 10
	return cfg
}

func TestOpenMeteoCurrent(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"latitude":  r.URL.Query().Get("latitude"),
			"longitude": r.URL.Query().Get("longitude"),
			"current":   r.URL.Query().Get("current"),
		}
		w.Write([]byte(`{"current":{"temperature_2m":24.5,"relative_humidity_2m":61,"rain":0.4}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteo(testConfig(srv.URL))
	current, err := client.Current(context.Background(), -1.2921, 36.8219)
	require.NoError(t, err)

	assert.Equal(t, "-1.2921", gotQuery["latitude"])
	assert.Equal(t, "36.8219", gotQuery["longitude"])
	assert.Equal(t, "temperature_2m,relative_humidity_2m,rain", gotQuery["current"])
	assert.Equal(t, 24.5, current.Temperature)
	assert.Equal(t, 61.0, current.Humidity)
	assert.Equal(t, "Rain", current.Condition)
}

func TestOpenMeteoCurrentClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":30,"relative_humidity_2m":20,"rain":0}}`))
	}))
	defer srv.Close()

	current, err := NewOpenMeteo(testConfig(srv.URL)).Current(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Clear", current.Condition)
}

func TestOpenMeteoForecastBuckets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "precipitation", r.URL.Query().Get("hourly"))
		assert.Equal(t, "2", r.URL.Query().Get("forecast_days"))
		w.Write([]byte(`{"hourly":{
			"time":["2026-03-01T00:00","2026-03-01T01:00","2026-03-01T02:00","2026-03-01T03:00","2026-03-01T04:00"],
			"precipitation":[1.0,2.5,null,4.0,2.0]}}`))
	}))
	defer srv.Close()

	fc, err := NewOpenMeteo(testConfig(srv.URL)).Forecast(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, fc.Buckets, 2)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), fc.Buckets[0].Time)
	assert.InDelta(t, 3.5, fc.Buckets[0].PrecipitationMM, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), fc.Buckets[1].Time)
	assert.InDelta(t, 6.0, fc.Buckets[1].PrecipitationMM, 1e-9)
}

func TestOpenMeteoErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewOpenMeteo(testConfig(srv.URL)).Current(context.Background(), 0, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("mismatched arrays", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"hourly":{"time":["2026-03-01T00:00"],"precipitation":[]}}`))
		}))
		defer srv.Close()

		_, err := NewOpenMeteo(testConfig(srv.URL)).Forecast(context.Background(), 0, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("bad time", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"hourly":{"time":["yesterday"],"precipitation":[1]}}`))
		}))
		defer srv.Close()

		_, err := NewOpenMeteo(testConfig(srv.URL)).Forecast(context.Background(), 0, 0)
		assert.Error(t, err)
	})
}

func TestRainExpected(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		buckets []Bucket
		want    bool
	}{
		{"none", nil, false},
		{"at threshold", []Bucket{{Time: now.Add(3 * time.Hour), PrecipitationMM: 5}}, false},
		{"above threshold", []Bucket{{Time: now.Add(3 * time.Hour), PrecipitationMM: 5.1}}, true},
		{"at horizon", []Bucket{{Time: now.Add(24 * time.Hour), PrecipitationMM: 9}}, true},
		{"beyond horizon", []Bucket{{Time: now.Add(27 * time.Hour), PrecipitationMM: 9}}, false},
		{"elapsed bucket", []Bucket{{Time: now.Add(-6 * time.Hour), PrecipitationMM: 12}}, false},
		{"ends now", []Bucket{{Time: now.Add(-3 * time.Hour), PrecipitationMM: 12}}, false},
		{"straddles now", []Bucket{{Time: now.Add(-time.Hour), PrecipitationMM: 12}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &Forecast{Buckets: tt.buckets}
			assert.Equal(t, tt.want, fc.RainExpected(now, 24*time.Hour))
		})
	}

	var nilForecast *Forecast
	assert.False(t, nilForecast.RainExpected(now, 24*time.Hour))
}

func TestRainExpectedIgnoresEarlierToday(t *testing.T) {
	// Open-Meteo hourly series start at 00:00 UTC of the current day
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]string, 48)
	precip := make([]float64, 48)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04")
	}
	precip[2], precip[3], precip[4] = 4, 4, 4

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{"time": times, "precipitation": precip},
		})
	}))
	defer srv.Close()

	fc, err := NewOpenMeteo(testConfig(srv.URL)).Forecast(context.Background(), 18.5, 73.8)
	require.NoError(t, err)
	require.NotEmpty(t, fc.Buckets)
	require.Len(t, fc.Buckets, 16)
	assert.Equal(t, 8.0, fc.Buckets[1].PrecipitationMM)

	assert.False(t, fc.RainExpected(start.Add(20*time.Hour), 24*time.Hour))
	assert.True(t, fc.RainExpected(start.Add(time.Hour), 24*time.Hour))
}

// fakeKV is an in-memory stand-in for the redis client
type fakeKV struct {
	data   map[string]string
	getErr error
	sets   map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, sets: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.sets[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingProvider struct {
	current  int
	forecast int
	err      error
}

func (p *countingProvider) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	p.current++
	if p.err != nil {
		return nil, p.err
	}
	return &Current{Temperature: 21, Condition: "Clear"}, nil
}

func (p *countingProvider) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	p.forecast++
	if p.err != nil {
		return nil, p.err
	}
	return &Forecast{Latitude: lat, Longitude: lon, Buckets: []Bucket{{PrecipitationMM: 7}}}, nil
}

func TestCacheReadThrough(t *testing.T) {
	kv := newFakeKV()
	next := &countingProvider{}
	cache := newCache(next, kv, time.Minute, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := cache.Current(ctx, 1.234, 5.678)
		require.NoError(t, err)
		assert.Equal(t, 21.0, c.Temperature)

		fc, err := cache.Forecast(ctx, 1.234, 5.678)
		require.NoError(t, err)
		assert.Len(t, fc.Buckets, 1)
	}

	assert.Equal(t, 1, next.current)
	assert.Equal(t, 1, next.forecast)
	assert.Equal(t, time.Minute, kv.sets["weather:current:1.23,5.68"])
	assert.Equal(t, time.Hour, kv.sets["weather:forecast:1.23,5.68"])
}

func TestCacheFallsThroughOnRedisError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	next := &countingProvider{}
	cache := newCache(next, kv, time.Minute, time.Minute)

	_, err := cache.Current(context.Background(), 0, 0)
	require.NoError(t, err)
	_, err = cache.Current(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, next.current)
}

func TestCacheIgnoresCorruptEntry(t *testing.T) {
	kv := newFakeKV()
	kv.data["weather:current:0.00,0.00"] = "{not json"
	next := &countingProvider{}

	c, err := newCache(next, kv, time.Minute, time.Minute).Current(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, next.current)

	var stored Current
	require.NoError(t, json.Unmarshal([]byte(kv.data["weather:current:0.00,0.00"]), &stored))
	assert.Equal(t, c.Temperature, stored.Temperature)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	kv := newFakeKV()
	next := &countingProvider{err: ErrUnavailable}

	_, err := newCache(next, kv, time.Minute, time.Minute).Forecast(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, kv.data)
}
