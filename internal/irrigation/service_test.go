package irrigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agsys/smart-irrigation/internal/storage"
	"github.com/agsys/smart-irrigation/internal/weather"
)

var testNow = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MockStore, *MockForecastProvider) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	wx := NewMockForecastProvider(ctrl)
	s := NewService(store, wx)
	s.now = func() time.Time { return testNow }
	return s, store, wx
}

func testFarm() *storage.Farm {
	return &storage.Farm{ID: "farm-1", FarmerID: "farmer-1", Latitude: 18.5, Longitude: 73.8}
}

func rainyForecast() *weather.Forecast {
	return &weather.Forecast{Buckets: []weather.Bucket{
		{Time: testNow.Add(3 * time.Hour), PrecipitationMM: 1},
		{Time: testNow.Add(12 * time.Hour), PrecipitationMM: 7.5},
	}}
}

func TestRecommendRanksAndFilters(t *testing.T) {
	s, store, wx := newTestService(t)
	ctx := context.Background()

	crops := []*storage.Crop{
		{ID: "wheat-1", CropType: "wheat", AreaHectares: 2},
		{ID: "rice-1", CropType: "Rice"},
		{ID: "maize-1", CropType: "maize"},
	}

	store.EXPECT().GetFarm(gomock.Any(), "farm-1").Return(testFarm(), nil)
	store.EXPECT().GetActiveCrops(gomock.Any(), "farm-1").Return(crops, nil)
	wx.EXPECT().Forecast(gomock.Any(), 18.5, 73.8).Return(&weather.Forecast{}, nil)
	store.EXPECT().GetLatestFarmSoilReading(gomock.Any(), "farm-1").Return(nil, storage.ErrNotFound)
	store.EXPECT().GetLatestCropHealth(gomock.Any(), "wheat-1").
		Return(&storage.CropHealth{HealthStatus: storage.HealthHealthy, MoistureLevel: moisture(65)}, nil)
	store.EXPECT().GetLatestCropHealth(gomock.Any(), "rice-1").
		Return(&storage.CropHealth{HealthStatus: storage.HealthModerate, MoistureLevel: moisture(12)}, nil)
	store.EXPECT().GetLatestCropHealth(gomock.Any(), "maize-1").
		Return(&storage.CropHealth{HealthStatus: storage.HealthHealthy, MoistureLevel: moisture(90)}, nil)

	recs, err := s.Recommend(ctx, "farm-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "rice-1", recs[0].CropID)
	assert.Equal(t, UrgencyCritical, recs[0].Urgency)
	assert.Equal(t, "satellite", recs[0].MoistureSource)
	assert.Equal(t, 1200.0, recs[0].EstimatedDailyLiters)

	assert.Equal(t, "wheat-1", recs[1].CropID)
	assert.Equal(t, UrgencyLow, recs[1].Urgency)
	assert.Equal(t, "Scheduled maintenance irrigation", recs[1].Reason)
	assert.Equal(t, "No significant rain expected", recs[1].WeatherForecast)
	assert.Equal(t, 900.0, recs[1].EstimatedDailyLiters)
}

func TestRecommendPrefersSensorMoisture(t *testing.T) {
	s, store, wx := newTestService(t)

	store.EXPECT().GetFarm(gomock.Any(), "farm-1").Return(testFarm(), nil)
	store.EXPECT().GetActiveCrops(gomock.Any(), "farm-1").Return([]*storage.Crop{{ID: "cotton-1", CropType: "cotton"}}, nil)
	wx.EXPECT().Forecast(gomock.Any(), gomock.Any(), gomock.Any()).Return(rainyForecast(), nil)
	store.EXPECT().GetLatestFarmSoilReading(gomock.Any(), "farm-1").
		Return(&storage.SensorReading{SoilMoisture: moisture(30)}, nil)
	store.EXPECT().GetLatestCropHealth(gomock.Any(), "cotton-1").
		Return(&storage.CropHealth{MoistureLevel: moisture(70)}, nil)

	recs, err := s.Recommend(context.Background(), "farm-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, UrgencyMedium, recs[0].Urgency)
	assert.Equal(t, 23, recs[0].RecommendedDuration)
	assert.Equal(t, "sensor", recs[0].MoistureSource)
	assert.Equal(t, "Rain expected in next 24 hours", recs[0].WeatherForecast)
}

func TestRecommendDegradesOnProviderFailure(t *testing.T) {
	s, store, wx := newTestService(t)

	store.EXPECT().GetFarm(gomock.Any(), "farm-1").Return(testFarm(), nil)
	store.EXPECT().GetActiveCrops(gomock.Any(), "farm-1").Return([]*storage.Crop{{ID: "veg-1", CropType: "vegetables"}}, nil)
	wx.EXPECT().Forecast(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, weather.ErrUnavailable)
	store.EXPECT().GetLatestFarmSoilReading(gomock.Any(), "farm-1").Return(nil, errors.New("disk I/O error"))
	store.EXPECT().GetLatestCropHealth(gomock.Any(), "veg-1").Return(nil, errors.New("disk I/O error"))

	recs, err := s.Recommend(context.Background(), "farm-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, UrgencyLow, recs[0].Urgency)
	assert.Empty(t, recs[0].MoistureSource)
}

func TestRecommendUnknownFarm(t *testing.T) {
	s, store, _ := newTestService(t)

	store.EXPECT().GetFarm(gomock.Any(), "nope").Return(nil, storage.ErrNotFound)

	_, err := s.Recommend(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFarmNotFound)
}

func TestRecommendNoCrops(t *testing.T) {
	s, store, _ := newTestService(t)

	store.EXPECT().GetFarm(gomock.Any(), "farm-1").Return(testFarm(), nil)
	store.EXPECT().GetActiveCrops(gomock.Any(), "farm-1").Return(nil, nil)

	recs, err := s.Recommend(context.Background(), "farm-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCalculateIrrigationNeed(t *testing.T) {
	s, _, wx := newTestService(t)
	crop := &storage.Crop{ID: "sugarcane-1", CropType: "sugarcane"}

	wx.EXPECT().Forecast(gomock.Any(), 18.5, 73.8).Return(rainyForecast(), nil).Times(2)

	rec := s.CalculateIrrigationNeed(context.Background(), crop, testFarm(),
		&storage.CropHealth{HealthStatus: storage.HealthHealthy},
		&storage.SensorReading{SoilMoisture: moisture(60)})
	assert.Nil(t, rec, "low urgency with rain is suppressed")

	rec = s.CalculateIrrigationNeed(context.Background(), crop, testFarm(), nil,
		&storage.SensorReading{SoilMoisture: moisture(15)})
	require.NotNil(t, rec)
	assert.Equal(t, UrgencyCritical, rec.Urgency)
	assert.Equal(t, 60, rec.RecommendedDuration)
}

func TestRainExpectedWindow(t *testing.T) {
	f := &weather.Forecast{Buckets: []weather.Bucket{
		{Time: testNow.Add(25 * time.Hour), PrecipitationMM: 20},
		{Time: testNow.Add(24 * time.Hour), PrecipitationMM: 5},
	}}
	assert.False(t, f.RainExpected(testNow, 24*time.Hour))

	f.Buckets[1].PrecipitationMM = 5.1
	assert.True(t, f.RainExpected(testNow, 24*time.Hour))

	var none *weather.Forecast
	assert.False(t, none.RainExpected(testNow, 24*time.Hour))
}
