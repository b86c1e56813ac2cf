package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agsys/smart-irrigation/internal/irrigation"
	"github.com/agsys/smart-irrigation/internal/messaging"
	"github.com/agsys/smart-irrigation/internal/notify"
	"github.com/agsys/smart-irrigation/internal/registry"
	"github.com/agsys/smart-irrigation/internal/satellite"
	"github.com/agsys/smart-irrigation/internal/schedule"
	"github.com/agsys/smart-irrigation/internal/storage"
)

type fixture struct {
	db   *storage.DB
	pub  *messaging.MockPublisher
	ndvi *satellite.MockNDVISource
	hub  *Hub
	srv  *Server
}

func setup(t *testing.T) *fixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "agri-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	db, err := storage.Open(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		os.Remove(tmpFile.Name())
	})

	ctx := context.Background()
	require.NoError(t, db.CreateFarm(ctx, &storage.Farm{ID: "farm-1", FarmerID: "farmer-1", Name: "North", Latitude: -1.29, Longitude: 36.81, AreaHectares: 3}))
	require.NoError(t, db.CreateCrop(ctx, &storage.Crop{ID: "crop-1", FarmID: "farm-1", CropType: "maize", AreaHectares: 2}))
	require.NoError(t, db.CreateDevice(ctx, &storage.Device{
		ID: "pump-1", HardwareID: "PUMP-00000001", FarmID: "farm-1",
		DeviceType: storage.DeviceTypeWaterPump, Name: "Pump", Status: storage.DeviceActive,
	}))
	require.NoError(t, db.CreateDevice(ctx, &storage.Device{
		ID: "soil-1", HardwareID: "SOIL-00000001", FarmID: "farm-1",
		DeviceType: storage.DeviceTypeSoilSensor, Name: "Soil sensor", Status: storage.DeviceActive,
	}))

	ctrl := gomock.NewController(t)
	f := &fixture{
		db:   db,
		pub:  messaging.NewMockPublisher(ctrl),
		ndvi: satellite.NewMockNDVISource(ctrl),
		hub:  NewHub(),
	}

	dispatcher := messaging.NewDispatcher(f.pub, messaging.DefaultTopics())
	sink := notify.NewSink(db, f.hub)
	f.srv = NewServer(DefaultConfig(), Deps{
		Store:         db,
		Devices:       registry.New(db),
		Commands:      dispatcher,
		Recommender:   irrigation.NewService(db, nil),
		Schedules:     schedule.NewManager(db, nil, dispatcher, sink),
		Health:        satellite.NewMonitor(db, f.ndvi, nil, satellite.DefaultConfig()),
		Notifications: sink,
	}, f.hub)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodOptions, "/api/schedules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateFarmAndCrop(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/farms", map[string]any{
		"farmerId":     "farmer-9",
		"name":         "  Hill Plot ",
		"latitude":     10.5,
		"longitude":    76.2,
		"areaHectares": 1.5,
		"boundary":     json.RawMessage(`{"type":"Polygon","coordinates":[[[76.2,10.5],[76.21,10.5],[76.21,10.51],[76.2,10.5]]]}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	farm := decode[storage.Farm](t, rec)
	assert.Equal(t, "Hill Plot", farm.Name)
	assert.NotEmpty(t, farm.ID)

	rec = f.do(t, http.MethodPost, "/api/farms/"+farm.ID+"/crops", map[string]any{"cropType": " Rice ", "areaHectares": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	crop := decode[storage.Crop](t, rec)
	assert.Equal(t, "rice", crop.CropType)
	assert.Equal(t, storage.CropActive, crop.Status)

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"missing name", "/api/farms", map[string]any{"farmerId": "x"}, http.StatusBadRequest},
		{"bad latitude", "/api/farms", map[string]any{"farmerId": "x", "name": "y", "latitude": 91, "longitude": 10}, http.StatusBadRequest},
		{"missing coordinates", "/api/farms", map[string]any{"farmerId": "x", "name": "y"}, http.StatusBadRequest},
		{"half coordinates", "/api/farms", map[string]any{"farmerId": "x", "name": "y", "latitude": 10}, http.StatusBadRequest},
		{"bad boundary", "/api/farms", map[string]any{"farmerId": "x", "name": "y", "boundary": map[string]any{"type": "Point", "coordinates": []float64{1, 2}}}, http.StatusBadRequest},
		{"malformed json", "/api/farms", `{"farmerId":`, http.StatusBadRequest},
		{"crop on unknown farm", "/api/farms/nope/crops", map[string]any{"cropType": "rice"}, http.StatusNotFound},
		{"crop without type", "/api/farms/farm-1/crops", map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}
}

func TestCreateFarmFromBoundary(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/farms", map[string]any{
		"farmerId": "farmer-9",
		"name":     "Square",
		"boundary": json.RawMessage(`{"type":"Polygon","coordinates":[[[36,-1.3],[36.02,-1.3],[36.02,-1.28],[36,-1.28],[36,-1.3]]]}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	farm := decode[storage.Farm](t, rec)
	assert.InDelta(t, -1.29, farm.Latitude, 1e-6)
	assert.InDelta(t, 36.01, farm.Longitude, 1e-6)

	stored, err := f.db.GetFarm(context.Background(), farm.ID)
	require.NoError(t, err)
	assert.InDelta(t, 36.01, stored.Longitude, 1e-6)
}

func TestFarmDevices(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/api/farms/farm-1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	devices := decode[[]storage.Device](t, rec)
	require.Len(t, devices, 2)
	assert.Equal(t, "PUMP-00000001", devices[0].HardwareID)
	assert.Equal(t, "SOIL-00000001", devices[1].HardwareID)

	require.NoError(t, f.db.CreateFarm(context.Background(), &storage.Farm{ID: "farm-2", FarmerID: "farmer-1", Name: "Empty"}))
	rec = f.do(t, http.MethodGet, "/api/farms/farm-2/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = f.do(t, http.MethodGet, "/api/farms/nope/devices", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceEndpoints(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/devices/register", map[string]any{
		"farmId": "farm-1", "deviceId": "VALVE-0000001", "deviceType": "valve",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	device := decode[storage.Device](t, rec)
	assert.Equal(t, "VALVE-0000001", device.Name)

	registerErrors := []struct {
		name string
		body map[string]any
		code int
	}{
		{"duplicate", map[string]any{"farmId": "farm-1", "deviceId": "VALVE-0000001", "deviceType": "valve"}, http.StatusConflict},
		{"short id", map[string]any{"farmId": "farm-1", "deviceId": "V1", "deviceType": "valve"}, http.StatusBadRequest},
		{"unknown farm", map[string]any{"farmId": "nope", "deviceId": "VALVE-0000002", "deviceType": "valve"}, http.StatusNotFound},
	}
	for _, tt := range registerErrors {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/devices/register", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodGet, "/api/devices/"+device.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, got, "device")
	assert.Contains(t, got, "stats")

	rec = f.do(t, http.MethodPut, "/api/devices/"+device.ID+"/status", map[string]any{"status": "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, storage.DeviceMaintenance, decode[storage.Device](t, rec).Status)

	rec = f.do(t, http.MethodPut, "/api/devices/"+device.ID+"/status", map[string]any{"status": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/devices/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadingsQuery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		moisture := 40.0 + float64(i)
		_, err := f.db.ApplyReading(ctx, &storage.SensorReading{
			DeviceID:     "soil-1",
			SoilMoisture: &moisture,
			RawData:      json.RawMessage(`{}`),
			RecordedAt:   base.Add(time.Duration(i) * time.Hour),
		}, nil)
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/api/devices/soil-1/readings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.SensorReading](t, rec), 3)

	rec = f.do(t, http.MethodGet, "/api/devices/soil-1/readings?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.SensorReading](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/devices/soil-1/readings?limit=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.SensorReading](t, rec), 3)

	rec = f.do(t, http.MethodGet, "/api/devices/soil-1/readings?startDate=2026-05-01T08:30:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.SensorReading](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/devices/pump-1/readings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	for _, q := range []string{"limit=0", "limit=abc", "startDate=yesterday"} {
		rec = f.do(t, http.MethodGet, "/api/devices/soil-1/readings?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = f.do(t, http.MethodGet, "/api/devices/missing/readings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendCommand(t *testing.T) {
	f := setup(t)

	f.pub.EXPECT().
		PublishJSON("farm/farm-1/device/PUMP-00000001/command", gomock.Any()).
		Return(messaging.Result{Outcome: messaging.OutcomeDelivered})

	rec := f.do(t, http.MethodPost, "/api/devices/pump-1/command", map[string]any{
		"action": "calibrate",
		"params": map[string]any{"offset": 2},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"outcome":"delivered"`)

	rec = f.do(t, http.MethodPost, "/api/devices/pump-1/command", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.pub.EXPECT().PublishJSON(gomock.Any(), gomock.Any()).
		Return(messaging.Result{Outcome: messaging.OutcomeFailed, Reason: "not connected"})
	rec = f.do(t, http.MethodPost, "/api/devices/pump-1/command", map[string]any{"action": "stop"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecommendations(t *testing.T) {
	f := setup(t)

	moisture := 20.0
	_, err := f.db.ApplyReading(context.Background(), &storage.SensorReading{
		DeviceID: "soil-1", SoilMoisture: &moisture, RawData: json.RawMessage(`{}`), RecordedAt: time.Now().UTC(),
	}, nil)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/farms/farm-1/recommendations", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		FarmID          string                      `json:"farmId"`
		Recommendations []irrigation.Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "farm-1", body.FarmID)
	require.Len(t, body.Recommendations, 1)
	assert.Equal(t, "crop-1", body.Recommendations[0].CropID)
	assert.Equal(t, "sensor", body.Recommendations[0].MoistureSource)

	rec = f.do(t, http.MethodGet, "/api/farms/nope/recommendations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleEndpoints(t *testing.T) {
	f := setup(t)

	when := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"farmId":          "farm-1",
		"cropId":          "crop-1",
		"deviceId":        "pump-1",
		"scheduledTime":   when,
		"durationMinutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sched := decode[storage.IrrigationSchedule](t, rec)
	assert.Equal(t, storage.ScheduleScheduled, sched.Status)
	assert.Equal(t, storage.TriggerManual, sched.TriggeredBy)

	f.pub.EXPECT().
		PublishJSON("farm/farm-1/device/PUMP-00000001/command", gomock.Any()).
		Return(messaging.Result{Outcome: messaging.OutcomeDelivered})

	rec = f.do(t, http.MethodPost, "/api/schedules/"+sched.ID+"/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var triggered struct {
		Schedule storage.IrrigationSchedule `json:"schedule"`
		Command  map[string]any             `json:"command"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &triggered))
	assert.Equal(t, storage.ScheduleInProgress, triggered.Schedule.Status)
	assert.Equal(t, "delivered", triggered.Command["outcome"])

	rec = f.do(t, http.MethodPost, "/api/schedules/"+sched.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/schedules/"+sched.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.ScheduleInProgress, decode[storage.IrrigationSchedule](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/schedules", map[string]any{"farmId": "farm-1", "durationMinutes": 15})
	require.Equal(t, http.StatusCreated, rec.Code)
	pending := decode[storage.IrrigationSchedule](t, rec)
	assert.Equal(t, storage.SchedulePending, pending.Status)

	rec = f.do(t, http.MethodPost, "/api/schedules/"+pending.ID+"/confirm", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/schedules/"+pending.ID+"/confirm", map[string]any{"scheduledTime": when})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.ScheduleScheduled, decode[storage.IrrigationSchedule](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/schedules/"+pending.ID+"/trigger", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "no device")

	rec = f.do(t, http.MethodPost, "/api/schedules/"+pending.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.ScheduleCancelled, decode[storage.IrrigationSchedule](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/farms/farm-1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.IrrigationSchedule](t, rec), 2)

	errorCases := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"unknown schedule", http.MethodGet, "/api/schedules/nope", nil, http.StatusNotFound},
		{"unknown farm", http.MethodPost, "/api/schedules", map[string]any{"farmId": "nope", "durationMinutes": 10}, http.StatusNotFound},
		{"zero duration", http.MethodPost, "/api/schedules", map[string]any{"farmId": "farm-1", "durationMinutes": 0}, http.StatusBadRequest},
		{"unknown crop", http.MethodPost, "/api/schedules", map[string]any{"farmId": "farm-1", "cropId": "nope", "durationMinutes": 10}, http.StatusBadRequest},
		{"trigger unknown", http.MethodPost, "/api/schedules/nope/trigger", nil, http.StatusNotFound},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestRefreshCropHealth(t *testing.T) {
	f := setup(t)

	f.ndvi.EXPECT().Series(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]satellite.NDVISample{{Mean: 0.7}}, nil)

	rec := f.do(t, http.MethodPost, "/api/crops/crop-1/health/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h := decode[storage.CropHealth](t, rec)
	assert.Equal(t, 85, h.HealthScore)
	assert.Equal(t, storage.HealthExcellent, h.HealthStatus)

	f.ndvi.EXPECT().Series(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	rec = f.do(t, http.MethodPost, "/api/crops/crop-1/health/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/crops/nope/health/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsEndpoint(t *testing.T) {
	f := setup(t)

	sink := notify.NewSink(f.db, nil)
	require.NoError(t, sink.Notify(context.Background(), &storage.Notification{
		FarmerID: "farmer-1", FarmID: "farm-1", Type: "irrigation", Title: "Irrigation Completed", Message: "done",
	}))

	rec := f.do(t, http.MethodGet, "/api/farms/farm-1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]storage.Notification](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Irrigation Completed", list[0].Title)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(EventSchedule, map[string]string{"id": "sched-1", "status": "completed"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, EventSchedule, ev.Type)
	assert.Equal(t, "completed", ev.Data["status"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}
