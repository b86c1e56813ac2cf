package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"

	"github.com/agsys/smart-irrigation/internal/messaging"
	"github.com/agsys/smart-irrigation/internal/registry"
	"github.com/agsys/smart-irrigation/internal/satellite"
	"github.com/agsys/smart-irrigation/internal/schedule"
	"github.com/agsys/smart-irrigation/internal/storage"
)

var errBadRequest = errors.New("bad request")

const (
	defaultReadingLimit = 100
	maxReadingLimit     = 1000
	statsWindow         = 24 * time.Hour
)

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// --- Farms and crops ---

type createFarmRequest struct {
	FarmerID     string          `json:"farmerId"`
	Name         string          `json:"name"`
	Latitude     *float64        `json:"latitude"`
	Longitude    *float64        `json:"longitude"`
	AreaHectares float64         `json:"areaHectares"`
	Boundary     json.RawMessage `json:"boundary,omitempty"`
}

func (s *Server) createFarm(w http.ResponseWriter, r *http.Request) {
	var req createFarmRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.FarmerID == "" || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "farmerId and name are required")
		return
	}

	farm := &storage.Farm{
		ID:           uuid.New().String(),
		FarmerID:     req.FarmerID,
		Name:         strings.TrimSpace(req.Name),
		AreaHectares: req.AreaHectares,
	}

	// Coordinates default to the boundary centroid
	var centre *orb.Point
	if len(req.Boundary) > 0 && string(req.Boundary) != "null" {
		farm.Boundary = string(req.Boundary)
		area, err := satellite.FarmPolygon(farm)
		if err != nil {
			respondErr(w, err)
			return
		}
		c := satellite.Centroid(area)
		centre = &c
	}

	switch {
	case req.Latitude != nil && req.Longitude != nil:
		farm.Latitude, farm.Longitude = *req.Latitude, *req.Longitude
	case req.Latitude == nil && req.Longitude == nil && centre != nil:
		farm.Latitude, farm.Longitude = centre.Lat(), centre.Lon()
	default:
		respondError(w, http.StatusBadRequest, "latitude and longitude are required without a boundary")
		return
	}
	if farm.Latitude < -90 || farm.Latitude > 90 || farm.Longitude < -180 || farm.Longitude > 180 {
		respondError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	if err := s.deps.Store.CreateFarm(r.Context(), farm); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, farm)
}

type createCropRequest struct {
	CropType     string  `json:"cropType"`
	Variety      string  `json:"variety,omitempty"`
	AreaHectares float64 `json:"areaHectares"`
}

func (s *Server) createCrop(w http.ResponseWriter, r *http.Request) {
	farmID := mux.Vars(r)["farmId"]

	var req createCropRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if strings.TrimSpace(req.CropType) == "" {
		respondError(w, http.StatusBadRequest, "cropType is required")
		return
	}
	if _, err := s.deps.Store.GetFarm(r.Context(), farmID); err != nil {
		respondErr(w, err)
		return
	}

	crop := &storage.Crop{
		ID:           uuid.New().String(),
		FarmID:       farmID,
		CropType:     strings.ToLower(strings.TrimSpace(req.CropType)),
		Variety:      req.Variety,
		AreaHectares: req.AreaHectares,
		Status:       storage.CropActive,
	}
	if err := s.deps.Store.CreateCrop(r.Context(), crop); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, crop)
}

func (s *Server) listFarmDevices(w http.ResponseWriter, r *http.Request) {
	farmID := mux.Vars(r)["farmId"]

	if _, err := s.deps.Store.GetFarm(r.Context(), farmID); err != nil {
		respondErr(w, err)
		return
	}
	devices, err := s.deps.Store.GetFarmDevices(r.Context(), farmID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if devices == nil {
		devices = []*storage.Device{}
	}
	respondJSON(w, http.StatusOK, devices)
}

func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	farmID := mux.Vars(r)["farmId"]

	recs, err := s.deps.Recommender.Recommend(r.Context(), farmID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"farmId":          farmID,
		"recommendations": recs,
	})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	farmID := mux.Vars(r)["farmId"]

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondErr(w, err)
		return
	}
	list, err := s.deps.Notifications.Recent(r.Context(), farmID, limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// --- Devices ---

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	device, err := s.deps.Devices.Register(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, device)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	device, err := s.deps.Devices.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	stats, err := s.deps.Devices.Stats(r.Context(), id, statsWindow)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"device": device,
		"stats":  stats,
	})
}

type statusRequest struct {
	Status storage.DeviceStatus `json:"status"`
}

func (s *Server) updateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if err := s.deps.Devices.SetStatus(r.Context(), id, req.Status); err != nil {
		respondErr(w, err)
		return
	}

	device, err := s.deps.Devices.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, device)
}

func (s *Server) getReadings(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	from, err := queryTime(r, "startDate")
	if err != nil {
		respondErr(w, err)
		return
	}
	to, err := queryTime(r, "endDate")
	if err != nil {
		respondErr(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultReadingLimit)
	if err != nil {
		respondErr(w, err)
		return
	}
	if limit > maxReadingLimit {
		limit = maxReadingLimit
	}

	if _, err := s.deps.Devices.Get(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}

	readings, err := s.deps.Store.GetReadings(r.Context(), id, from, to, limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	if readings == nil {
		readings = []*storage.SensorReading{}
	}
	respondJSON(w, http.StatusOK, readings)
}

type commandRequest struct {
	Action messaging.DeviceAction `json:"action"`
	Params map[string]any         `json:"params,omitempty"`
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req commandRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	device, err := s.deps.Devices.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}

	res, err := s.deps.Commands.SendDeviceCommand(device.FarmID, device.HardwareID, req.Action, req.Params)
	if err != nil {
		respondErr(w, err)
		return
	}

	code := http.StatusAccepted
	if !res.Attempted() {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"deviceId": device.ID,
		"action":   req.Action,
		"result":   res,
	})
}

// --- Schedules ---

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	sched, err := s.deps.Schedules.Create(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sched)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Schedules.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

type confirmRequest struct {
	ScheduledTime *time.Time `json:"scheduledTime"`
}

func (s *Server) confirmSchedule(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.ScheduledTime == nil {
		respondError(w, http.StatusBadRequest, "scheduledTime is required")
		return
	}

	sched, err := s.deps.Schedules.Confirm(r.Context(), mux.Vars(r)["id"], *req.ScheduledTime)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func (s *Server) triggerSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	res, err := s.deps.Schedules.Trigger(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	sched, err := s.deps.Schedules.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"schedule": sched,
		"command":  res,
	})
}

func (s *Server) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Schedules.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondErr(w, err)
		return
	}
	list, err := s.deps.Schedules.ListForFarm(r.Context(), mux.Vars(r)["farmId"], limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// --- Crop health ---

func (s *Server) refreshCropHealth(w http.ResponseWriter, r *http.Request) {
	crop, err := s.deps.Store.GetCrop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	h, err := s.deps.Health.UpdateCropHealth(r.Context(), crop)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

// --- Query helpers ---

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, key)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", errBadRequest, key)
}
