// Package irrigation holds the irrigation decision engine: crop health
// scoring, the need calculation and farm-wide recommendation ranking.
package irrigation

import (
	"math"
	"sort"
	"strings"

	"github.com/agsys/smart-irrigation/internal/storage"
)

// Urgency is an ordinal irrigation need
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Rank orders urgencies, critical first
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	default:
		return 3
	}
}

const (
	defaultDuration = 30
	defaultReason   = "Scheduled maintenance irrigation"
)

// Inputs are the signals the need calculation works from
type Inputs struct {
	Moisture     *float64 // percent, nil when unknown
	RainExpected bool
	HealthStatus storage.HealthStatus // empty when unknown
}

// Decision is the outcome of a need calculation
type Decision struct {
	Urgency  Urgency
	Duration int // minutes
	Reason   string
}

type dropReason int

const (
	keep dropReason = iota
	dropSaturated
	dropRain
)

// draft is the recommendation in progress. Steps take and return it by value.
type draft struct {
	urgency  Urgency
	duration int
	reason   string
	dropped  dropReason
}

type step struct {
	name string
	fn   func(draft, Inputs) draft
}

// Rain adjustment runs before stress escalation so a stressed crop can
// rescue a low urgency the rain step dropped.
var steps = []step{
	{"bandByMoisture", bandByMoisture},
	{"adjustForRain", adjustForRain},
	{"escalateForStress", escalateForStress},
	{"finalize", finalize},
}

// Evaluate runs the need calculation. It returns nil when no irrigation
// should be recommended.
func Evaluate(in Inputs) *Decision {
	d := draft{urgency: UrgencyLow, duration: defaultDuration}
	for _, s := range steps {
		d = s.fn(d, in)
	}
	if d.dropped != keep {
		return nil
	}
	return &Decision{Urgency: d.urgency, Duration: d.duration, Reason: d.reason}
}

func bandByMoisture(d draft, in Inputs) draft {
	if in.Moisture == nil {
		return d
	}
	m := *in.Moisture
	switch {
	case m < 20:
		d.urgency, d.duration, d.reason = UrgencyCritical, 60, "Soil moisture critically low"
	case m < 35:
		d.urgency, d.duration, d.reason = UrgencyHigh, 45, "Soil moisture below optimal level"
	case m < 50:
		d.urgency, d.duration, d.reason = UrgencyMedium, 30, "Soil moisture approaching low threshold"
	case m > 80:
		d.dropped = dropSaturated
	}
	return d
}

func adjustForRain(d draft, in Inputs) draft {
	if d.dropped != keep || !in.RainExpected || d.urgency == UrgencyCritical {
		return d
	}
	switch d.urgency {
	case UrgencyHigh:
		d.urgency = UrgencyMedium
		d.reason += ". Rain expected - reduced urgency."
		d.duration = halve(d.duration)
	case UrgencyMedium:
		d.urgency = UrgencyLow
		d.reason += ". Consider waiting for rain."
		d.duration = halve(d.duration)
	default:
		d.dropped = dropRain
	}
	return d
}

func escalateForStress(d draft, in Inputs) draft {
	if d.dropped == dropSaturated {
		return d
	}
	if in.HealthStatus != storage.HealthStressed && in.HealthStatus != storage.HealthCritical {
		return d
	}
	if d.urgency == UrgencyLow {
		d.urgency = UrgencyMedium
		d.dropped = keep
	}
	d.reason += " Crop showing signs of stress."
	return d
}

func finalize(d draft, _ Inputs) draft {
	d.reason = strings.TrimSpace(d.reason)
	if d.reason == "" {
		d.reason = defaultReason
	}
	return d
}

func halve(minutes int) int {
	return int(math.Round(float64(minutes) * 0.5))
}

// MoistureFrom picks the sensor reading's soil moisture when present,
// otherwise the satellite-derived level. The second value names the source.
func MoistureFrom(reading *storage.SensorReading, health *storage.CropHealth) (*float64, string) {
	if reading != nil && reading.SoilMoisture != nil {
		return reading.SoilMoisture, "sensor"
	}
	if health != nil && health.MoistureLevel != nil {
		return health.MoistureLevel, "satellite"
	}
	return nil, ""
}

// Rank stable-sorts recommendations by urgency
func Rank(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Urgency.Rank() < recs[j].Urgency.Rank()
	})
}
