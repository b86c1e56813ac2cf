package irrigation

import "strings"

// WaterRequirement is a daily water need in liters per hectare
type WaterRequirement struct {
	Min     float64 `json:"min"`
	Optimal float64 `json:"optimal"`
	Max     float64 `json:"max"`
}

var defaultWaterRequirement = WaterRequirement{Min: 350, Optimal: 500, Max: 700}

var cropWaterRequirements = map[string]WaterRequirement{
	"rice":       {Min: 800, Optimal: 1200, Max: 1500},
	"wheat":      {Min: 300, Optimal: 450, Max: 600},
	"cotton":     {Min: 400, Optimal: 600, Max: 800},
	"sugarcane":  {Min: 1000, Optimal: 1500, Max: 2000},
	"maize":      {Min: 400, Optimal: 550, Max: 700},
	"vegetables": {Min: 300, Optimal: 450, Max: 600},
}

// WaterRequirementFor looks up a crop type case-insensitively, falling back
// to the default bucket. Reporting only; urgency does not depend on it.
func WaterRequirementFor(cropType string) WaterRequirement {
	if req, ok := cropWaterRequirements[strings.ToLower(strings.TrimSpace(cropType))]; ok {
		return req
	}
	return defaultWaterRequirement
}
