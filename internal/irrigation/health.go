package irrigation

import (
	"math"

	"github.com/agsys/smart-irrigation/internal/storage"
)

// HealthScore maps an NDVI value in [-1,1] onto a 0-100 score. The top band
// is not clamped, so values slightly above 100 are possible near x=1.
func HealthScore(ndvi float64) int {
	var score float64
	switch {
	case ndvi < 0:
		score = 0
	case ndvi < 0.2:
		score = ndvi * 100
	case ndvi < 0.4:
		score = 20 + (ndvi-0.2)*150
	case ndvi < 0.6:
		score = 50 + (ndvi-0.4)*150
	default:
		score = 80 + (ndvi-0.6)*50
	}
	return int(math.Round(score))
}

// StatusForScore bands a health score
func StatusForScore(score int) storage.HealthStatus {
	switch {
	case score >= 80:
		return storage.HealthExcellent
	case score >= 60:
		return storage.HealthHealthy
	case score >= 40:
		return storage.HealthModerate
	case score >= 20:
		return storage.HealthStressed
	default:
		return storage.HealthCritical
	}
}

// Advice returns agronomic recommendations for a health snapshot. moisture
// and temperature are optional.
func Advice(score int, ndvi float64, moisture, temperature *float64) []string {
	advice := []string{}

	switch {
	case ndvi < 0.3:
		advice = append(advice,
			"Crop shows signs of stress. Check for pest infestation or disease.",
			"Consider soil testing for nutrient deficiencies.")
	case ndvi < 0.5:
		advice = append(advice, "Moderate vegetation health. Ensure adequate water and nutrients.")
	}

	if moisture != nil {
		switch {
		case *moisture < 30:
			advice = append(advice, "Soil moisture is low. Schedule irrigation soon.")
		case *moisture > 80:
			advice = append(advice, "Soil moisture is high. Reduce irrigation to prevent waterlogging.")
		}
	}

	if temperature != nil {
		switch {
		case *temperature > 35:
			advice = append(advice,
				"High temperature detected. Consider increasing irrigation frequency.",
				"Apply mulching to retain soil moisture.")
		case *temperature < 10:
			advice = append(advice, "Low temperature detected. Monitor for frost damage.")
		}
	}

	if score < 40 {
		advice = append(advice, "Consider consulting an agricultural expert for detailed assessment.")
	}

	return advice
}
