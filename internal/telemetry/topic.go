// Package telemetry turns inbound MQTT topic and payload pairs into
// normalized sensor readings and device state updates.
package telemetry

import (
	"fmt"
	"strings"
)

// Category is the third topic segment
type Category string

const (
	CategorySensor Category = "sensor"
	CategoryStatus Category = "status"
)

// Topic is a parsed telemetry topic:
// <namespace>/<farmId>/<category>/<hardwareId>[/<subpath>]
type Topic struct {
	Namespace  string
	FarmID     string
	Category   Category
	HardwareID string
	Subpath    string
}

// ParseTopic splits a telemetry topic into its segments
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return Topic{}, fmt.Errorf("%w: %q has %d segments", ErrMalformedTopic, topic, len(parts))
	}
	if parts[1] == "" || parts[3] == "" {
		return Topic{}, fmt.Errorf("%w: %q has an empty farm or device segment", ErrMalformedTopic, topic)
	}

	return Topic{
		Namespace:  parts[0],
		FarmID:     parts[1],
		Category:   Category(parts[2]),
		HardwareID: parts[3],
		Subpath:    strings.Join(parts[4:], "/"),
	}, nil
}
