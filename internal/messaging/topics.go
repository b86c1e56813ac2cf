package messaging

import "fmt"

// Topics holds the topic conventions shared with field firmware
type Topics struct {
	Namespace string `yaml:"namespace"`
	AckFilter string `yaml:"ack_filter"`
}

// DefaultTopics returns the conventions deployed devices use
func DefaultTopics() Topics {
	return Topics{
		Namespace: "farm",
		AckFilter: "smart-agri/irrigation/+/ack",
	}
}

// Telemetry is the subscription filter for sensor readings
func (t Topics) Telemetry() string {
	return fmt.Sprintf("%s/+/sensor/#", t.Namespace)
}

// Status is the subscription filter for device status messages
func (t Topics) Status() string {
	return fmt.Sprintf("%s/+/status/#", t.Namespace)
}

// Command is the per-device command topic
func (t Topics) Command(farmID, hardwareID string) string {
	return fmt.Sprintf("%s/%s/device/%s/command", t.Namespace, farmID, hardwareID)
}

// Ack is the subscription filter for irrigation acknowledgments
func (t Topics) Ack() string {
	return t.AckFilter
}
