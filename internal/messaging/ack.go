package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agsys/smart-irrigation/internal/storage"
)

var ErrInvalidAck = errors.New("invalid acknowledgment")

// Completer applies a completion transition to a schedule
type Completer interface {
	Complete(ctx context.Context, scheduleID string, status storage.ScheduleStatus, actualVolumeLiters *float64) error
}

// Ack is the acknowledgment payload devices publish after irrigating
type Ack struct {
	ScheduleID         string                 `json:"scheduleId"`
	Status             storage.ScheduleStatus `json:"status"`
	ActualVolumeLiters *float64               `json:"actualVolumeLiters,omitempty"`
}

// DecodeAck parses and validates an acknowledgment payload
func DecodeAck(payload []byte) (*Ack, error) {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAck, err)
	}
	if ack.ScheduleID == "" {
		return nil, fmt.Errorf("%w: missing scheduleId", ErrInvalidAck)
	}
	if ack.Status != storage.ScheduleCompleted && ack.Status != storage.ScheduleFailed {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidAck, ack.Status)
	}
	return &ack, nil
}

// AckListener forwards acknowledgments to the schedule state machine
type AckListener struct {
	completer Completer
	timeout   time.Duration
}

// NewAckListener creates an ack listener
func NewAckListener(completer Completer) *AckListener {
	return &AckListener{completer: completer, timeout: 10 * time.Second}
}

// HandleMessage is the MQTT entry point. Errors are logged, never returned.
func (l *AckListener) HandleMessage(topic string, payload []byte) {
	ack, err := DecodeAck(payload)
	if err != nil {
		log.Printf("Dropping ack on %s: %v", topic, err)
		return
	}

	log.Printf("Irrigation acknowledgment from %s: schedule %s %s", ackSource(topic), ack.ScheduleID, ack.Status)

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.completer.Complete(ctx, ack.ScheduleID, ack.Status, ack.ActualVolumeLiters); err != nil {
		log.Printf("Failed to complete schedule %s: %v", ack.ScheduleID, err)
	}
}

// ackSource returns the device segment of smart-agri/irrigation/<id>/ack
func ackSource(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 {
		return parts[2]
	}
	return topic
}
