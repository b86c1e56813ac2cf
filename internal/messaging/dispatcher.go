package messaging

import (
	"errors"
	"fmt"
	"log"
	"time"
)

//go:generate mockgen -destination=mock_messaging.go -package=messaging github.com/agsys/smart-irrigation/internal/messaging Publisher,Completer

var ErrInvalidCommand = errors.New("invalid command")

// Publisher sends JSON messages
type Publisher interface {
	PublishJSON(topic string, v any) Result
}

// DeviceAction is an operator command accepted by SendDeviceCommand
type DeviceAction string

const (
	ActionStart     DeviceAction = "start"
	ActionStop      DeviceAction = "stop"
	ActionRestart   DeviceAction = "restart"
	ActionCalibrate DeviceAction = "calibrate"
)

// Valid reports whether a is a known action
func (a DeviceAction) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart, ActionCalibrate:
		return true
	}
	return false
}

// Dispatcher publishes commands to devices
type Dispatcher struct {
	pub    Publisher
	topics Topics
	now    func() time.Time
}

// NewDispatcher creates a command dispatcher
func NewDispatcher(pub Publisher, topics Topics) *Dispatcher {
	return &Dispatcher{pub: pub, topics: topics, now: time.Now}
}

// Publish sends {command, ...params} to the device's command topic.
// Keys in params override the command key.
func (d *Dispatcher) Publish(farmID, hardwareID, command string, params map[string]any) Result {
	msg := make(map[string]any, len(params)+1)
	msg["command"] = command
	for k, v := range params {
		msg[k] = v
	}

	topic := d.topics.Command(farmID, hardwareID)
	res := d.pub.PublishJSON(topic, msg)
	if res.Outcome == OutcomeDelivered {
		log.Printf("Command sent to %s: %s", topic, command)
	} else {
		log.Printf("Command %s to %s %s", command, topic, res)
	}
	return res
}

// SendDeviceCommand publishes an operator action with its parameters and a
// millisecond timestamp
func (d *Dispatcher) SendDeviceCommand(farmID, hardwareID string, action DeviceAction, params map[string]any) (Result, error) {
	if !action.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidCommand, action)
	}
	if params == nil {
		params = map[string]any{}
	}

	return d.Publish(farmID, hardwareID, string(action), map[string]any{
		"params":    params,
		"timestamp": d.now().UnixMilli(),
	}), nil
}
