// Package messaging owns the MQTT connection, topic conventions, outbound
// device commands and inbound irrigation acknowledgments.
package messaging

import "fmt"

// Outcome of a publish
type Outcome int

const (
	// OutcomeAttempted means the message was handed to the client but the
	// broker did not confirm it in time.
	OutcomeAttempted Outcome = iota
	// OutcomeDelivered means the broker acknowledged the publish (QoS 1 PUBACK).
	OutcomeDelivered
	// OutcomeFailed means the message never left this process.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAttempted:
		return "attempted"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is returned by every publish. Callers decide whether to retry.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Attempted reports whether the message reached the client at all
func (r Result) Attempted() bool {
	return r.Outcome != OutcomeFailed
}

func (r Result) String() string {
	if r.Reason == "" {
		return r.Outcome.String()
	}
	return fmt.Sprintf("%s: %s", r.Outcome, r.Reason)
}

func delivered() Result {
	return Result{Outcome: OutcomeDelivered}
}

func attempted(reason string) Result {
	return Result{Outcome: OutcomeAttempted, Reason: reason}
}

func failed(format string, args ...any) Result {
	return Result{Outcome: OutcomeFailed, Reason: fmt.Sprintf(format, args...)}
}
