package schedule

import (
	"errors"
	"fmt"

	"github.com/agsys/smart-irrigation/internal/storage"
)

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrFarmNotFound      = errors.New("farm not found")
	ErrNoDevice          = errors.New("schedule has no device")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrInvalidTransition = errors.New("invalid schedule transition")
	ErrInvalidAckStatus  = errors.New("ack status must be completed or failed")
)

// TransitionError reports a transition rejected because the schedule was
// not in an allowed pre-state
type TransitionError struct {
	ScheduleID string
	From       storage.ScheduleStatus
	To         storage.ScheduleStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move schedule %s from %s to %s", e.ScheduleID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
