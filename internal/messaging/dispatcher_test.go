package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agsys/smart-irrigation/internal/storage"
)

func TestDispatcherPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	d := NewDispatcher(pub, DefaultTopics())

	pub.EXPECT().
		PublishJSON("farm/farm-1/device/PUMP-00000001/command", map[string]any{
			"command":         "start",
			"scheduleId":      "sched-1",
			"durationMinutes": 45,
		}).
		Return(Result{Outcome: OutcomeDelivered})

	res := d.Publish("farm-1", "PUMP-00000001", "start", map[string]any{
		"scheduleId":      "sched-1",
		"durationMinutes": 45,
	})
	assert.Equal(t, OutcomeDelivered, res.Outcome)
}

func TestDispatcherParamsOverrideCommandKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	d := NewDispatcher(pub, DefaultTopics())

	pub.EXPECT().
		PublishJSON(gomock.Any(), map[string]any{"command": "stop"}).
		Return(Result{Outcome: OutcomeDelivered})

	d.Publish("farm-1", "PUMP-00000001", "start", map[string]any{"command": "stop"})
}

func TestDispatcherPublishReportsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	d := NewDispatcher(pub, DefaultTopics())

	pub.EXPECT().PublishJSON(gomock.Any(), gomock.Any()).Return(Result{Outcome: OutcomeFailed, Reason: "not connected"})

	res := d.Publish("farm-1", "PUMP-00000001", "stop", nil)
	assert.False(t, res.Attempted())
}

func TestSendDeviceCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	d := NewDispatcher(pub, DefaultTopics())
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	pub.EXPECT().
		PublishJSON("farm/farm-1/device/VALVE-0001/command", map[string]any{
			"command":   "calibrate",
			"params":    map[string]any{},
			"timestamp": int64(1700000000000),
		}).
		Return(Result{Outcome: OutcomeAttempted})

	res, err := d.SendDeviceCommand("farm-1", "VALVE-0001", ActionCalibrate, nil)
	require.NoError(t, err)
	assert.True(t, res.Attempted())

	_, err = d.SendDeviceCommand("farm-1", "VALVE-0001", "explode", nil)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestDecodeAck(t *testing.T) {
	ack, err := DecodeAck([]byte(`{"scheduleId":"sched-1","status":"completed","actualVolumeLiters":120.5}`))
	require.NoError(t, err)
	assert.Equal(t, "sched-1", ack.ScheduleID)
	assert.Equal(t, storage.ScheduleCompleted, ack.Status)
	require.NotNil(t, ack.ActualVolumeLiters)
	assert.Equal(t, 120.5, *ack.ActualVolumeLiters)

	for _, payload := range []string{
		`not json`,
		`{"status":"completed"}`,
		`{"scheduleId":"sched-1","status":"in_progress"}`,
	} {
		_, err := DecodeAck([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidAck, payload)
	}
}

func TestAckListenerForwardsToCompleter(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)
	l := NewAckListener(completer)

	completer.EXPECT().
		Complete(gomock.Any(), "sched-1", storage.ScheduleFailed, gomock.Nil()).
		Return(nil)

	l.HandleMessage("smart-agri/irrigation/PUMP-00000001/ack", []byte(`{"scheduleId":"sched-1","status":"failed"}`))
}

func TestAckListenerDropsMalformed(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)
	l := NewAckListener(completer)

	// no Complete call expected
	l.HandleMessage("smart-agri/irrigation/PUMP-00000001/ack", []byte(`{"scheduleId":"sched-1","status":"done"}`))
	l.HandleMessage("smart-agri/irrigation/PUMP-00000001/ack", []byte(`garbage`))
}
