package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    Topic
		wantErr bool
	}{
		{
			name:  "sensor",
			topic: "farm/farm-1/sensor/ESP32-AB12CD",
			want:  Topic{Namespace: "farm", FarmID: "farm-1", Category: CategorySensor, HardwareID: "ESP32-AB12CD"},
		},
		{
			name:  "status with subpath",
			topic: "farm/farm-1/status/ESP32-AB12CD/power/main",
			want:  Topic{Namespace: "farm", FarmID: "farm-1", Category: CategoryStatus, HardwareID: "ESP32-AB12CD", Subpath: "power/main"},
		},
		{name: "too short", topic: "farm/farm-1/sensor", wantErr: true},
		{name: "empty farm", topic: "farm//sensor/ESP32-AB12CD", wantErr: true},
		{name: "empty device", topic: "farm/farm-1/sensor/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTopic(tt.topic)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePayloadKeepsUnknownKeys(t *testing.T) {
	p, err := DecodePayload([]byte(` {"soilMoisture":40,"nitrogen":12,"firmware":"1.2.0","humidity":"high"} `))
	require.NoError(t, err)

	require.NotNil(t, p.SoilMoisture)
	assert.Equal(t, 40.0, *p.SoilMoisture)
	assert.Nil(t, p.Humidity)
	assert.Equal(t, []string{"firmware", "humidity", "nitrogen"}, p.UnknownKeys())
	assert.Equal(t, `{"soilMoisture":40,"nitrogen":12,"firmware":"1.2.0","humidity":"high"}`, string(p.Raw))
}

func TestDecodePayloadZeroIsPresent(t *testing.T) {
	p, err := DecodePayload([]byte(`{"soilMoisture":0}`))
	require.NoError(t, err)

	require.NotNil(t, p.SoilMoisture)
	assert.Equal(t, 0.0, *p.SoilMoisture)
}

func TestDecodePayloadStatusOnly(t *testing.T) {
	p, err := DecodePayload([]byte(`{"status":"offline"}`))
	require.NoError(t, err)

	require.NotNil(t, p.Status)
	assert.Equal(t, "offline", *p.Status)
	assert.Nil(t, p.SoilMoisture)
	assert.Nil(t, p.Temperature)
	assert.Empty(t, p.UnknownKeys())
}
