package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Recognized payload keys
const (
	KeySoilMoisture    = "soilMoisture"
	KeySoilTemperature = "soilTemperature"
	KeyAirTemperature  = "airTemperature"
	KeyTemperature     = "temperature"
	KeyHumidity        = "humidity"
	KeyLight           = "light"
	KeyBattery         = "battery"
	KeyStatus          = "status"
)

// Payload is a decoded telemetry message. Each recognized key that carries a
// value of the expected JSON kind fills its typed field. Everything else,
// including recognized keys with the wrong kind, is kept in Extra. Raw holds
// the original bytes untouched.
type Payload struct {
	SoilMoisture    *float64
	SoilTemperature *float64
	AirTemperature  *float64
	Temperature     *float64
	Humidity        *float64
	Light           *float64
	Battery         *float64
	Status          *string

	Extra map[string]json.RawMessage
	Raw   json.RawMessage
}

// DecodePayload parses a flat JSON object
func DecodePayload(data []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p := &Payload{
		Extra: make(map[string]json.RawMessage),
		Raw:   json.RawMessage(append([]byte(nil), trimmed...)),
	}

	for key, value := range fields {
		var typed bool
		switch key {
		case KeySoilMoisture:
			p.SoilMoisture, typed = number(value)
		case KeySoilTemperature:
			p.SoilTemperature, typed = number(value)
		case KeyAirTemperature:
			p.AirTemperature, typed = number(value)
		case KeyTemperature:
			p.Temperature, typed = number(value)
		case KeyHumidity:
			p.Humidity, typed = number(value)
		case KeyLight:
			p.Light, typed = number(value)
		case KeyBattery:
			p.Battery, typed = number(value)
		case KeyStatus:
			p.Status, typed = str(value)
		}
		if !typed {
			p.Extra[key] = value
		}
	}

	return p, nil
}

// UnknownKeys returns the keys that did not map to a typed field, sorted
func (p *Payload) UnknownKeys() []string {
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func number(raw json.RawMessage) (*float64, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	f, ok := v.(float64)
	if !ok {
		return nil, false
	}
	return &f, true
}

func str(raw json.RawMessage) (*string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	return &s, true
}
