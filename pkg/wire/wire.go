package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Path is the collection endpoint path appended to the configured base URL.
const Path = "/locations"

// MaxBattery and MinBattery bound the battery percentage that is sent.
const (
	MinBattery = 0
	MaxBattery = 100
)

// BatteryUnavailable is passed to Encode when no battery reading exists.
const BatteryUnavailable = -1

// Body is the JSON object sent on POST /locations.
type Body struct {
	Latitudes  string `json:"latitudes"`
	Longitudes string `json:"longitudes"`
	Timestamps string `json:"timestamps"`
	DeviceID   string `json:"device_id"`
	Battery    *int   `json:"battery,omitempty"`
}

// EncodingError reports a sample that cannot be represented on the wire.
type EncodingError struct {
	Index int
	Field string
	Value float64
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("wire: sample %d: invalid %s %v", e.Index, e.Field, e.Value)
}

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("wire: malformed body")

// Encode builds the request body for samples, in order.
// batteryPercent is included only when it lies in MinBattery..MaxBattery.
func Encode(samples []Sample, deviceID string, batteryPercent int) ([]byte, error) {
	var lats, lons, times strings.Builder
	for i, s := range samples {
		if field, v, ok := s.validate(); !ok {
			return nil, &EncodingError{Index: i, Field: field, Value: v}
		}
		writeEntry(&lats, s.Latitude)
		writeEntry(&lons, s.Longitude)
		writeEntry(&times, s.Timestamp)
	}

	body := Body{
		Latitudes:  lats.String(),
		Longitudes: lons.String(),
		Timestamps: times.String(),
		DeviceID:   deviceID,
	}
	if batteryPercent >= MinBattery && batteryPercent <= MaxBattery {
		b := batteryPercent
		body.Battery = &b
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal body: %w", err)
	}
	return data, nil
}

func writeEntry(b *strings.Builder, v float64) {
	b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	b.WriteByte(',')
}

// Batch is a decoded request body.
type Batch struct {
	Samples  []Sample
	DeviceID string
	// Battery is BatteryUnavailable when the field was absent.
	Battery int
}

// Decode parses a body produced by Encode. The three lists must have the
// same number of entries.
func Decode(data []byte) (*Batch, error) {
	var body Body
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	lats, err := parseList(body.Latitudes)
	if err != nil {
		return nil, fmt.Errorf("%w: latitudes: %v", ErrMalformed, err)
	}
	lons, err := parseList(body.Longitudes)
	if err != nil {
		return nil, fmt.Errorf("%w: longitudes: %v", ErrMalformed, err)
	}
	times, err := parseList(body.Timestamps)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamps: %v", ErrMalformed, err)
	}
	if len(lats) != len(lons) || len(lats) != len(times) {
		return nil, fmt.Errorf("%w: list lengths differ (%d/%d/%d)",
			ErrMalformed, len(lats), len(lons), len(times))
	}

	out := &Batch{
		Samples:  make([]Sample, len(lats)),
		DeviceID: body.DeviceID,
		Battery:  BatteryUnavailable,
	}
	for i := range lats {
		out.Samples[i] = Sample{Latitude: lats[i], Longitude: lons[i], Timestamp: times[i]}
	}
	if body.Battery != nil {
		if *body.Battery < MinBattery || *body.Battery > MaxBattery {
			return nil, fmt.Errorf("%w: battery %d out of range", ErrMalformed, *body.Battery)
		}
		out.Battery = *body.Battery
	}
	return out, nil
}

// parseList splits a comma-joined list. The trailing comma is optional so
// bodies from older senders are accepted too.
func parseList(s string) ([]float64, error) {
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
