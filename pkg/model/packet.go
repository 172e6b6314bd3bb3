package model

import (
	"maps"
	"strconv"

	json "github.com/goccy/go-json"
)

// wire keys of a telemetry record as sent by the data loggers
const (
	KeyTime         = "time"
	KeyTimestampAlt = "timestamp" // older loggers send the time under this key
	KeySpeed        = "speed"
	KeyVoltage      = "voltage"
	KeyVoltageLower = "voltageLower"
	KeyVoltageHigh  = "voltageHigh"
	KeyVoltageDiff  = "voltageDiff"
	KeyCurrent      = "current"
	KeyAmpHours     = "ampHours"
	KeyRPM          = "rpm"
	KeyThrottle     = "throttle"
	KeyBrake        = "brake"
	KeyTemp1        = "temp1"
	KeyTemp2        = "temp2"
	KeyTempDiff     = "tempDiff"
	KeyLat          = "lat"
	KeyLon          = "lon"
	KeyLatAlt       = "Lat" // GPS add-ons send coordinates capitalized
	KeyLonAlt       = "Lon"
	KeyCurrentLap   = "currentLap"
	KeyLapVolts     = "lapVolts"
	KeyLapAmps      = "lapAmps"
	KeyLapRPM       = "lapRPM"
	KeyLapSpeed     = "lapSpeed"
	KeyLapAmpHours  = "lapAmpHours"
	KeyLapTime      = "lapTime"
	KeyLapEff       = "lapEfficiency"
	KeyTrackName    = "trackName"
)

// Packet holds the numeric values of a single telemetry reading.
type Packet map[string]float64

func (p Packet) Timestamp() int64 {
	return int64(p[KeyTime])
}

func (p Packet) Clone() Packet {
	return maps.Clone(p)
}

// Get returns the value for key and whether it is present.
func (p Packet) Get(key string) (float64, bool) {
	v, ok := p[key]
	return v, ok
}

// RawRecord is a decoded telemetry record as received on the wire.
// Values may be numbers or numeric strings depending on the logger firmware.
type RawRecord map[string]any

func ParseRawRecord(data []byte) (RawRecord, error) {
	var ret RawRecord
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r RawRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Timestamp returns the record timestamp in epoch millis, 0 if absent.
func (r RawRecord) Timestamp() int64 {
	if v, ok := asFloat(r[KeyTime]); ok {
		return int64(v)
	}
	if v, ok := asFloat(r[KeyTimestampAlt]); ok {
		return int64(v)
	}
	return 0
}

// Canonical applies the coercion rules for inbound records: numeric strings
// are converted, the timestamp is lifted to the canonical key, capitalized
// GPS keys are lowercased. Values that are neither numeric nor the track
// name are dropped. The receiver is left untouched.
func (r RawRecord) Canonical() RawRecord {
	ret := make(RawRecord, len(r))
	for k, v := range r {
		switch k {
		case KeyTimestampAlt:
			k = KeyTime
		case KeyLatAlt:
			k = KeyLat
		case KeyLonAlt:
			k = KeyLon
		case KeyTrackName:
			if s, ok := v.(string); ok && s != "" {
				ret[KeyTrackName] = s
			}
			continue
		}
		if f, ok := asFloat(v); ok {
			ret[k] = f
		}
	}
	// canonical key wins when a record carries the time under both names
	if v, ok := asFloat(r[KeyTime]); ok {
		ret[KeyTime] = v
	}
	return ret
}

// Normalize converts the record into a Packet, returning the track name
// separately since it is the only non-numeric value carried by the loggers.
func (r RawRecord) Normalize() (Packet, string) {
	canonical := r.Canonical()
	trackName := ""
	ret := make(Packet, len(canonical))
	for k, v := range canonical {
		if k == KeyTrackName {
			trackName, _ = v.(string)
			continue
		}
		if f, ok := v.(float64); ok {
			ret[k] = f
		}
	}
	return ret, trackName
}

// EncodeRecord builds the wire form of a scaled packet and its track name.
func EncodeRecord(pkt Packet, trackName string) RawRecord {
	ret := make(RawRecord, len(pkt)+1)
	for k, v := range pkt {
		ret[k] = v
	}
	if trackName != "" {
		ret[KeyTrackName] = trackName
	}
	return ret
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
