package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRawRecord(t *testing.T) {
	rec, err := ParseRawRecord([]byte(`{"time": 600000, "speed": 8.5, "trackName": "Goodwood"}`))
	assert.NoError(t, err)
	assert.Equal(t, int64(600000), rec.Timestamp())

	_, err = ParseRawRecord([]byte(`{"time":`))
	assert.Error(t, err)
}

func TestRawRecordTimestampFallsBackToAltKey(t *testing.T) {
	assert.Equal(t, int64(600000), RawRecord{"timestamp": 600000.0}.Timestamp())
	assert.Equal(t, int64(0), RawRecord{"speed": 8.5}.Timestamp())
}

func TestCanonicalCoercesNumericStrings(t *testing.T) {
	rec := RawRecord{"voltage": "23.9", "current": 10.5, "rpm": "bogus"}
	assert.Equal(t, RawRecord{"voltage": 23.9, "current": 10.5}, rec.Canonical())
}

func TestCanonicalLiftsAlternateKeys(t *testing.T) {
	rec := RawRecord{"timestamp": 600000.0, "Lat": 52.9, "Lon": -0.9}
	assert.Equal(t, RawRecord{"time": 600000.0, "lat": 52.9, "lon": -0.9}, rec.Canonical())
}

func TestCanonicalPrefersCanonicalTimeKey(t *testing.T) {
	rec := RawRecord{"time": 600000.0, "timestamp": 500000.0}
	assert.Equal(t, 600000.0, rec.Canonical()[KeyTime])
}

func TestCanonicalDropsNonNumericValues(t *testing.T) {
	rec := RawRecord{"speed": 8.5, "note": "pit stop", "gpsFix": true}
	assert.Equal(t, RawRecord{"speed": 8.5}, rec.Canonical())
}

func TestNormalizeSplitsTrackName(t *testing.T) {
	rec := RawRecord{"time": "600000", "speed": "8.5", "trackName": "Goodwood"}
	pkt, trackName := rec.Normalize()
	assert.Equal(t, Packet{"time": 600000, "speed": 8.5}, pkt)
	assert.Equal(t, "Goodwood", trackName)
	// the receiver keeps its wire form
	assert.Equal(t, "600000", rec["time"])
}

func TestNormalizeWithoutTrackName(t *testing.T) {
	pkt, trackName := RawRecord{"time": 600000.0, "trackName": ""}.Normalize()
	assert.Equal(t, "", trackName)
	assert.Equal(t, Packet{"time": 600000}, pkt)
}

func TestPacketClone(t *testing.T) {
	pkt := Packet{"time": 600000, "speed": 8.5}
	clone := pkt.Clone()
	clone["speed"] = 9.9
	assert.Equal(t, 8.5, pkt["speed"])
}

func TestEncodeRecord(t *testing.T) {
	rec := EncodeRecord(Packet{"time": 600000, "speed": 8.5}, "Goodwood")
	pkt, trackName := rec.Normalize()
	assert.Equal(t, Packet{"time": 600000, "speed": 8.5}, pkt)
	assert.Equal(t, "Goodwood", trackName)
}
