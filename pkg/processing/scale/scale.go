package scale

import (
	"math"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

// conversion factors for speed values (loggers report meters per second)
const (
	MsToMph = 2.23694
	MsToKph = 3.6
)

// Scale converts a packet to the given display units and attaches the
// derived battery and temperature values. The input is never modified,
// absent fields stay absent.
func Scale(raw model.Packet, units model.Units) model.Packet {
	ret := raw.Clone()
	if speed, ok := raw.Get(model.KeySpeed); ok {
		ret[model.KeySpeed] = speed * speedFactor(units.Speed)
	}
	for _, key := range []string{model.KeyTemp1, model.KeyTemp2} {
		if temp, ok := raw.Get(key); ok {
			ret[key] = convertTemp(temp, units.Temp)
		}
	}
	addDerived(ret)
	return ret
}

func speedFactor(unit model.SpeedUnit) float64 {
	switch unit {
	case model.SpeedMph:
		return MsToMph
	case model.SpeedKph:
		return MsToKph
	case model.SpeedMs:
		return 1
	default:
		return 1
	}
}

func convertTemp(val float64, unit model.TempUnit) float64 {
	if unit == model.TempFahrenheit {
		return val*9/5 + 32
	}
	return val
}

// addDerived computes the values the loggers don't send themselves.
// Each one requires all of its inputs to be present.
func addDerived(pkt model.Packet) {
	voltage, hasVoltage := pkt.Get(model.KeyVoltage)
	voltageLower, hasLower := pkt.Get(model.KeyVoltageLower)
	if hasVoltage && hasLower {
		voltageHigh := voltage - voltageLower
		pkt[model.KeyVoltageHigh] = voltageHigh
		// signed: positive means the high sub-battery exceeds the lower one
		pkt[model.KeyVoltageDiff] = voltageHigh - voltageLower
	}
	temp1, hasTemp1 := pkt.Get(model.KeyTemp1)
	temp2, hasTemp2 := pkt.Get(model.KeyTemp2)
	if hasTemp1 && hasTemp2 {
		pkt[model.KeyTempDiff] = math.Abs(temp1 - temp2)
	}
}
