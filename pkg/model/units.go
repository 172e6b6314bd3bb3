package model

import "fmt"

// SpeedUnit selects the unit speed values are converted to.
type SpeedUnit string

const (
	SpeedMph SpeedUnit = "mph"
	SpeedKph SpeedUnit = "kph"
	// SpeedMs keeps the logger values (meters per second) untouched.
	SpeedMs SpeedUnit = "ms"
)

func ParseSpeedUnit(arg string) (SpeedUnit, error) {
	switch SpeedUnit(arg) {
	case SpeedMph, SpeedKph, SpeedMs:
		return SpeedUnit(arg), nil
	default:
		return "", fmt.Errorf("unknown speed unit: %s", arg)
	}
}

// TempUnit selects the unit temperature values are converted to.
type TempUnit string

const (
	TempCelsius    TempUnit = "celsius"
	TempFahrenheit TempUnit = "fahrenheit"
)

func ParseTempUnit(arg string) (TempUnit, error) {
	switch arg {
	case "celsius", "c":
		return TempCelsius, nil
	case "fahrenheit", "f":
		return TempFahrenheit, nil
	default:
		return "", fmt.Errorf("unknown temperature unit: %s", arg)
	}
}

// Units combines the display units for all converted values.
type Units struct {
	Speed SpeedUnit `json:"speed"`
	Temp  TempUnit  `json:"temp"`
}

// DefaultUnits matches the units shown by the stock dashboard.
func DefaultUnits() Units {
	return Units{Speed: SpeedMph, Temp: TempCelsius}
}

func ParseUnits(speedArg, tempArg string) (Units, error) {
	speed, err := ParseSpeedUnit(speedArg)
	if err != nil {
		return Units{}, err
	}
	temp, err := ParseTempUnit(tempArg)
	if err != nil {
		return Units{}, err
	}
	return Units{Speed: speed, Temp: temp}, nil
}
