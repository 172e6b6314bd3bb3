package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUnits(t *testing.T) {
	units, err := ParseUnits("kph", "f")
	assert.NoError(t, err)
	assert.Equal(t, Units{Speed: SpeedKph, Temp: TempFahrenheit}, units)

	_, err = ParseUnits("knots", "c")
	assert.Error(t, err)
	_, err = ParseUnits("mph", "kelvin")
	assert.Error(t, err)
}

func TestParseTempUnitAcceptsShortForms(t *testing.T) {
	for _, arg := range []string{"c", "celsius"} {
		unit, err := ParseTempUnit(arg)
		assert.NoError(t, err)
		assert.Equal(t, TempCelsius, unit)
	}
	unit, err := ParseTempUnit("f")
	assert.NoError(t, err)
	assert.Equal(t, TempFahrenheit, unit)
}

func TestDefaultUnits(t *testing.T) {
	assert.Equal(t, Units{Speed: SpeedMph, Temp: TempCelsius}, DefaultUnits())
}
