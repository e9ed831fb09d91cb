package forecaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceMonotoneInWidth(t *testing.T) {
	narrow := Confidence(0.95, 1.05, 1.0, 0, 3600)
	wide := Confidence(0.80, 1.20, 1.0, 0, 3600)
	assert.GreaterOrEqual(t, narrow, wide, "a wider band must never yield a higher confidence")
}

func TestConfidenceClampedToUnitInterval(t *testing.T) {
	veryWide := Confidence(-10, 10, 1.0, 0, 3600)
	assert.Equal(t, 0.0, veryWide)

	zeroWidth := Confidence(1.0, 1.0, 1.0, 0, 7200)
	assert.LessOrEqual(t, zeroWidth, 1.0)
	assert.GreaterOrEqual(t, zeroWidth, 0.0)
}

func TestConfidenceHoursAheadFloorsAtOne(t *testing.T) {
	// forecastTS before lastDataTS must not produce a negative/huge hoursAhead.
	c := Confidence(0.95, 1.05, 1.0, 3600, 0)
	assert.GreaterOrEqual(t, c, 0.0)
	assert.LessOrEqual(t, c, 1.0)
}

func TestConfidenceZeroForecastValueIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(0.95, 1.05, 0, 0, 3600))
}
