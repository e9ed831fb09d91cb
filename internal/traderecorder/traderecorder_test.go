package traderecorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingMAPEExcludesZeroObserved(t *testing.T) {
	observations := []ObservedPrice{
		{Predicted: 1.1, Observed: 1.0}, // 0.1
		{Predicted: 0.0, Observed: 0.0}, // excluded
		{Predicted: 0.9, Observed: 1.0}, // 0.1
	}
	assert.InDelta(t, 0.1, RollingMAPE(observations), 1e-9)
}

func TestRollingMAPEEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, RollingMAPE(nil))
}

func TestMAPEToConfidenceMonotoneDecreasing(t *testing.T) {
	low := MAPEToConfidence(0.02, 0.2)
	high := MAPEToConfidence(0.15, 0.2)
	assert.Greater(t, low, high)
	assert.GreaterOrEqual(t, low, 0.0)
	assert.LessOrEqual(t, low, 1.0)
}

func TestMAPEToConfidenceClampsAtCeiling(t *testing.T) {
	assert.Equal(t, 0.0, MAPEToConfidence(1.0, 0.2))
}

func TestNewBatchIDIsUnique(t *testing.T) {
	a := NewBatchID()
	b := NewBatchID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
