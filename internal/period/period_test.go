package period

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHarvestRequiresAccountConfigured(t *testing.T) {
	h := NewHarvestCheck("", big.NewRat(10, 1), 128, time.Hour)
	_, ok := h.ShouldHarvest(time.Now(), big.NewRat(2000, 1))
	assert.False(t, ok)
}

func TestHarvestTriggersAboveThreshold(t *testing.T) {
	h := NewHarvestCheck("harvest.near", big.NewRat(10, 1), 128, time.Hour)
	excess, ok := h.ShouldHarvest(time.Now(), big.NewRat(2000, 1))
	assert.True(t, ok)
	assert.Equal(t, 0, excess.Cmp(big.NewRat(1990, 1)))
}

func TestHarvestBelowThresholdDoesNotTrigger(t *testing.T) {
	h := NewHarvestCheck("harvest.near", big.NewRat(10, 1), 128, time.Hour)
	_, ok := h.ShouldHarvest(time.Now(), big.NewRat(100, 1))
	assert.False(t, ok)
}

func TestHarvestRespectsInterval(t *testing.T) {
	h := NewHarvestCheck("harvest.near", big.NewRat(10, 1), 128, time.Hour)
	now := time.Now()
	_, ok := h.ShouldHarvest(now, big.NewRat(2000, 1))
	assert.True(t, ok)
	h.MarkHarvested(now)

	_, ok = h.ShouldHarvest(now.Add(time.Minute), big.NewRat(2000, 1))
	assert.False(t, ok, "must not re-trigger before interval elapses")

	_, ok = h.ShouldHarvest(now.Add(2*time.Hour), big.NewRat(2000, 1))
	assert.True(t, ok, "must trigger again once interval has elapsed")
}

func TestHarvestDefaultMultiplier(t *testing.T) {
	h := NewHarvestCheck("harvest.near", big.NewRat(1, 1), 0, time.Hour)
	assert.Equal(t, 128.0, h.BalanceMultiplier)
}
