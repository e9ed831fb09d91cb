package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatestPerPoolKeepsHighestVersion(t *testing.T) {
	rows := []Pool{
		{ID: "p1", Version: 3},
		{ID: "p1", Version: 1},
		{ID: "p2", Version: 2},
		{ID: "p1", Version: 2},
	}
	out := latestPerPool(rows)
	assert.Len(t, out, 2)

	byID := map[string]Pool{}
	for _, p := range out {
		byID[p.ID] = p
	}
	assert.Equal(t, int64(3), byID["p1"].Version)
	assert.Equal(t, int64(2), byID["p2"].Version)
}

func TestPoolTokens(t *testing.T) {
	p := Pool{TokenA: "usdc", TokenB: "wrap.near"}
	assert.Equal(t, [2]string{"usdc", "wrap.near"}, p.Tokens())
}
