package powhash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/powhash"
)

func TestHashDeterministic(t *testing.T) {
	for _, i := range []int64{0, 1, 17, config.PowLimit - 1, 999_999} {
		assert.Equal(t, powhash.Hash(i), powhash.Hash(i), "hash must be a pure function of its input")
	}
}

func TestHashBoundedToDomain(t *testing.T) {
	for _, i := range []int64{0, 1, 42, config.PowLimit / 2, config.PowLimit - 1} {
		h := powhash.Hash(i)
		assert.GreaterOrEqual(t, h, int64(0))
		assert.Less(t, h, int64(config.PowLimit))
	}
}

// TestHashPermutesDomain proves every possible target has a preimage:
// an injective map of a finite set onto itself is a bijection, so a
// chain whose next target is the previous solution can never reach an
// unsolvable round.
func TestHashPermutesDomain(t *testing.T) {
	seen := make([]bool, config.PowLimit)
	for i := int64(0); i < config.PowLimit; i++ {
		h := powhash.Hash(i)
		require.False(t, seen[h], "collision at input %d", i)
		seen[h] = true
	}
}

func TestRoundTripLaw(t *testing.T) {
	// A winner's claimed solution must re-hash to the target it was
	// mined against; the checker relies on exactly this recomputation.
	target := powhash.Hash(555)
	assert.Equal(t, target, powhash.Hash(555))
	assert.NotEqual(t, target, powhash.Hash(556))
}
