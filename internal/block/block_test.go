package block_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	b := block.Block{
		ID:         7,
		Target:     1234,
		Solution:   5678,
		Winner:     42,
		TotalVotes: 3,
		Approvals:  2,
		Valid:      true,
	}
	b.Coins[0] = block.Coin{PeerID: 42, Count: 9}
	b.Coins[1] = block.Coin{PeerID: block.FreeSlot, Count: block.FreeSlot}

	encoded, err := b.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, encoded, block.Size)

	var decoded block.Block
	require.NoError(t, decoded.UnmarshalBinary(encoded))
	assert.Equal(t, b, decoded)
}

func TestUnmarshalShortBuffer(t *testing.T) {
	var b block.Block
	err := b.UnmarshalBinary(make([]byte, block.Size-1))
	assert.Error(t, err)
}

func TestTerminator(t *testing.T) {
	term := block.NewTerminator()
	assert.True(t, term.Terminator())
	assert.Equal(t, int64(config.ExitCode), term.Solution)

	var normal block.Block
	normal.Solution = 5
	assert.False(t, normal.Terminator())
}
