package miner

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/minerregion"
)

func newTestMiner(t *testing.T, region *minerregion.Region, pid int64) *Miner {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	// finalize/rotate/collectVotes never touch sender or sig, so nil
	// stand-ins are safe for these unit tests; a real round (winnerProtocol
	// end to end) needs a live queue and real signal delivery, exercised
	// instead by the cmd/ integration tests.
	return New(log, region, nil, nil, pid, 1)
}

// TestFinalizeMajorityApprove covers the ordinary approve path: the
// winner's wallet rises by exactly one and the block is marked valid.
func TestFinalizeMajorityApprove(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	const winnerPID = 100
	region.Register(0, winnerPID, 0)
	region.Register(1, 200, 0)
	region.Register(2, 300, 0)

	cur := region.CurrentBlock()
	cur.Solution = 55
	cur.Winner = winnerPID
	region.SetCurrentBlock(cur)

	region.SetVoteAt(0, block.Vote{PeerID: winnerPID, Ballot: block.VoteApprove})
	region.SetVoteAt(1, block.Vote{PeerID: 200, Ballot: block.VoteApprove})
	region.SetVoteAt(2, block.Vote{PeerID: 300, Ballot: block.VoteReject})

	m := newTestMiner(t, region, winnerPID)
	finalized := m.finalize(3)

	assert.True(t, finalized.Valid, "2-of-3 approvals is a majority")
	assert.Equal(t, int64(2), finalized.Approvals)
	assert.Equal(t, int64(3), finalized.TotalVotes)
	assert.Equal(t, int64(1), region.WalletAt(0).Count, "winner's wallet must rise by exactly one")
	assert.Equal(t, int64(0), region.WalletAt(1).Count)
}

// TestFinalizeMajorityReject: a genuine majority reject must leave the
// winner's wallet untouched and the block marked invalid.
func TestFinalizeMajorityReject(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	const winnerPID = 100
	region.Register(0, winnerPID, 0)
	region.Register(1, 200, 0)
	region.Register(2, 300, 0)

	region.SetVoteAt(0, block.Vote{PeerID: winnerPID, Ballot: block.VoteApprove})
	region.SetVoteAt(1, block.Vote{PeerID: 200, Ballot: block.VoteReject})
	region.SetVoteAt(2, block.Vote{PeerID: 300, Ballot: block.VoteReject})

	m := newTestMiner(t, region, winnerPID)
	finalized := m.finalize(3)

	assert.False(t, finalized.Valid)
	assert.Equal(t, int64(1), finalized.Approvals)
	assert.Equal(t, int64(0), region.WalletAt(0).Count, "a rejected block must not credit the winner")
}

// TestFinalizeSnapshotsWallets verifies the block carries a snapshot of
// every active peer's wallet at round end, not a live reference.
func TestFinalizeSnapshotsWallets(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	const winnerPID = 100
	region.Register(0, winnerPID, 0)
	region.SetWalletAt(0, block.Coin{PeerID: winnerPID, Count: 4})
	region.SetVoteAt(0, block.Vote{PeerID: winnerPID, Ballot: block.VoteApprove})

	m := newTestMiner(t, region, winnerPID)
	finalized := m.finalize(1)

	require.Equal(t, int64(winnerPID), finalized.Coins[0].PeerID)
	assert.Equal(t, int64(5), finalized.Coins[0].Count)

	region.SetWalletAt(0, block.Coin{PeerID: winnerPID, Count: 999})
	assert.Equal(t, int64(5), finalized.Coins[0].Count, "snapshot must not alias live wallet state")
}

// TestRotateChainLinkage: the next block's target is the retired
// block's solution and its id is one greater, and every vote resets to
// absent for the new round.
func TestRotateChainLinkage(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	region.Register(0, 100, 0)
	region.SetVoteAt(0, block.Vote{PeerID: 100, Ballot: block.VoteApprove})

	finished := block.Block{ID: 1, Target: 10, Solution: 77, Winner: 100}
	m := newTestMiner(t, region, 100)
	m.rotate(finished)

	assert.Equal(t, finished, region.PreviousBlock())

	next := region.CurrentBlock()
	assert.Equal(t, finished.ID+1, next.ID)
	assert.Equal(t, finished.Solution, next.Target)
	assert.Equal(t, int64(block.FreeSlot), next.Winner)

	assert.Equal(t, int64(block.VoteAbsent), region.VoteAt(0).Ballot, "rotation must clear the previous round's ballots")
}

// TestCollectVotesReturnsAsSoonAsQuorumCast ensures the winner's vote
// poll doesn't wait out the full timeout once every active peer has
// voted.
func TestCollectVotesReturnsAsSoonAsQuorumCast(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	region.Register(0, 100, 0)
	region.Register(1, 200, 0)
	region.SetVoteAt(0, block.Vote{PeerID: 100, Ballot: block.VoteApprove})
	region.SetVoteAt(1, block.Vote{PeerID: 200, Ballot: block.VoteReject})

	m := newTestMiner(t, region, 100)
	got := m.collectVotes(2)
	assert.Equal(t, 2, got)
}

// TestCollectVotesTimesOutWithPartialTally: a vote-quorum timeout is
// not an error, the winner proceeds with whatever arrived.
func TestCollectVotesTimesOutWithPartialTally(t *testing.T) {
	region := minerregion.NewFromBytes(make([]byte, minerregion.Size))
	region.Register(0, 100, 0)
	region.Register(1, 200, 0)
	region.SetVoteAt(0, block.Vote{PeerID: 100, Ballot: block.VoteApprove})
	// peer 200 never votes.

	m := newTestMiner(t, region, 100)
	got := m.collectVotes(2)
	assert.Equal(t, 1, got, "collectVotes must report however many ballots actually arrived on timeout")
}
