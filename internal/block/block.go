// Package block defines the wire/shared-memory record types shared
// across process roles: Coin, Vote, and Block. All three are fixed-size
// value types (no slices, no pointers) so they can be laid directly
// over a memory-mapped region and copied across the message queue.
package block

import "github.com/minermesh/minermesh/internal/config"

// FreeSlot is the sentinel peer id marking an empty roster/vote/wallet slot.
const FreeSlot = -1

// Coin is a (peer_id, coin_count) record; FreeSlot marks an empty slot.
type Coin struct {
	PeerID int64
	Count  int64
}

// Vote values.
const (
	VoteAbsent  = -1
	VoteReject  = 0
	VoteApprove = 1
)

// Vote is a (peer_id, vote) record.
type Vote struct {
	PeerID int64
	Ballot int64
}

// Block is the immutable-once-shipped record of one round: the target,
// the winning solution, the vote tally, and a wallet snapshot.
type Block struct {
	ID         int64
	Target     int64
	Solution   int64
	Winner     int64
	Coins      [config.MaxMiners]Coin
	TotalVotes int64
	Approvals  int64
	Valid      bool
}

// Terminator reports whether this block is the end-of-stream sentinel.
func (b *Block) Terminator() bool {
	return b.Solution == config.ExitCode
}

// NewTerminator builds the sentinel block carried on both the message
// queue and the monitor ring: solution = ExitCode, everything else zeroed.
func NewTerminator() Block {
	var b Block
	b.Solution = config.ExitCode
	return b
}

// Size is the fixed encoded size of a Block, used to size the shared
// memory regions and the message-queue transport. Valid occupies a full
// word so Size stays 8-byte aligned: the semaphore slots laid out
// after block records inside the mapped regions are mutated
// with 32-bit atomics, which fault on misaligned addresses on 32-bit
// targets.
const Size = 8*4 + config.MaxMiners*16 + 8*2 + 8

// Clone returns a value copy; Block is already copy-safe (no pointers),
// this exists so call sites can be explicit about wanting an independent
// snapshot before a block leaves the roster.
func (b Block) Clone() Block {
	return b
}
