// Package minerregion implements the shared-memory layout every miner
// process maps: the peer/vote/wallet slots, the previous/current block
// pair, and the mutex/winner-latch/admission-gate semaphores, all
// addressed as fixed byte offsets into a single mapped region so every
// miner process sees the same bytes.
package minerregion

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/shm"
)

const (
	peersOff  = 0
	peersSize = config.MaxMiners * 8

	votesOff  = peersOff + peersSize
	votesSize = config.MaxMiners * 16

	walletsOff  = votesOff + votesSize
	walletsSize = config.MaxMiners * 16

	prevBlockOff = walletsOff + walletsSize
	currBlockOff = prevBlockOff + block.Size

	waitersOff   = currBlockOff + block.Size
	canEnterOff  = waitersOff + 4
	mutexSemOff  = canEnterOff + 4
	winnerSemOff = mutexSemOff + 4
	entryMuxOff  = winnerSemOff + 4
	entryGateOff = entryMuxOff + 4

	// Size is the total byte size of a MinerRegion.
	Size = entryGateOff + 4
)

// Region is the mapped MinerRegion plus its semaphores.
type Region struct {
	shm *shm.Region

	Mutex      *shm.Sem // guards peers/votes/wallets/both blocks
	WinnerSem  *shm.Sem // election latch, initial value 1
	EntryMutex *shm.Sem // guards CanEnter/WaitersCount
	EntryGate  *shm.Sem // admission gate, initial value 0
}

// Open opens or creates the named MinerRegion and, if this process is the
// initializer, resets every slot to the free-slot sentinel and seeds
// block 1.
func Open(name string) (*Region, error) {
	raw, err := shm.Open(name, Size)
	if err != nil {
		return nil, err
	}
	r := &Region{
		shm:        raw,
		Mutex:      shm.SemAt(raw.Data, mutexSemOff),
		WinnerSem:  shm.SemAt(raw.Data, winnerSemOff),
		EntryMutex: shm.SemAt(raw.Data, entryMuxOff),
		EntryGate:  shm.SemAt(raw.Data, entryGateOff),
	}
	if raw.Role == shm.RoleInitializer {
		r.initialize()
	} else if err := r.awaitInitialized(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return r, nil
}

// awaitInitialized spins until the creator has finished seeding the
// region, observable as the current block id turning positive. A joiner
// that raced in between the creator's exclusive open and its first
// writes must not read the roster before then.
func (r *Region) awaitInitialized() error {
	deadline := time.Now().Add(5 * time.Second)
	for r.CurrentBlock().ID <= 0 {
		if time.Now().After(deadline) {
			return errors.New("minerregion: creator never finished initializing")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// NewFromBytes builds a MinerRegion directly over an already-mapped byte
// slice (size must be at least Size), always initializing it. Tests use
// this to exercise the roster/admission-gate/voting logic in-process,
// with goroutines standing in for separate miner processes, instead of
// spawning real OS processes and a real /dev/shm file.
func NewFromBytes(data []byte) *Region {
	raw := shm.WrapForTest(data)
	r := &Region{
		shm:        raw,
		Mutex:      shm.SemAt(raw.Data, mutexSemOff),
		WinnerSem:  shm.SemAt(raw.Data, winnerSemOff),
		EntryMutex: shm.SemAt(raw.Data, entryMuxOff),
		EntryGate:  shm.SemAt(raw.Data, entryGateOff),
	}
	r.initialize()
	return r
}

// IsInitializer reports whether this process created the region.
func (r *Region) IsInitializer() bool { return r.shm.Role == shm.RoleInitializer }

func (r *Region) initialize() {
	r.Mutex.Init(1)
	r.WinnerSem.Init(1)
	r.EntryMutex.Init(1)
	r.EntryGate.Init(0)

	for i := 0; i < config.MaxMiners; i++ {
		r.SetPeerAt(i, block.FreeSlot)
		r.SetVoteAt(i, block.Vote{PeerID: block.FreeSlot, Ballot: block.VoteAbsent})
		r.SetWalletAt(i, block.Coin{PeerID: block.FreeSlot, Count: block.FreeSlot})
	}

	var prev block.Block
	prev.ID = -1
	prev.Winner = block.FreeSlot
	prev.TotalVotes = -1
	prev.Approvals = -1
	r.SetPreviousBlock(prev)

	r.SetWaitersCount(0)
	r.SetCanEnter(true)

	// Written last: joiners treat a positive current-block id as the
	// signal that everything above is in place.
	var curr block.Block
	curr.ID = 1
	curr.Winner = block.FreeSlot
	curr.TotalVotes = -1
	curr.Approvals = -1
	r.SetCurrentBlock(curr)
}

// Close unmaps the region (does not unlink the backing file).
func (r *Region) Close() error { return r.shm.Close() }

// Unlink removes the backing shared-memory file. Only the last peer to
// leave the roster should call this.
func (r *Region) Unlink() error { return r.shm.Unlink() }

func (r *Region) PeerAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(r.shm.Data[peersOff+i*8:]))
}

func (r *Region) SetPeerAt(i int, peerID int64) {
	binary.LittleEndian.PutUint64(r.shm.Data[peersOff+i*8:], uint64(peerID))
}

func (r *Region) VoteAt(i int) block.Vote {
	off := votesOff + i*16
	return block.Vote{
		PeerID: int64(binary.LittleEndian.Uint64(r.shm.Data[off:])),
		Ballot: int64(binary.LittleEndian.Uint64(r.shm.Data[off+8:])),
	}
}

func (r *Region) SetVoteAt(i int, v block.Vote) {
	off := votesOff + i*16
	binary.LittleEndian.PutUint64(r.shm.Data[off:], uint64(v.PeerID))
	binary.LittleEndian.PutUint64(r.shm.Data[off+8:], uint64(v.Ballot))
}

func (r *Region) WalletAt(i int) block.Coin {
	off := walletsOff + i*16
	return block.Coin{
		PeerID: int64(binary.LittleEndian.Uint64(r.shm.Data[off:])),
		Count:  int64(binary.LittleEndian.Uint64(r.shm.Data[off+8:])),
	}
}

func (r *Region) SetWalletAt(i int, c block.Coin) {
	off := walletsOff + i*16
	binary.LittleEndian.PutUint64(r.shm.Data[off:], uint64(c.PeerID))
	binary.LittleEndian.PutUint64(r.shm.Data[off+8:], uint64(c.Count))
}

func (r *Region) CurrentBlock() block.Block {
	var b block.Block
	_ = b.UnmarshalBinary(r.shm.Data[currBlockOff : currBlockOff+block.Size])
	return b
}

func (r *Region) SetCurrentBlock(b block.Block) {
	mustMarshalInto(r.shm.Data[currBlockOff:currBlockOff+block.Size], b)
}

func (r *Region) PreviousBlock() block.Block {
	var b block.Block
	_ = b.UnmarshalBinary(r.shm.Data[prevBlockOff : prevBlockOff+block.Size])
	return b
}

func (r *Region) SetPreviousBlock(b block.Block) {
	mustMarshalInto(r.shm.Data[prevBlockOff:prevBlockOff+block.Size], b)
}

func (r *Region) WaitersCount() int32 {
	return int32(binary.LittleEndian.Uint32(r.shm.Data[waitersOff:]))
}

func (r *Region) SetWaitersCount(n int32) {
	binary.LittleEndian.PutUint32(r.shm.Data[waitersOff:], uint32(n))
}

func (r *Region) CanEnter() bool {
	return binary.LittleEndian.Uint32(r.shm.Data[canEnterOff:]) != 0
}

func (r *Region) SetCanEnter(v bool) {
	var n uint32
	if v {
		n = 1
	}
	binary.LittleEndian.PutUint32(r.shm.Data[canEnterOff:], n)
}

func mustMarshalInto(dst []byte, b block.Block) {
	encoded, err := b.MarshalBinary()
	if err != nil {
		// Block.MarshalBinary only fails on an io error from a bytes.Buffer,
		// which cannot happen.
		panic(err)
	}
	copy(dst, encoded)
}
