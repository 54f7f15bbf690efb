package minerregion

import "github.com/minermesh/minermesh/internal/block"

// IndexOf returns the roster slot holding peerID, or -1 if not registered.
// Callers must hold Mutex (or, for the registration-only case, EntryMutex)
// before calling this — it performs no locking itself.
func (r *Region) IndexOf(peerID int64) int {
	for i := 0; i < maxMiners(); i++ {
		if r.PeerAt(i) == peerID {
			return i
		}
	}
	return -1
}

func maxMiners() int { return peersSize / 8 }

// FreeSlot returns the first free roster index, or -1 if the roster is full.
func (r *Region) FreeSlot() int {
	for i := 0; i < maxMiners(); i++ {
		if r.PeerAt(i) == block.FreeSlot {
			return i
		}
	}
	return -1
}

// ActivePeers lists every registered peer id. Callers must hold Mutex.
func (r *Region) ActivePeers() []int64 {
	var out []int64
	for i := 0; i < maxMiners(); i++ {
		if p := r.PeerAt(i); p != block.FreeSlot {
			out = append(out, p)
		}
	}
	return out
}

// CountActive returns the number of registered peers.
func (r *Region) CountActive() int {
	n := 0
	for i := 0; i < maxMiners(); i++ {
		if r.PeerAt(i) != block.FreeSlot {
			n++
		}
	}
	return n
}

// Register claims slot i for peerID with a fresh vote/wallet entry,
// carrying over startingWallet coins (a rejoining peer never loses
// balance — though in this system a peer that exits never rejoins with
// memory of its old wallet, so startingWallet is always 0 in practice).
func (r *Region) Register(i int, peerID, startingWallet int64) {
	r.SetPeerAt(i, peerID)
	r.SetVoteAt(i, block.Vote{PeerID: peerID, Ballot: block.VoteAbsent})
	r.SetWalletAt(i, block.Coin{PeerID: peerID, Count: startingWallet})
}

// Unregister clears slot i back to its free-slot sentinel values.
func (r *Region) Unregister(i int) {
	r.SetPeerAt(i, block.FreeSlot)
	r.SetVoteAt(i, block.Vote{PeerID: block.FreeSlot, Ballot: block.VoteAbsent})
	r.SetWalletAt(i, block.Coin{PeerID: block.FreeSlot, Count: block.FreeSlot})
}
