// Package miner drives a single mining process through rounds: join the
// roster (waiting out an in-progress round if one is active), search for
// a solution, race for the winner role, and either run the winner's
// finalize/ship/rotate sequence or cast a vote as a bystander. All
// dependencies (region, queue, signal controller) are injected, and the
// semaphore bracketing stays visible at the call sites rather than
// hiding inside a facade.
package miner

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/minerregion"
	"github.com/minermesh/minermesh/internal/mq"
	"github.com/minermesh/minermesh/internal/powhash"
	"github.com/minermesh/minermesh/internal/signals"
)

const (
	sigRoundStart = syscall.SIGUSR1
	sigVoteNow    = syscall.SIGUSR2
)

// Miner is one mining process's view of the system: the shared roster,
// its outbound connection to the checker, its signal demultiplexer, and
// its own identity.
type Miner struct {
	log     *logrus.Entry
	region  *minerregion.Region
	sender  *mq.Sender
	sig     *signals.Controller
	pid     int64
	threads int
}

// New builds a Miner ready to Run.
func New(log *logrus.Entry, region *minerregion.Region, sender *mq.Sender, sig *signals.Controller, pid int64, threads int) *Miner {
	return &Miner{log: log, region: region, sender: sender, sig: sig, pid: pid, threads: threads}
}

// Run registers the miner, then loops rounds until a shutdown signal
// arrives, at which point it unregisters and, if it was the last peer
// standing, tears down the miner region and the queue.
func (m *Miner) Run() error {
	if err := m.register(); err != nil {
		return err
	}
	if m.region.IsInitializer() {
		m.sig.SelfRoundStart()
	}

	for {
		m.log.Info("waiting for round start")
		select {
		case <-m.sig.Shutdown:
			return m.leave()
		case <-m.sig.RoundStart:
		}
		m.closeEntryGate()
		if err := m.playRound(); err != nil {
			return err
		}
	}
}

// register claims a roster slot, waiting at the admission gate if a
// round is already underway so a half-joined peer never participates in
// a round it didn't see the start of.
func (m *Miner) register() error {
	m.region.EntryMutex.Wait(nil)
	canEnter := m.region.CanEnter()
	if !canEnter {
		m.region.SetWaitersCount(m.region.WaitersCount() + 1)
	}
	m.region.EntryMutex.Post()

	if !canEnter {
		if !m.region.EntryGate.Wait(m.sig.Shutdown) {
			// Shutdown while queued: take this peer back out of the
			// waiter count so the next winner doesn't over-post the gate.
			m.region.EntryMutex.Wait(nil)
			if n := m.region.WaitersCount(); n > 0 {
				m.region.SetWaitersCount(n - 1)
			}
			m.region.EntryMutex.Post()
			return nil
		}
	}

	m.region.Mutex.Wait(nil)
	slot := m.region.FreeSlot()
	if slot >= 0 {
		m.region.Register(slot, m.pid, 0)
	}
	m.region.Mutex.Post()

	m.log.WithField("slot", slot).Info("joined roster")
	return nil
}

// closeEntryGate marks the roster closed to new joiners for the
// duration of the round about to start.
func (m *Miner) closeEntryGate() {
	m.region.EntryMutex.Wait(nil)
	m.region.SetCanEnter(false)
	m.region.EntryMutex.Post()
}

// openEntryGate releases every peer that queued up at the gate while
// this round ran and reopens admission for the next one.
func (m *Miner) openEntryGate() {
	m.region.EntryMutex.Wait(nil)
	if n := m.region.WaitersCount(); n > 0 {
		m.region.EntryGate.PostN(int(n))
		m.region.SetWaitersCount(0)
	}
	m.region.SetCanEnter(true)
	m.region.EntryMutex.Post()
}

// playRound runs one round to completion: search, race for the winner
// role, then either finalize the round or vote on someone else's
// solution.
func (m *Miner) playRound() error {
	cur := m.region.CurrentBlock()
	target := cur.Target
	m.log.WithFields(logrus.Fields{"block": cur.ID, "target": target}).Info("mining")

	// A VOTE_NOW that arrived while this peer idled between rounds
	// belongs to an already-finished round; starting the search with it
	// pending would cancel the search immediately.
	select {
	case <-m.sig.VoteNow:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	var voteNowFired int32
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-m.sig.VoteNow:
			atomic.StoreInt32(&voteNowFired, 1)
			cancel()
		case <-m.sig.Shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	solution, found := search(ctx, target, m.threads)

	// Join the watcher before deciding win-or-vote: once it has exited,
	// voteNowFired is final and nothing else competes with voterProtocol
	// for the buffered VoteNow token.
	cancel()
	<-watcherDone

	if found {
		won := m.region.WinnerSem.TryWait()
		if won && atomic.LoadInt32(&voteNowFired) == 0 {
			return m.winnerProtocol(solution)
		}
		if won {
			m.region.WinnerSem.Post()
		}
	}

	return m.voterProtocol(&voteNowFired)
}

// winnerProtocol runs the three critical sections a winner owns:
// finalize (record the solution, broadcast the vote call, gather
// ballots), ship (hand the finished block to the checker), and rotate
// (advance the roster to the next block). Splitting ship out of its own
// critical section keeps a slow queue send from holding the roster mutex
// while other peers want to vote or join.
func (m *Miner) winnerProtocol(solution int64) error {
	m.log.WithField("solution", solution).Info("won election, calling for votes")

	var peers []int64

	m.region.Mutex.Wait(nil)
	peers = m.region.ActivePeers()
	for _, p := range peers {
		i := m.region.IndexOf(p)
		m.region.SetVoteAt(i, block.Vote{PeerID: p, Ballot: block.VoteAbsent})
	}
	cur := m.region.CurrentBlock()
	cur.Solution = solution
	cur.Winner = m.pid
	m.region.SetCurrentBlock(cur)
	if i := m.region.IndexOf(m.pid); i >= 0 {
		m.region.SetVoteAt(i, block.Vote{PeerID: m.pid, Ballot: block.VoteApprove})
	}
	m.region.Mutex.Post()

	signals.Broadcast(m.log, peers, m.pid, sigVoteNow)

	finished := m.collectVotes(len(peers))

	m.region.Mutex.Wait(nil)
	finalized := m.finalize(finished)
	m.region.Mutex.Post()

	if err := m.sender.Send(context.Background(), finalized); err != nil {
		_ = m.sender.Close()
		return err
	}

	m.region.Mutex.Wait(nil)
	m.rotate(finalized)
	m.region.Mutex.Post()

	m.region.WinnerSem.Post()
	m.openEntryGate()
	signals.Broadcast(m.log, peers, m.pid, sigRoundStart)
	// Nobody signals the winner itself; it enters the next round directly,
	// the same way the region's creator enters round 1.
	m.sig.SelfRoundStart()
	return nil
}

// collectVotes polls, under Mutex, until every active peer has voted or
// the quorum timeout elapses, whichever comes first. A timeout is not an
// error: it returns however many ballots actually arrived rather than
// the count it was hoping for, and the winner tallies those.
func (m *Miner) collectVotes(wanted int) int {
	deadline := time.Duration(config.VoteQuorumTimeoutMillis) * time.Millisecond
	interval := time.Duration(config.PollIntervalMillis) * time.Millisecond
	elapsed := time.Duration(0)

	cast := 0
	for elapsed < deadline {
		m.region.Mutex.Wait(nil)
		cast = 0
		for _, p := range m.region.ActivePeers() {
			if v := m.region.VoteAt(m.region.IndexOf(p)); v.Ballot != block.VoteAbsent {
				cast++
			}
		}
		m.region.Mutex.Post()
		if cast >= wanted {
			return cast
		}
		time.Sleep(interval)
		elapsed += interval
	}
	return cast
}

// finalize tallies ballots, credits the winner's wallet when the block
// is valid, and snapshots the wallet table into the block before it
// leaves the roster. Caller must hold Mutex.
func (m *Miner) finalize(totalVotes int) block.Block {
	cur := m.region.CurrentBlock()
	peers := m.region.ActivePeers()

	approvals := 0
	for _, p := range peers {
		if v := m.region.VoteAt(m.region.IndexOf(p)); v.Ballot == block.VoteApprove {
			approvals++
		}
	}

	cur.TotalVotes = int64(totalVotes)
	cur.Approvals = int64(approvals)
	cur.Valid = len(peers) > 0 && approvals*2 > len(peers)

	if cur.Valid {
		if i := m.region.IndexOf(m.pid); i >= 0 {
			w := m.region.WalletAt(i)
			w.Count++
			m.region.SetWalletAt(i, w)
		}
	}

	for _, p := range peers {
		i := m.region.IndexOf(p)
		cur.Coins[i] = m.region.WalletAt(i)
	}

	m.region.SetCurrentBlock(cur)
	return cur
}

// rotate retires the just-finished block to "previous" and opens the
// next one, seeding its target from the retired block's solution.
// Caller must hold Mutex.
func (m *Miner) rotate(finished block.Block) {
	m.region.SetPreviousBlock(finished)

	next := block.Block{ID: finished.ID + 1, Target: finished.Solution, Winner: block.FreeSlot, TotalVotes: -1, Approvals: -1}
	m.region.SetCurrentBlock(next)

	for _, p := range m.region.ActivePeers() {
		i := m.region.IndexOf(p)
		m.region.SetVoteAt(i, block.Vote{PeerID: p, Ballot: block.VoteAbsent})
	}
}

// voterProtocol waits for the vote-now call (unless it already arrived
// while this peer was still searching), then casts a ballot based on an
// independent recomputation of the posted solution.
func (m *Miner) voterProtocol(voteNowFired *int32) error {
	if atomic.LoadInt32(voteNowFired) == 0 {
		select {
		case <-m.sig.VoteNow:
		case <-m.sig.Shutdown:
			return nil
		}
	}

	m.region.Mutex.Wait(nil)
	cur := m.region.CurrentBlock()
	approve := powhash.Hash(cur.Solution) == cur.Target
	if i := m.region.IndexOf(m.pid); i >= 0 {
		ballot := block.Vote{PeerID: m.pid, Ballot: block.VoteReject}
		if approve {
			ballot.Ballot = block.VoteApprove
		}
		m.region.SetVoteAt(i, ballot)
	}
	m.region.Mutex.Post()

	m.log.WithFields(logrus.Fields{"block": cur.ID, "approve": approve}).Info("voted")
	return nil
}

// leave unregisters this peer. The last peer to leave ships the
// terminator block and unlinks the miner region and the queue; the
// monitor region belongs to the monitor launcher.
func (m *Miner) leave() error {
	m.log.Info("shutting down")

	m.region.Mutex.Wait(nil)
	if i := m.region.IndexOf(m.pid); i >= 0 {
		m.region.Unregister(i)
	}
	remaining := m.region.CountActive()
	m.region.Mutex.Post()

	m.log.WithField("remaining", remaining).Info("left roster")

	if remaining == 0 {
		if err := m.sender.Send(context.Background(), block.NewTerminator()); err != nil {
			m.log.WithError(err).Warn("terminator send failed")
		}
		_ = m.sender.Close()
		_ = mq.Unlink(config.QueueName)
		_ = m.region.Unlink()
		return m.region.Close()
	}

	_ = m.sender.Close()
	return m.region.Close()
}
