// Package checker receives finished blocks from the miner cluster,
// independently re-verifies each one's proof of work, and pushes the
// result into the monitor ring for the printer to pick up. It never
// trusts the Valid flag a miner already computed for the vote tally;
// the whole point of a second process is an independent check.
package checker

import (
	"github.com/sirupsen/logrus"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/mq"
	"github.com/minermesh/minermesh/internal/monitorregion"
	"github.com/minermesh/minermesh/internal/powhash"
)

// Checker is the receive side of the queue and the producer side of the
// monitor ring.
type Checker struct {
	log     *logrus.Entry
	queue   *mq.Listener
	monitor *monitorregion.Region
}

// New builds a Checker over an already-listening queue and an already-
// opened monitor region.
func New(log *logrus.Entry, queue *mq.Listener, monitor *monitorregion.Region) *Checker {
	return &Checker{log: log, queue: queue, monitor: monitor}
}

// Run accepts the single miner-cluster connection, then loops receiving
// blocks until the terminator arrives, at which point it forwards the
// terminator to the printer and unlinks the queue.
func (c *Checker) Run() error {
	if err := c.queue.Accept(); err != nil {
		return err
	}

	for {
		b, err := c.queue.Receive()
		if err != nil {
			return err
		}

		if b.Terminator() {
			c.log.Info("terminator received, shutting down")
			c.monitor.Push(b, nil)
			return c.queue.Close()
		}

		verified := c.verify(b)
		c.log.WithFields(logrus.Fields{
			"id":    verified.ID,
			"valid": verified.Valid,
		}).Info("block checked")
		c.monitor.Push(verified, nil)
	}
}

// verify recomputes the hash of the posted solution against the block's
// target, overriding Valid with this process's own answer rather than
// trusting whatever the miner cluster reported. The vote tally
// (TotalVotes/Approvals) travels with the block untouched; this field
// answers a different question, whether the solution is actually a
// preimage of the target.
func (c *Checker) verify(b block.Block) block.Block {
	b.Valid = powhash.Hash(b.Solution) == b.Target
	return b
}
