// Package signals wires the cross-process signal protocol
// (SIGUSR1=ROUND_START, SIGUSR2=VOTE_NOW, SIGINT/SIGALRM=shutdown)
// using os/signal and syscall. Instead of global flags set from signal
// handlers, delivery is demultiplexed into per-process channels a state
// machine can observe at every suspension point.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Controller demultiplexes the four signals this system cares about into
// three channels a miner's state machine selects on.
type Controller struct {
	RoundStart chan struct{} // buffered 1: lossless, coalescing
	VoteNow    chan struct{} // buffered 1: lossless, coalescing
	Shutdown   chan struct{} // closed exactly once, on SIGINT or SIGALRM

	log    *logrus.Entry
	raw    chan os.Signal
	closer sync.Once
}

// New installs handlers for SIGUSR1, SIGUSR2, SIGINT, and SIGALRM and
// starts the demultiplexing goroutine. Only these four participate in
// the protocol; everything else keeps its default disposition.
func New(log *logrus.Entry) *Controller {
	c := &Controller{
		RoundStart: make(chan struct{}, 1),
		VoteNow:    make(chan struct{}, 1),
		Shutdown:   make(chan struct{}),
		log:        log,
		raw:        make(chan os.Signal, 8),
	}
	signal.Notify(c.raw, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGALRM)
	go c.pump()
	return c
}

func (c *Controller) pump() {
	for sig := range c.raw {
		switch sig {
		case syscall.SIGUSR1:
			select {
			case c.RoundStart <- struct{}{}:
			default:
			}
		case syscall.SIGUSR2:
			select {
			case c.VoteNow <- struct{}{}:
			default:
			}
		case syscall.SIGINT, syscall.SIGALRM:
			c.triggerShutdown()
		}
	}
}

func (c *Controller) triggerShutdown() {
	c.closer.Do(func() { close(c.Shutdown) })
}

// SelfRoundStart delivers ROUND_START to this same process without a
// real kill(2): the region's creator enters round 1 immediately, and a
// winner enters the round it just opened, neither via an actual signal.
func (c *Controller) SelfRoundStart() {
	select {
	case c.RoundStart <- struct{}{}:
	default:
	}
}

// Stop unregisters signal delivery. Safe to call once at process exit.
func (c *Controller) Stop() {
	signal.Stop(c.raw)
	close(c.raw)
}

// Send delivers sig to pid, treating ESRCH as a non-fatal "peer
// disappeared" rather than an error.
func Send(log *logrus.Entry, pid int64, sig syscall.Signal) {
	if err := syscall.Kill(int(pid), sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			log.WithField("peer", pid).Debug("signal: peer already gone")
			return
		}
		log.WithError(err).WithField("peer", pid).Warn("signal: delivery failed")
	}
}

// Broadcast sends sig to every peer in peers except selfPID.
func Broadcast(log *logrus.Entry, peers []int64, selfPID int64, sig syscall.Signal) {
	for _, p := range peers {
		if p != selfPID {
			Send(log, p, sig)
		}
	}
}
