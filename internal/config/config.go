// Package config holds the fixed sizing constants and IPC names shared
// by every process role. None of these are runtime-configurable: the
// roster, ring buffer, and thread count are all fixed-size by design.
package config

const (
	// MaxMiners bounds the miner roster (peers/votes/wallets slots).
	MaxMiners = 50

	// MaxThreads bounds the thread count a single miner process may run.
	MaxThreads = 100

	// MaxBlocks sizes the monitor's ring buffer.
	MaxBlocks = 6

	// PowLimit is the bounded integer domain [0, PowLimit) the proof-of-
	// work hash searches over.
	PowLimit = 1_000_000

	// ExitCode is the sentinel solution value marking the terminator block.
	ExitCode = 10_000_000

	// VoteQuorumTimeoutMillis bounds the winner's vote-collection poll.
	VoteQuorumTimeoutMillis = 500

	// PollIntervalMillis is the bounded-spin sleep used by every polling
	// wait in this system: admission spin, semaphore spin, vote quorum poll.
	PollIntervalMillis = 1
)

const (
	// MinerRegionName is the shared-memory object backing MinerRegion.
	MinerRegionName = "red_de_mineros"

	// MonitorRegionName is the shared-memory object backing MonitorRegion.
	MonitorRegionName = "monitor"

	// QueueName is the Miner→Checker message queue.
	QueueName = "cola_mensajes_con_monitor"

	// QueueMaxInFlight caps in-flight (unconsumed) messages on the queue.
	QueueMaxInFlight = 10
)
