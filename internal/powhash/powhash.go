// Package powhash provides the proof-of-work hash every miner process
// searches against: a pure, deterministic function over the bounded
// domain [0, config.PowLimit). It stands in for an external hashing
// module the rest of this repo treats as a black box — only its
// interface and domain bound matter to the protocol.
package powhash

import "github.com/minermesh/minermesh/internal/config"

// mulA is coprime to PowLimit, so the map below permutes the domain.
const (
	mulA = 514229
	addB = 123457
)

// Hash is deterministic and permutes [0, PowLimit): every value in the
// domain has exactly one preimage. Since each round's target is the
// previous round's solution, the permutation property is what keeps a
// chain of rounds solvable indefinitely.
func Hash(i int64) int64 {
	x := ((i % config.PowLimit) + config.PowLimit) % config.PowLimit
	return (x*mulA + addB) % config.PowLimit
}
