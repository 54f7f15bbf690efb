// Package printer consumes verified blocks from the monitor ring and
// renders them to stdout, one paragraph per block, until it sees the
// terminator.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/monitorregion"
)

// Printer is the consumer side of the monitor ring.
type Printer struct {
	log     *logrus.Entry
	monitor *monitorregion.Region
	out     io.Writer
}

// New builds a Printer writing to out (normally os.Stdout).
func New(log *logrus.Entry, monitor *monitorregion.Region, out io.Writer) *Printer {
	return &Printer{log: log, monitor: monitor, out: out}
}

// Run pops blocks until the terminator arrives and returns.
func (p *Printer) Run() error {
	for {
		b, ok := p.monitor.Pop(nil)
		if !ok {
			return nil
		}
		if b.Terminator() {
			fmt.Fprintf(p.out, "[%d] Finishing\n", os.Getpid())
			p.log.Info("terminator received, finishing")
			return nil
		}
		p.print(b)
	}
}

// print renders one block as a fixed-format stanza: id, winner, target,
// the solution annotated with its independently-checked validity, the
// vote tally, and every active peer's wallet.
func (p *Printer) print(b block.Block) {
	validity := "incorrect"
	if b.Valid {
		validity = "validated"
	}

	fmt.Fprintf(p.out, "Id:         %5d\n", b.ID)
	fmt.Fprintf(p.out, "Winner:     %5d\n", b.Winner)
	fmt.Fprintf(p.out, "Target:     %5d\n", b.Target)
	fmt.Fprintf(p.out, "Solution:   %5d (%s)\n", b.Solution, validity)
	fmt.Fprintf(p.out, "Votes:      %d/%d\n", b.TotalVotes, b.Approvals)

	fmt.Fprint(p.out, "Wallets:    ")
	for _, c := range b.Coins {
		// Slots that never held a peer stay zero-valued; pid 0 is not a
		// real process any more than the free-slot sentinel is.
		if c.PeerID != block.FreeSlot && c.PeerID != 0 {
			fmt.Fprintf(p.out, "%d:%d ", c.PeerID, c.Count)
		}
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out)
}
