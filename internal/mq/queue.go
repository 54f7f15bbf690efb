// Package mq implements the miner→checker message queue (one Block per
// message, bounded in-flight depth) as a Unix-domain SOCK_SEQPACKET
// socket — Go's net package exposes this as network "unixpacket": a
// named, connection-oriented, message-boundary-preserving channel, the
// closest native analog of a POSIX message queue (there is no cgo-free
// mq_open binding). In-flight depth is bounded by the sender's kernel
// socket buffer, sized to hold QueueMaxInFlight encoded blocks.
package mq

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
)

func path(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}

// Listener is the checker's receive end, the mq_open(O_CREAT|O_RDONLY)
// analog.
type Listener struct {
	ln   *net.UnixListener
	conn *net.UnixConn
}

// Listen creates the named queue; Accept then waits for the first (only)
// sender to connect. The protocol has exactly one producer per process lifetime
// (the miner cluster as a whole, serialized through the winner role), so
// a single accepted connection is sufficient.
func Listen(name string) (*Listener, error) {
	p := path(name)
	_ = os.Remove(p)
	addr := &net.UnixAddr{Name: p, Net: "unixpacket"}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "mq: listen %s", p)
	}
	_ = os.Chmod(p, 0o666)
	return &Listener{ln: ln}, nil
}

// Accept blocks for the sender's connection. Call once after Listen.
func (l *Listener) Accept() error {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return errors.Wrap(err, "mq: accept")
	}
	l.conn = conn
	return nil
}

// Receive blocks for one Block. EINTR-style interruption is handled by
// net's own retry semantics; the checker has no shutdown deadline and
// relies on the sentinel block, so Receive never takes a cancellation
// channel.
func (l *Listener) Receive() (block.Block, error) {
	buf := make([]byte, block.Size)
	var b block.Block
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			return b, errors.Wrap(err, "mq: receive")
		}
		if n < block.Size {
			// Short message from a mid-write peer; spin once more.
			continue
		}
		if err := b.UnmarshalBinary(buf[:n]); err != nil {
			return b, errors.Wrap(err, "mq: decode")
		}
		return b, nil
	}
}

// Close closes the accepted connection and the listener, which removes
// the queue's backing socket file.
func (l *Listener) Close() error {
	var err error
	if l.conn != nil {
		err = l.conn.Close()
	}
	if cerr := l.ln.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return errors.Wrap(err, "mq: close")
}

// Unlink removes the queue's backing socket file, called by whichever
// side is responsible for final teardown.
func Unlink(name string) error {
	return errors.Wrap(os.Remove(path(name)), "mq: unlink")
}

// Sender is a miner's send end, the mq_open(O_RDWR) analog.
type Sender struct {
	conn *net.UnixConn
}

// Dial opens the queue for sending. The Checker may not have called
// Listen yet when a miner starts; callers (cmd/miner's dialWithRetry)
// retry this call briefly rather than Dial itself looping.
func Dial(name string) (*Sender, error) {
	addr := &net.UnixAddr{Name: path(name), Net: "unixpacket"}
	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "mq: dial %s", name)
	}
	// The kernel send buffer is the queue depth: once QueueMaxInFlight
	// encoded blocks sit unconsumed by the receiver, the next Write
	// blocks. The kernel rounds the figure up to its own minimum, so the
	// cap is approximate but real.
	if err := conn.SetWriteBuffer(config.QueueMaxInFlight * block.Size); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "mq: size send buffer")
	}
	return &Sender{conn: conn}, nil
}

// Send ships one Block, blocking while the in-flight cap is reached. A
// ctx deadline, when set, bounds that wait.
func (s *Sender) Send(ctx context.Context, b block.Block) error {
	encoded, err := b.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "mq: encode")
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return errors.Wrap(err, "mq: set send deadline")
		}
	}
	if _, err := s.conn.Write(encoded); err != nil {
		return errors.Wrap(err, "mq: send")
	}
	return nil
}

// Close closes the sender's connection. A queue send failure is fatal
// for that miner; callers close and exit.
func (s *Sender) Close() error {
	return errors.Wrap(s.conn.Close(), "mq: close sender")
}
