// Command miner runs one mining process: it joins the shared roster,
// mines for the configured number of seconds, and exits cleanly on
// SIGALRM (its own deadline) or SIGINT (an operator-requested stop).
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/logging"
	"github.com/minermesh/minermesh/internal/miner"
	"github.com/minermesh/minermesh/internal/minerregion"
	"github.com/minermesh/minermesh/internal/mq"
	"github.com/minermesh/minermesh/internal/signals"
)

func main() {
	flag.Parse()
	seconds, threads, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: miner <seconds> <threads>")
		os.Exit(1)
	}

	log := logging.New("miner")

	region, err := minerregion.Open(config.MinerRegionName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sender, err := dialWithRetry(config.QueueName, 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sig := signals.New(log)
	time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		_ = syscall.Kill(os.Getpid(), syscall.SIGALRM)
	})

	m := miner.New(log, region, sender, sig, int64(os.Getpid()), threads)
	if err := m.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseArgs validates the two required positional arguments with a
// check after each strconv rather than flag-package parsing (there are
// no optional flags here, just two required ints).
func parseArgs(args []string) (seconds, threads int, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected exactly 2 arguments, got %d", len(args))
	}
	seconds, err = strconv.Atoi(args[0])
	if err != nil || seconds <= 0 {
		return 0, 0, fmt.Errorf("invalid seconds value %q", args[0])
	}
	threads, err = strconv.Atoi(args[1])
	if err != nil || threads <= 0 || threads > config.MaxThreads {
		return 0, 0, fmt.Errorf("invalid threads value %q (must be 1..%d)", args[1], config.MaxThreads)
	}
	return seconds, threads, nil
}

// dialWithRetry accommodates startup ordering: a miner may win the race
// to start before the monitor's checker process has called mq.Listen.
func dialWithRetry(name string, timeout time.Duration) (*mq.Sender, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		sender, err := mq.Dial(name)
		if err == nil {
			return sender, nil
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("dial %s: %w", name, lastErr)
}
