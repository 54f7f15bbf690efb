// Command monitor launches the checker and printer as two independent
// processes and waits for both to finish. Go has no fork(2), so the
// launcher re-execs itself with a hidden --role flag to become each
// child, the same self-exec trick used for subprocess workers that need
// a clean address space rather than a forked one.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/minermesh/minermesh/internal/checker"
	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/logging"
	"github.com/minermesh/minermesh/internal/monitorregion"
	"github.com/minermesh/minermesh/internal/mq"
	"github.com/minermesh/minermesh/internal/printer"
)

var role = flag.String("role", "", "internal use only: child process role")

func main() {
	flag.Parse()
	logRole := "monitor"
	if *role != "" {
		logRole = *role
	}
	log := logging.New(logRole)

	switch *role {
	case "checker":
		runChecker(log)
	case "printer":
		runPrinter(log)
	case "":
		runLauncher(log)
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}
}

// runLauncher creates the monitor region (so its initial semaphore
// state exists before either child opens it as a joiner), spawns the
// checker and printer as child processes, and waits for both.
func runLauncher(log *logrus.Entry) {
	region, err := monitorregion.Open(config.MonitorRegionName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	checkerCmd := exec.Command(os.Args[0], "--role=checker")
	checkerCmd.Stdout = os.Stdout
	checkerCmd.Stderr = os.Stderr

	printerCmd := exec.Command(os.Args[0], "--role=printer")
	printerCmd.Stdout = os.Stdout
	printerCmd.Stderr = os.Stderr

	if err := checkerCmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := printerCmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	printerErr := printerCmd.Wait()
	checkerErr := checkerCmd.Wait()
	if printerErr != nil {
		fmt.Fprintln(os.Stderr, printerErr)
	}
	if checkerErr != nil {
		fmt.Fprintln(os.Stderr, checkerErr)
	}

	// The launcher owns the MonitorRegion's lifetime, so it unlinks only
	// after both children, which merely mapped it, have exited.
	_ = region.Unlink()
	_ = region.Close()
}

func runChecker(log *logrus.Entry) {
	queue, err := mq.Listen(config.QueueName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	region, err := monitorregion.Open(config.MonitorRegionName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c := checker.New(log, queue, region)
	if err := c.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = region.Close()
}

func runPrinter(log *logrus.Entry) {
	region, err := monitorregion.Open(config.MonitorRegionName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p := printer.New(log, region, os.Stdout)
	if err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = region.Close()
}
