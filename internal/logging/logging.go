// Package logging builds the structured logger shared by every process
// role in this system: one base logger per process, tagged with role
// and pid (a miner's peer id is its pid).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger for the given process role ("miner", "checker",
// "printer"), writing to stderr so stdout stays reserved for the
// printer's block output.
func New(role string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l.WithFields(logrus.Fields{
		"role": role,
		"pid":  os.Getpid(),
	})
}
