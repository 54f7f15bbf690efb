package main

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoRoot locates the module root from this test file's own path so the
// `go build` invocations below work regardless of the directory `go
// test` happens to run from.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func buildBinary(t *testing.T, root, pkg, name string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", out, pkg)
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), "build %s: %s", pkg, stderr.String())
	return out
}

// TestSoloMinerScenario: a single miner mines solo for a short
// deadline, approving its own blocks 1/1, while the monitor prints each
// shipped block and exits cleanly once the terminator flows through.
// This spawns real OS processes and is skipped under `go test -short`.
func TestSoloMinerScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real processes; skipped in -short mode")
	}

	root := repoRoot(t)
	minerBin := buildBinary(t, root, "./cmd/miner", "miner")
	monitorBin := buildBinary(t, root, "./cmd/monitor", "monitor")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	monitorCmd := exec.CommandContext(ctx, monitorBin)
	var monitorOut bytes.Buffer
	monitorCmd.Stdout = &monitorOut
	require.NoError(t, monitorCmd.Start())

	// Give the monitor launcher time to create the MonitorRegion and the
	// checker time to open the queue before the miner dials it.
	time.Sleep(300 * time.Millisecond)

	minerCmd := exec.CommandContext(ctx, minerBin, "2", "2")
	require.NoError(t, minerCmd.Run())
	require.NoError(t, monitorCmd.Wait())

	out := monitorOut.String()
	assert.Contains(t, out, "Id:", "expected at least one printed block")
	assert.True(t, strings.Contains(out, "Winner:"))
	assert.True(t, strings.Contains(out, "Votes:      1/1"), "a solo miner always sees unanimous 1/1 approval")
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "Finishing"))
}
