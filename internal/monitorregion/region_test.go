package monitorregion_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/monitorregion"
)

func newRegion(t *testing.T) *monitorregion.Region {
	t.Helper()
	return monitorregion.NewFromBytes(make([]byte, monitorregion.Size))
}

func TestPushPopRoundTrip(t *testing.T) {
	r := newRegion(t)
	b := block.Block{ID: 3, Target: 10, Solution: 20}

	require.True(t, r.Push(b, nil))
	got, ok := r.Pop(nil)
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, b.Target, got.Target)
	assert.Equal(t, b.Solution, got.Solution)
}

func TestPushBlocksWhenFull(t *testing.T) {
	r := newRegion(t)
	for i := 0; i < config.MaxBlocks; i++ {
		require.True(t, r.Push(block.Block{ID: int64(i)}, nil))
	}

	cancel := make(chan struct{})
	done := make(chan bool, 1)
	go func() { done <- r.Push(block.Block{ID: 999}, cancel) }()

	close(cancel)
	select {
	case ok := <-done:
		assert.False(t, ok, "Push must not succeed once the ring is full")
	case <-time.After(2 * time.Second):
		t.Fatal("Push did not return after cancel")
	}

	// Draining one slot must unblock a fresh Push.
	_, ok := r.Pop(nil)
	require.True(t, ok)
	assert.True(t, r.Push(block.Block{ID: 1000}, nil))
}

// TestRingDiscipline: draining the ring yields every pushed block in
// FIFO order (single producer / single consumer, as the checker/printer
// pairing always is).
func TestRingDiscipline(t *testing.T) {
	r := newRegion(t)
	const n = 4 * config.MaxBlocks

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Push(block.Block{ID: int64(i)}, nil)
		}
	}()

	for i := 0; i < n; i++ {
		b, ok := r.Pop(nil)
		require.True(t, ok)
		assert.Equal(t, int64(i), b.ID, "ring must preserve FIFO order")
	}
	wg.Wait()
}

func TestTerminatorFlowsThroughRing(t *testing.T) {
	r := newRegion(t)
	require.True(t, r.Push(block.NewTerminator(), nil))
	got, ok := r.Pop(nil)
	require.True(t, ok)
	assert.True(t, got.Terminator())
}
