package mq_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/mq"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("minermesh-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestSendReceiveRoundTrip(t *testing.T) {
	name := uniqueName(t)
	ln, err := mq.Listen(name)
	require.NoError(t, err)
	defer mq.Unlink(name)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- ln.Accept() }()

	sender, err := mq.Dial(name)
	require.NoError(t, err)
	defer sender.Close()
	require.NoError(t, <-acceptErr)

	want := block.Block{ID: 1, Target: 10, Solution: 20, Winner: 99}
	require.NoError(t, sender.Send(context.Background(), want))

	got, err := ln.Receive()
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Target, got.Target)
	assert.Equal(t, want.Solution, got.Solution)
	assert.Equal(t, want.Winner, got.Winner)

	require.NoError(t, ln.Close())
}

func TestTerminatorRoundTrip(t *testing.T) {
	name := uniqueName(t)
	ln, err := mq.Listen(name)
	require.NoError(t, err)
	defer mq.Unlink(name)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- ln.Accept() }()

	sender, err := mq.Dial(name)
	require.NoError(t, err)
	defer sender.Close()
	require.NoError(t, <-acceptErr)

	require.NoError(t, sender.Send(context.Background(), block.NewTerminator()))

	got, err := ln.Receive()
	require.NoError(t, err)
	assert.True(t, got.Terminator())

	require.NoError(t, ln.Close())
}
