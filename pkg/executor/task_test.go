package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/pkg/executor"
)

func TestTaskReturnsResult(t *testing.T) {
	task := executor.Go(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTaskPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	task := executor.Go(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	})

	_, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTaskRecoversPanic(t *testing.T) {
	task := executor.Go(context.Background(), func(ctx context.Context) (int, error) {
		panic("engine blew up")
	})

	_, err := task.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine blew up")
}

func TestTaskWaitInterruption(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})

	task := executor.Go(context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return 0, ctx.Err()
	})

	<-started
	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.Wait(waitCtx)
	assert.ErrorIs(t, err, context.Canceled)

	// Interrupting the waiter also stops the computation.
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("computation kept running after the waiter was interrupted")
	}
}

func TestTaskCancel(t *testing.T) {
	task := executor.Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not finish after cancel")
	}

	_, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTaskParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := executor.Go(ctx, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not observe parent cancellation")
	}
}
