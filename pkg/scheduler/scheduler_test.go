package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/checkpoint"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/worker"
)

func newTestScheduler(t *testing.T, maxRetries int) (*Scheduler, *checkpoint.Store) {
	t.Helper()
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	return New(store, worker.NewInvoker(0), maxRetries, nil, nil), store
}

func inputs(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"x":%d}`, i))
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	sched, _ := newTestScheduler(t, 3)
	cp := checkpoint.NewCheckpoint(inputs(3))

	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		return data, nil
	}

	result, err := sched.Run(context.Background(), cp, 2, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Awaiting)
	for _, it := range cp.Items {
		assert.Equal(t, checkpoint.StatusCompleted, it.Status)
	}
}

func TestRunRetryExhaustion(t *testing.T) {
	sched, _ := newTestScheduler(t, 2)
	cp := checkpoint.NewCheckpoint(inputs(1))

	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		return nil, fmt.Errorf("always fails")
	}

	// First run: one attempt, still eligible (1 < 2).
	result, err := sched.Run(context.Background(), cp, 1, fn)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, checkpoint.StatusFailed, cp.Items[0].Status)

	// Second run: second attempt exhausts the retry budget.
	result, err = sched.Run(context.Background(), cp, 1, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, cp.Items[0].Attempts)
}

func TestRunSuspensionDoesNotConsumeRetryBudgetAndIsNotReEligible(t *testing.T) {
	sched, _ := newTestScheduler(t, 3)
	cp := checkpoint.NewCheckpoint(inputs(1))

	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		return nil, worker.Suspend("need a human")
	}

	result, err := sched.Run(context.Background(), cp, 1, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Awaiting)
	assert.Equal(t, 0, cp.Items[0].Attempts)

	// A second run must not re-dispatch an awaiting_agent item.
	var dispatched int32
	fn2 := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		atomic.AddInt32(&dispatched, 1)
		return data, nil
	}
	_, err = sched.Run(context.Background(), cp, 1, fn2)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}

func TestRunTimeoutFailsTheItem(t *testing.T) {
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	sched := New(store, worker.NewInvoker(5), 3, nil, nil)
	cp := checkpoint.NewCheckpoint(inputs(1))

	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result, err := sched.Run(context.Background(), cp, 1, fn)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, cp.Items[0].Status)
	assert.Contains(t, cp.Items[0].LastError, "timed out")
	_ = result
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	const limit = 3
	sched, _ := newTestScheduler(t, 3)
	cp := checkpoint.NewCheckpoint(inputs(8))

	var mu sync.Mutex
	var current, maxSeen int
	arrived := make(chan struct{}, 8)
	release := make(chan struct{})

	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		mu.Lock()
		current++
		if current > maxSeen {
			maxSeen = current
		}
		mu.Unlock()
		arrived <- struct{}{}
		<-release
		mu.Lock()
		current--
		mu.Unlock()
		return data, nil
	}

	go func() {
		// Wait for `limit` workers to pile up at the bound before letting
		// any of them finish, so maxSeen reflects real saturation rather
		// than whatever happened to race in first.
		for i := 0; i < limit; i++ {
			<-arrived
		}
		close(release)
	}()

	result, err := sched.Run(context.Background(), cp, limit, fn)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Completed)
	assert.Equal(t, limit, maxSeen)
}

func TestRunRecoversCrashBetweenRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := checkpoint.NewStore(path)
	cp := checkpoint.NewCheckpoint(inputs(2))
	require.NoError(t, store.Save(cp))

	sched1 := New(store, worker.NewInvoker(0), 3, nil, nil)
	var calls int32
	fn := func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, fmt.Errorf("simulated crash before flush observed by caller")
		}
		return data, nil
	}
	_, err := sched1.Run(context.Background(), cp, 1, fn)
	require.NoError(t, err)

	// Simulate a fresh process: reload the checkpoint from disk.
	reloaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, reloaded)

	sched2 := New(store, worker.NewInvoker(0), 3, nil, nil)
	result, err := sched2.Run(context.Background(), reloaded, 2, func(ctx context.Context, wctx *worker.Context, data json.RawMessage) (json.RawMessage, error) {
		return data, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)
}
