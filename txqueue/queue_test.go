package txqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsenet/miner/chain"
)

func TestQueue_SuccessDeliversOutcome(t *testing.T) {
	q := New(nil)

	ch := q.Enqueue(context.Background(), func(ctx context.Context) (chain.Outcome, error) {
		return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
	})

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, chain.OutcomeSuccess, res.Outcome.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	q := New(nil)

	var calls int
	start := time.Now()
	ch := q.Enqueue(context.Background(), func(ctx context.Context) (chain.Outcome, error) {
		calls++
		if calls < 3 {
			return chain.Outcome{}, errors.New("transient")
		}
		return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
	})

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		elapsed := time.Since(start)
		assert.Equal(t, 3, calls)
		// Two backoff sleeps: ~1s then ~2s.
		assert.GreaterOrEqual(t, elapsed, 3*time.Second)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for retried result")
	}
}

func TestQueue_AcceptableErrorSuppressed(t *testing.T) {
	q := New(nil)
	set := NewAcceptableSet("WorkerExists")

	exec := set.Wrap(func(ctx context.Context) (chain.Outcome, error) {
		return chain.Outcome{}, fakeDispatchError{variant: "WorkerExists"}
	})

	ch := q.Enqueue(context.Background(), exec)

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, chain.OutcomeSuccess, res.Outcome.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suppressed-error result")
	}
}

func TestQueue_RetryCapExhausted(t *testing.T) {
	q := New(nil)

	var calls int
	exec := func(ctx context.Context) (chain.Outcome, error) {
		calls++
		return chain.Outcome{}, errors.New("permanent")
	}

	it := &item{ctx: context.Background(), executor: exec, respond: make(chan Result, 1), retryCount: retryCap, id: "test"}
	q.execute(it)

	res := <-it.respond
	assert.Error(t, res.Err)
	assert.Equal(t, 1, calls)
}

type fakeDispatchError struct{ variant string }

func (e fakeDispatchError) Error() string      { return "dispatch error: " + e.variant }
func (e fakeDispatchError) VariantName() string { return e.variant }
