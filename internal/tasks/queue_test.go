package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(workers int) *Queue {
	q := NewQueue(workers, 5, time.Millisecond, nil)
	q.Start()
	return q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSubmitRunsTask(t *testing.T) {
	q := newTestQueue(2)
	defer q.Stop()

	var ran atomic.Bool
	q.Submit("noop", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	waitFor(t, time.Second, ran.Load)
}

func TestRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(1)
	defer q.Stop()

	var calls atomic.Int32
	done := make(chan struct{})
	q.Submit("flaky", func(ctx context.Context) error {
		if calls.Add(1) <= 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestDropsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(1)
	defer q.Stop()

	var calls atomic.Int32
	q.Submit("doomed", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("permanent")
	})

	// first run plus maxRetries retries, then dropped
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 6 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(6), calls.Load())
}

func TestSubmitNeverBlocks(t *testing.T) {
	q := NewQueue(1, 0, time.Millisecond, nil)
	q.Start()
	defer q.Stop()

	block := make(chan struct{})
	q.Submit("slow", func(ctx context.Context) error {
		<-block
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Submit("burst", func(ctx context.Context) error { return nil })
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while a worker was busy")
	}
	close(block)
}

func TestConcurrentWorkersDrainQueue(t *testing.T) {
	q := newTestQueue(4)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	var count atomic.Int32
	for i := 0; i < n; i++ {
		q.Submit("unit", func(ctx context.Context) error {
			count.Add(1)
			wg.Done()
			return nil
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d/%d tasks ran", count.Load(), n)
	}

	q.Stop()
	require.True(t, q.Wait(time.Second), "workers did not exit after Stop")
}

func TestStopPreventsFurtherRetries(t *testing.T) {
	q := NewQueue(1, 10, 50*time.Millisecond, nil)
	q.Start()

	var calls atomic.Int32
	q.Submit("failing", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("nope")
	})
	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })

	q.Stop()
	require.True(t, q.Wait(time.Second))
	after := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "retry ran after Stop")
}
