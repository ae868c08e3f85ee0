package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll(t *testing.T) {
	p := New(Config{Name: "test", MaxWorkers: 3, QueueSize: 2})
	defer p.Stop(time.Second)

	var ran int32
	boom := errors.New("boom")
	tasks := make([]Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = Task{ID: "t", Fn: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			if i == 4 {
				return boom
			}
			if i == 7 {
				panic("bad plant")
			}
			return nil
		}}
	}

	errs := p.RunAll(context.Background(), tasks)
	require.Len(t, errs, 10)
	assert.EqualValues(t, 10, atomic.LoadInt32(&ran))
	assert.ErrorIs(t, errs[4], boom)
	require.Error(t, errs[7])
	assert.Contains(t, errs[7].Error(), "panicked")
	assert.NoError(t, errs[0])

	st := p.Stats()
	assert.EqualValues(t, 10, st.TotalTasks)
	assert.EqualValues(t, 8, st.CompletedTasks)
	assert.EqualValues(t, 2, st.FailedTasks)
	assert.InDelta(t, 80.0, st.SuccessRate(), 0.001)
}

func TestSubmitAfterStop(t *testing.T) {
	p := New(Config{Name: "test", MaxWorkers: 1})
	require.NoError(t, p.Stop(time.Second))

	err := p.Submit(context.Background(), Task{ID: "late", Fn: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, p.TrySubmit(context.Background(), Task{ID: "late"}))

	errs := p.RunAll(context.Background(), []Task{{ID: "late", Fn: func(context.Context) error { return nil }}})
	assert.ErrorIs(t, errs[0], ErrStopped)
}

func TestCanceledContextSkipsQueuedTasks(t *testing.T) {
	p := New(Config{Name: "test", MaxWorkers: 1, QueueSize: 4})
	defer p.Stop(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var ran int32
	tasks := []Task{
		{ID: "first", Fn: func(context.Context) error {
			cancel()
			<-release
			return nil
		}},
		{ID: "second", Fn: func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}},
	}

	done := make(chan []error)
	go func() { done <- p.RunAll(ctx, tasks) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	errs := <-done
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestRunAllRacingStopReturns(t *testing.T) {
	for i := 0; i < 200; i++ {
		p := New(Config{Name: "race", MaxWorkers: 2, QueueSize: 1})
		tasks := make([]Task, 8)
		for j := range tasks {
			tasks[j] = Task{ID: "t", Fn: func(context.Context) error { return nil }}
		}

		done := make(chan []error, 1)
		go func() { done <- p.RunAll(context.Background(), tasks) }()
		_ = p.Stop(time.Second)

		select {
		case errs := <-done:
			for _, err := range errs {
				if err != nil {
					assert.ErrorIs(t, err, ErrStopped)
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("RunAll still waiting after Stop (iteration %d)", i)
		}
	}
}
