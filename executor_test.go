package brevent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func shutdownExecutor(t *testing.T, e *Executor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestExecutor_RunsInOrder(t *testing.T) {
	e := NewExecutor(8)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 5; i++ {
		i := i
		if err := e.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	shutdownExecutor(t, e)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("ran %d tasks, want 5", len(order))
	}
}

func TestExecutor_SingleWorker(t *testing.T) {
	e := NewExecutor(8)
	defer shutdownExecutor(t, e)

	var (
		mu      sync.Mutex
		running int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		_ = e.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
}

func TestExecutor_SkipsCancelledTasks(t *testing.T) {
	e := NewExecutor(8)
	defer shutdownExecutor(t, e)

	release := make(chan struct{})
	_ = e.Submit(context.Background(), func(context.Context) { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	if err := e.Submit(ctx, func(context.Context) { ran <- struct{}{} }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	cancel()
	close(release)

	done := make(chan struct{})
	_ = e.Submit(context.Background(), func(context.Context) { close(done) })
	<-done

	select {
	case <-ran:
		t.Error("cancelled task ran")
	default:
	}
}

func TestExecutor_SubmitAfterShutdown(t *testing.T) {
	e := NewExecutor(1)
	shutdownExecutor(t, e)

	err := e.Submit(context.Background(), func(context.Context) {})
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("expected ErrExecutorClosed, got %v", err)
	}

	// Shutdown is idempotent
	shutdownExecutor(t, e)
}

func TestExecutor_SubmitBlocksWhenFull(t *testing.T) {
	e := NewExecutor(1)
	release := make(chan struct{})
	defer func() {
		close(release)
		shutdownExecutor(t, e)
	}()

	started := make(chan struct{})
	_ = e.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	})
	<-started
	_ = e.Submit(context.Background(), func(context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Submit(ctx, func(context.Context) {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestExecutor_ShutdownWaitsForRunningTask(t *testing.T) {
	e := NewExecutor(1)

	started := make(chan struct{})
	release := make(chan struct{})
	_ = e.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}

	close(release)
	shutdownExecutor(t, e)
}
