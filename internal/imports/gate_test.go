package imports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGate_AcquireRelease(t *testing.T) {
	gate := NewGate(2, time.Second)

	if got := gate.Active(); got != 0 {
		t.Errorf("initial Active = %d, want 0", got)
	}
	if got := gate.Available(); got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	ctx := context.Background()
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if got := gate.Active(); got != 2 {
		t.Errorf("after acquires, Active = %d, want 2", got)
	}
	if got := gate.Available(); got != 0 {
		t.Errorf("after acquires, Available = %d, want 0", got)
	}

	gate.Release()
	gate.Release()

	if got := gate.Active(); got != 0 {
		t.Errorf("after releases, Active = %d, want 0", got)
	}
}

func TestGate_BusyWhenFull(t *testing.T) {
	gate := NewGate(1, 50*time.Millisecond)

	ctx := context.Background()
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := gate.Acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("rejected too fast: %v", elapsed)
	}

	gate.Release()
}

func TestGate_ContextCancelled(t *testing.T) {
	gate := NewGate(1, time.Second)

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	gate.Release()
}

func TestGate_TryAcquire(t *testing.T) {
	gate := NewGate(1, time.Second)

	if !gate.TryAcquire() {
		t.Fatal("TryAcquire on empty gate failed")
	}
	if gate.TryAcquire() {
		t.Fatal("TryAcquire on full gate succeeded")
	}

	gate.Release()
	if !gate.TryAcquire() {
		t.Fatal("TryAcquire after Release failed")
	}
	gate.Release()
}

func TestGate_Defaults(t *testing.T) {
	gate := NewGate(0, 0)
	if got := gate.Capacity(); got != DefaultMaxConcurrentImports {
		t.Errorf("Capacity = %d, want %d", got, DefaultMaxConcurrentImports)
	}
}

func TestGate_WaitForDrain(t *testing.T) {
	gate := NewGate(2, time.Second)

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- gate.WaitForDrain(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	gate.Release()

	if err := <-done; err != nil {
		t.Errorf("WaitForDrain: %v", err)
	}
}

func TestGate_Concurrent(t *testing.T) {
	gate := NewGate(3, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if got := gate.Active(); got > 3 {
				t.Errorf("Active = %d, exceeds capacity", got)
			}
			time.Sleep(time.Millisecond)
			gate.Release()
		}()
	}
	wg.Wait()

	if got := gate.Active(); got != 0 {
		t.Errorf("final Active = %d, want 0", got)
	}

	status := gate.Status()
	if status.Capacity != 3 || status.Active != 0 || status.Available != 3 {
		t.Errorf("Status = %+v", status)
	}
}
