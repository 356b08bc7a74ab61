package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAllSucceed(t *testing.T) {
	var count int64
	res := Run(context.Background(), Config{
		JobCount:   20,
		MaxWorkers: 4,
		Job: func(ctx context.Context, idx int) Status {
			atomic.AddInt64(&count, 1)
			return Succeeded
		},
	})
	if res.Succeeded != 20 || res.Failed != 0 || !res.OK() {
		t.Fatalf("got %+v", res)
	}
	if count != 20 {
		t.Fatalf("count = %d, want 20", count)
	}
}

// TestDeadWorker mirrors boundary Scenario F: one worker dies mid-queue;
// surviving workers pick up the remainder; the queue reports
// (N-1 succeeded, 1 failed).
func TestDeadWorker(t *testing.T) {
	const n = 50
	var killed int32
	res := Run(context.Background(), Config{
		JobCount:   n,
		MaxWorkers: 4,
		Job: func(ctx context.Context, idx int) Status {
			if idx == 0 {
				if atomic.CompareAndSwapInt32(&killed, 0, 1) {
					panic("simulated worker death")
				}
			}
			return Succeeded
		},
	})
	if res.Succeeded != n-1 {
		t.Errorf("Succeeded = %d, want %d", res.Succeeded, n-1)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if res.OK() {
		t.Errorf("OK() should be false when a worker died")
	}
}

// TestStragglerAvoidance mirrors boundary Scenario E: a large job must
// start immediately (not after small jobs drain) when WorkEstimate sorts
// it first.
func TestStragglerAvoidance(t *testing.T) {
	estimates := []float64{100, 1, 1, 1, 1, 1, 1, 1}
	var started [8]time.Time
	start := time.Now()

	Run(context.Background(), Config{
		JobCount:   8,
		MaxWorkers: 4,
		WorkEstimate: func(i int) float64 {
			return estimates[i]
		},
		Job: func(ctx context.Context, idx int) Status {
			started[idx] = time.Now()
			if estimates[idx] == 100 {
				time.Sleep(30 * time.Millisecond)
			}
			return Succeeded
		},
	})

	if started[0].IsZero() {
		t.Fatal("large job never started")
	}
	if d := started[0].Sub(start); d > 15*time.Millisecond {
		t.Errorf("large job started after %v, expected near-immediate dispatch", d)
	}
}

func TestAllWorkersDieEarlyReturn(t *testing.T) {
	res := Run(context.Background(), Config{
		JobCount:   10,
		MaxWorkers: 3,
		Init: func(ctx context.Context, workerID int) error {
			return context.DeadlineExceeded
		},
		Job: func(ctx context.Context, idx int) Status {
			return Succeeded
		},
	})
	if res.OK() {
		t.Fatalf("expected failure when all workers fail init, got %+v", res)
	}
	if res.Succeeded != 0 {
		t.Errorf("Succeeded = %d, want 0", res.Succeeded)
	}
}
