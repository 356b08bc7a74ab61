// Package jobqueue implements the generic parallel executor described in
// spec §4.1: configured with a total job count, a worker cap W, a job
// function, and an optional per-worker initializer. It preserves the
// process-pool protocol's guarantees — at-most-W concurrency, one job per
// worker at a time, a negative-index shutdown sentinel, dead-worker
// accounting that does not abort the pool — using goroutines, channels,
// and a semaphore in place of OS processes and pipes, per the explicit
// license in spec §9 ("use a thread pool with a concurrent work queue and
// a counted semaphore, preserving one job at a time per worker and the
// shutdown sentinel").
package jobqueue

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Status is a job's outcome.
type Status int

const (
	Succeeded Status = iota
	Failed
)

// JobFunc executes job index i against the shared init data, returning its
// status. A panic inside JobFunc is recovered by the worker loop and
// treated as a worker death (spec §4.1: "workers that close their channel
// early are marked dead; their in-flight job is counted failed").
type JobFunc func(ctx context.Context, index int) Status

// InitFunc runs once per worker before it claims any jobs (library
// registration, CRS lookup policy per spec §4.2's "Effects and side
// channels").
type InitFunc func(ctx context.Context, workerID int) error

// Config configures one queue run.
type Config struct {
	JobCount    int
	MaxWorkers  int // capped at JobCount by Run
	Job         JobFunc
	Init        InitFunc // optional
	WorkEstimate func(index int) float64 // optional; used to sort jobs descending before dispatch (spec: "straggler avoidance")
}

// Result is the queue's outcome: totals and, per spec §4.1, overall success
// iff Failed == 0.
type Result struct {
	Succeeded int
	Failed    int
}

// OK reports overall success.
func (r Result) OK() bool { return r.Failed == 0 }

const shutdownIndex = -1

// Run executes cfg.JobCount jobs across at most cfg.MaxWorkers concurrent
// goroutines. Jobs are dispatched in work-estimate-descending order (spec:
// "large charts start first, reducing straggler tail-latency") when
// cfg.WorkEstimate is set. If every worker dies, Run returns early with the
// remaining jobs unattempted — mirroring the process-pool's "all workers
// die" early-return clause.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.JobCount == 0 {
		return Result{}
	}
	workers := cfg.MaxWorkers
	if workers <= 0 || workers > cfg.JobCount {
		workers = cfg.JobCount
	}

	order := make([]int, cfg.JobCount)
	for i := range order {
		order[i] = i
	}
	if cfg.WorkEstimate != nil {
		sort.SliceStable(order, func(a, b int) bool {
			return cfg.WorkEstimate(order[a]) > cfg.WorkEstimate(order[b])
		})
	}

	// indexCh hands out the next job index to claim; closing it is this
	// package's realization of "a negative index signals shutdown" — a
	// worker that reads (shutdownIndex, false) from the closed channel
	// exits exactly as it would on receiving a literal negative index.
	indexCh := make(chan int)
	go func() {
		defer close(indexCh)
		for _, idx := range order {
			select {
			case indexCh <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	// sem additionally bounds in-flight workers at W; errgroup.Group supplies
	// the worker-lifetime tracking (spec's "dead-worker accounting" maps to
	// a worker goroutine returning nil regardless of its jobs' outcomes —
	// Run reports job failures via succeeded/failed, not group errors).
	sem := semaphore.NewWeighted(int64(workers))
	var succeeded, failed int64
	var aliveWorkers int64 = int64(workers)
	var g errgroup.Group

	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				atomic.AddInt64(&aliveWorkers, -1)
				return nil
			}
			defer sem.Release(1)

			if cfg.Init != nil {
				if err := cfg.Init(ctx, workerID); err != nil {
					atomic.AddInt64(&aliveWorkers, -1)
					return nil
				}
			}

			for {
				idx, ok := receiveNext(indexCh, ctx)
				if !ok || idx == shutdownIndex {
					return nil
				}
				status, died := runJob(ctx, cfg.Job, idx)
				if status == Succeeded {
					atomic.AddInt64(&succeeded, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
				if died {
					// Worker death: this worker stops claiming further jobs;
					// surviving workers keep draining indexCh (spec §4.1/§8
					// Scenario F: "remaining jobs are picked up by surviving
					// workers").
					atomic.AddInt64(&aliveWorkers, -1)
					return nil
				}
				if atomic.LoadInt64(&aliveWorkers) == 0 {
					return nil
				}
			}
		})
	}

	g.Wait()

	dispatched := int(atomic.LoadInt64(&succeeded) + atomic.LoadInt64(&failed))
	remaining := cfg.JobCount - dispatched
	if remaining > 0 {
		// All workers died (or the context was cancelled) before every job
		// was claimed; per spec §4.1 the queue returns early and the
		// unattempted remainder counts as failed so Result.OK() is false.
		failed += int64(remaining)
	}

	return Result{Succeeded: int(succeeded), Failed: int(failed)}
}

func receiveNext(ch <-chan int, ctx context.Context) (int, bool) {
	select {
	case idx, ok := <-ch:
		return idx, ok
	case <-ctx.Done():
		return 0, false
	}
}

// runJob invokes the job function, converting a panic into a Failed status
// plus died=true — the goroutine equivalent of a worker process dying
// mid-job (spec: "their in-flight job is counted failed").
func runJob(ctx context.Context, job JobFunc, idx int) (status Status, died bool) {
	defer func() {
		if r := recover(); r != nil {
			status, died = Failed, true
		}
	}()
	return job(ctx, idx), false
}
