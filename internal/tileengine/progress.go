package tileengine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// progressBar renders an in-place terminal progress bar for one phase. It
// refreshes at a fixed interval and supports concurrent set calls from
// multiple worker goroutines.
type progressBar struct {
	total     int64
	processed atomic.Int64
	label     string
	barWidth  int
	start     time.Time
	done      chan struct{}
	mu        sync.Mutex
}

func newProgressBar(label string, total int64) *progressBar {
	pb := &progressBar{
		total:    total,
		label:    label,
		barWidth: 30,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
	go pb.run()
	return pb
}

func (pb *progressBar) set(n int64) {
	pb.processed.Store(n)
}

func (pb *progressBar) Finish() {
	close(pb.done)
	pb.draw()
	fmt.Fprint(os.Stderr, "\n")
}

func (pb *progressBar) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-pb.done:
			return
		case <-ticker.C:
			pb.draw()
		}
	}
}

func (pb *progressBar) draw() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	processed := pb.processed.Load()
	total := pb.total

	var frac float64
	if total > 0 {
		frac = float64(processed) / float64(total)
	}
	if frac > 1 {
		frac = 1
	}

	filled := int(float64(pb.barWidth) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.barWidth-filled)

	elapsed := time.Since(pb.start)
	rate := float64(0)
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}

	fmt.Fprintf(os.Stderr, "\r%s [%s] %3.0f%%  %d/%d  %.0f/s  %s\033[K",
		pb.label, bar, frac*100, processed, total, rate, formatDuration(elapsed))
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}

// NewTerminalProgress returns a ProgressFunc that draws one progress bar per
// phase to stderr, finishing the previous phase's bar when the phase label
// changes. total1 and total2 are the expected tile counts for Phase 1
// (len(manifest.Flatten())) and Phase 2 (unknown ahead of time, so pass 0 to
// run the bar in elapsed-count-only mode).
func NewTerminalProgress(total1, total2 int64) ProgressFunc {
	var mu sync.Mutex
	var current *progressBar
	var currentPhase string

	return func(phase string, written int) {
		mu.Lock()
		defer mu.Unlock()
		if phase != currentPhase {
			if current != nil {
				current.Finish()
			}
			total := total1
			if phase == "phase2" {
				total = total2
			}
			current = newProgressBar(phase, total)
			currentPhase = phase
		}
		current.set(int64(written))
	}
}
