package scanner

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker periodically prints scan progress for foreground scans.
// Wire its Update method into Engine.OnProgress.
type ProgressTracker struct {
	mu        sync.Mutex
	processed int
	failed    int
	total     int
	ticker    *time.Ticker
	done      chan bool
	stopOnce  sync.Once
}

// NewProgressTracker starts the progress display goroutine.
func NewProgressTracker(total int) *ProgressTracker {
	tracker := &ProgressTracker{
		ticker: time.NewTicker(500 * time.Millisecond),
		done:   make(chan bool),
		total:  total,
	}
	go tracker.displayProgress()
	return tracker
}

// Update records the latest committed batch counters.
func (p *ProgressTracker) Update(processed, failed, total int) {
	p.mu.Lock()
	p.processed = processed
	p.failed = failed
	p.total = total
	p.mu.Unlock()
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.failed > 0 {
				fmt.Printf("\rProgress: %d/%d (failed: %d)", p.processed, p.total, p.failed)
			} else {
				fmt.Printf("\rProgress: %d/%d", p.processed, p.total)
			}
			p.mu.Unlock()
		}
	}
}

// Stop ends the progress tracking. Safe to call more than once.
func (p *ProgressTracker) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
}
