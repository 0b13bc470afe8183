package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// WindowSize is the number of recent job durations averaged for the ETA.
const WindowSize = 10

// RollingWindow keeps the last WindowSize durations, oldest first.
type RollingWindow struct {
	values []time.Duration
}

func (w *RollingWindow) Add(d time.Duration) {
	if len(w.values) == WindowSize {
		copy(w.values, w.values[1:])
		w.values = w.values[:WindowSize-1]
	}
	w.values = append(w.values, d)
}

// Values returns a copy of the window contents.
func (w *RollingWindow) Values() []time.Duration {
	return append([]time.Duration(nil), w.values...)
}

func (w *RollingWindow) Len() int { return len(w.values) }

func (w *RollingWindow) Average() time.Duration {
	if len(w.values) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range w.values {
		sum += v
	}
	return sum / time.Duration(len(w.values))
}

// Progress is a snapshot taken after a job finished. Total shrinks when a
// stop cancels jobs before they start, so the last snapshot of a stopped run
// still has Completed == Total.
type Progress struct {
	Completed int
	Total     int
	// Elapsed is the duration of the job that just finished.
	Elapsed time.Duration
	Average time.Duration
	ETA     time.Duration
}

// Tracker counts finished jobs and estimates the remaining time.
type Tracker struct {
	mu        sync.Mutex
	window    RollingWindow
	total     int
	started   int
	completed int
	// stopped reports a requested stop; once true it stays true.
	stopped func() bool
}

func NewTracker(total int) *Tracker {
	return &Tracker{total: total, stopped: func() bool { return false }}
}

// StopWith makes the tracker consult stopped; after a stop the total is cut
// down to the jobs already started.
func (t *Tracker) StopWith(stopped func() bool) *Tracker {
	t.stopped = stopped
	return t
}

// Begin claims a job slot. It returns false once a stop was requested, and
// the job must then not run.
func (t *Tracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped() {
		return false
	}
	t.started++
	return true
}

// Record adds one finished job and returns the updated snapshot.
func (t *Tracker) Record(elapsed time.Duration) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window.Add(elapsed)
	t.completed++
	if t.stopped() && t.started < t.total {
		t.total = t.started
	}
	avg := t.window.Average()
	remaining := t.total - t.completed
	if remaining < 0 {
		remaining = 0
	}
	return Progress{
		Completed: t.completed,
		Total:     t.total,
		Elapsed:   elapsed,
		Average:   avg,
		ETA:       avg * time.Duration(remaining),
	}
}

// Window returns the current window contents.
func (t *Tracker) Window() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.Values()
}

// FormatETA renders d as XhYmZs, truncated to whole seconds.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%dh%dm%ds", s/3600, (s%3600)/60, s%60)
}
