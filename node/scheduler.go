// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import "time"

const (
	minWait = 10 * time.Millisecond
	maxWait = 1 * time.Second
)

// task is one periodic job the scheduler runs at a fixed interval.
type task struct {
	name     string
	interval time.Duration
	fn       func(now time.Time)
	nextRun  time.Time
}

// Scheduler runs the node's periodic maintenance jobs (mempool
// cleanup, route/dedup table purges, the 5s sync-restart check) from
// within the single event loop, never on their own goroutines
// (spec.md §5 single-threaded cooperative scheduling model).
type Scheduler struct {
	tasks []*task
}

// NewScheduler constructs an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers a periodic job, first due at now+interval.
func (s *Scheduler) Add(name string, interval time.Duration, now time.Time, fn func(now time.Time)) {
	s.tasks = append(s.tasks, &task{name: name, interval: interval, fn: fn, nextRun: now.Add(interval)})
}

// RunDue executes every task whose nextRun has passed and reschedules
// it one interval after now, so a long pause causes a single catch-up
// run rather than a burst.
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for _, t := range s.tasks {
		if !now.Before(t.nextRun) {
			t.fn(now)
			t.nextRun = now.Add(t.interval)
			ran++
		}
	}
	return ran
}

// NextWait computes how long the event loop may block before the
// scheduler needs attention again: spec.md §5
// "max(10 ms, min(next_run - now, 1 s))".
func (s *Scheduler) NextWait(now time.Time) time.Duration {
	if len(s.tasks) == 0 {
		return maxWait
	}
	soonest := s.tasks[0].nextRun
	for _, t := range s.tasks[1:] {
		if t.nextRun.Before(soonest) {
			soonest = t.nextRun
		}
	}
	wait := soonest.Sub(now)
	if wait > maxWait {
		wait = maxWait
	}
	if wait < minWait {
		wait = minWait
	}
	return wait
}
