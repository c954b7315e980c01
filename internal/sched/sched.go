// Package sched provides cancellable one-shot tasks for a single-owner event
// loop.
//
// A Scheduler is not safe for concurrent use: only the owner goroutine calls
// Schedule, Cancel, CancelAll and Deliver. When a task's delay elapses the
// timer goroutine calls the post function with a Fired value; the owner
// hands that value back to Deliver, which reports whether the task is still
// live. A task cancelled after its timer fired but before the owner got to
// it is therefore dropped.
package sched

import "time"

// TaskID identifies a scheduled task. Zero is never issued.
type TaskID uint64

// Fired is posted to the owner when a task's delay elapses.
type Fired struct {
	ID  TaskID
	Key string
}

type task struct {
	key   string
	timer Stopper
}

// Scheduler tracks live one-shot tasks.
type Scheduler struct {
	clock Clock
	post  func(Fired)
	next  TaskID
	tasks map[TaskID]task
}

// New creates a scheduler. post is called from timer goroutines and must
// hand the Fired value to the owner without blocking indefinitely.
func New(clock Clock, post func(Fired)) *Scheduler {
	if clock == nil {
		clock = Wall
	}
	return &Scheduler{clock: clock, post: post, tasks: make(map[TaskID]task)}
}

// Schedule arranges for key to fire once after d.
func (s *Scheduler) Schedule(key string, d time.Duration) TaskID {
	s.next++
	id := s.next
	timer := s.clock.AfterFunc(d, func() {
		s.post(Fired{ID: id, Key: key})
	})
	s.tasks[id] = task{key: key, timer: timer}
	return id
}

// Cancel stops a task. Cancelling an unknown or finished task is a no-op.
func (s *Scheduler) Cancel(id TaskID) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	t.timer.Stop()
	delete(s.tasks, id)
}

// CancelKey cancels every live task with the given key.
func (s *Scheduler) CancelKey(key string) {
	for id, t := range s.tasks {
		if t.key == key {
			t.timer.Stop()
			delete(s.tasks, id)
		}
	}
}

// CancelAll cancels every live task.
func (s *Scheduler) CancelAll() {
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
	}
}

// Deliver retires a fired task. It returns false if the task was cancelled
// in the meantime, in which case the owner must ignore the fire.
func (s *Scheduler) Deliver(f Fired) bool {
	if _, ok := s.tasks[f.ID]; !ok {
		return false
	}
	delete(s.tasks, f.ID)
	return true
}

// Pending returns the number of live tasks.
func (s *Scheduler) Pending() int {
	return len(s.tasks)
}
