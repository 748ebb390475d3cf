// Package scheduler implements the single-worker cooperative timer loop
// that the Nexus uses to sequence all surrogate-affecting work.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/metrics"
)

// Task is a unit of work the scheduler runs serially on its single worker
// goroutine. Tasks must not block for long; a panicking task is recovered,
// logged, and swallowed, matching the "any exception is logged and
// swallowed" rule of the scheduler design.
type Task func()

type entry struct {
	deadline time.Time
	seq      int64 // breaks ties in FIFO order for equal deadlines
	task     Task
}

type taskHeap []*entry

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is a single-threaded cooperative timer loop: a min-heap of
// (deadline, task) pairs, popped and run serially by one worker goroutine.
type Scheduler struct {
	log *logrus.Entry

	mu         sync.Mutex
	heap       taskHeap
	nextSeq    int64
	wake       chan struct{}
	shutdown   bool
	shutdownAt time.Time
	workerExit chan struct{}
}

// New creates a Scheduler. Call Main (typically in its own goroutine) to
// start running it.
func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		log:        log.WithField("component", "scheduler"),
		wake:       make(chan struct{}, 1),
		workerExit: make(chan struct{}),
	}
}

// Time returns the current time used for scheduling comparisons.
func (s *Scheduler) Time() time.Time {
	return time.Now()
}

// AddNow schedules task to run as soon as the worker goroutine is free.
func (s *Scheduler) AddNow(task Task) {
	s.addAt(s.Time(), task)
}

// AddAbs schedules task to run at or after the given absolute deadline.
func (s *Scheduler) AddAbs(deadline time.Time, task Task) {
	s.addAt(deadline, task)
}

func (s *Scheduler) addAt(deadline time.Time, task Task) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.nextSeq++
	heap.Push(&s.heap, &entry{deadline: deadline, seq: s.nextSeq, task: task})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Shutdown signals the worker to stop accepting new work. Pending AddNow
// tasks (deadline already due) still drain; AddAbs tasks whose deadline is
// still in the future when shutdown is requested are discarded. No new
// Add* calls are accepted after Shutdown returns.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.shutdownAt = s.Time()
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Join blocks until the worker goroutine started by Main has exited.
func (s *Scheduler) Join() {
	<-s.workerExit
}

// Main runs the scheduler loop until Shutdown is called and all due work
// has drained. Intended to be run on its own goroutine.
func (s *Scheduler) Main() {
	defer close(s.workerExit)
	for {
		task, wait, stop := s.next()
		if stop {
			return
		}
		if task != nil {
			s.run(task)
			continue
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops the next due task, if any. If the heap is empty and shutdown
// has been requested, stop is true. Otherwise wait reports how long to
// sleep before checking again.
func (s *Scheduler) next() (task Task, wait time.Duration, stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Time()
	for len(s.heap) > 0 {
		top := s.heap[0]
		if s.shutdown && top.deadline.After(s.shutdownAt) {
			heap.Pop(&s.heap)
			continue
		}
		if !top.deadline.After(now) {
			heap.Pop(&s.heap)
			metrics.SchedulerLagSeconds.Observe(now.Sub(top.deadline).Seconds())
			return top.task, 0, false
		}
		if s.shutdown {
			return nil, 0, false
		}
		return nil, top.deadline.Sub(now), false
	}
	if s.shutdown {
		return nil, 0, true
	}
	return nil, time.Hour, false
}

func (s *Scheduler) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("task panicked")
		}
	}()
	task()
}
