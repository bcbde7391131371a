package daemon

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the scheduler's record of one scheduled invocation (§3
// "Scheduled job").
type Job struct {
	ID        string
	Method    string
	CronExpr  string
	Args      json.RawMessage
	NextRun   time.Time
	LastRun   time.Time
	RunCount  int
	CreatedAt time.Time
	Degraded  bool

	schedule cron.Schedule
	index    int // heap.Interface bookkeeping
}

// jobHeap is a min-heap keyed by NextRun (§4.7 "a min-heap keyed by
// nextRun").
type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].NextRun.Before(h[j].NextRun) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x interface{}) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}

// Fire is what the Scheduler hands to its caller when a job's time
// comes: a synthesized internal command (§4.7 "session = scheduler").
type Fire struct {
	JobID  string
	Method string
	Args   json.RawMessage
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler maintains the min-heap of next fires and a single
// scheduler goroutine that blocks until the heap head is due or a
// control event (add/remove/reload) arrives.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	heap    jobHeap
	recomp  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	onFire  func(Fire)
	logger  *slog.Logger
}

// NewScheduler constructs a Scheduler. onFire is invoked synchronously
// on the scheduler's own goroutine, after the scheduler's lock is
// released, once for each job that comes due; the scheduler does not
// compute its next wait until those onFire calls have returned.
func NewScheduler(logger *slog.Logger, onFire func(Fire)) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*Job),
		recomp: make(chan struct{}, 1),
		done:   make(chan struct{}),
		onFire: onFire,
		logger: logger,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Scheduler) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Scheduler) notify() {
	select {
	case s.recomp <- struct{}{}:
	default:
	}
}

// Schedule adds or replaces a job. An invalid cron expression is
// rejected; the caller (Dispatcher) surfaces that as invalid-request.
func (s *Scheduler) Schedule(id, method, cronExpr string, args json.RawMessage) error {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	now := time.Now()
	job := &Job{
		ID:        id,
		Method:    method,
		CronExpr:  cronExpr,
		Args:      args,
		NextRun:   schedule.Next(now),
		CreatedAt: now,
		schedule:  schedule,
	}

	s.mu.Lock()
	if existing, ok := s.jobs[id]; ok {
		heap.Remove(&s.heap, existing.index)
	}
	s.jobs[id] = job
	heap.Push(&s.heap, job)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Unschedule removes a job. Returns false if it did not exist — never
// an error (§8 round-trip rule).
func (s *Scheduler) Unschedule(id string) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		heap.Remove(&s.heap, job.index)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// MarkDegraded flags a job whose method vanished after a reload
// (§4.4, §4.7). The job is retained; its next fire still happens but
// yields a method-missing result upstream.
func (s *Scheduler) MarkDegraded(id string, degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Degraded = degraded
	}
}

// JobSnapshot is List's read-only view of one job.
type JobSnapshot struct {
	ID        string
	Method    string
	CronExpr  string
	NextRun   time.Time
	LastRun   time.Time
	RunCount  int
	Degraded  bool
	CreatedAt time.Time
}

func (s *Scheduler) List() []JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobSnapshot, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, JobSnapshot{
			ID: job.ID, Method: job.Method, CronExpr: job.CronExpr,
			NextRun: job.NextRun, LastRun: job.LastRun, RunCount: job.RunCount,
			Degraded: job.Degraded, CreatedAt: job.CreatedAt,
		})
	}
	return out
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.heap) == 0 {
			wait = 24 * time.Hour // no jobs: sleep long, woken by notify on next schedule
		} else {
			wait = time.Until(s.heap[0].NextRun)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-s.recomp:
			timer.Stop()
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

// fireDue pops every job whose NextRun has passed, reinserts each
// with a recomputed NextRun, and invokes onFire for each — mirroring
// §4.7: "computes the next fire time ... updates lastRun and
// runCount, and re-inserts if the job still exists."
func (s *Scheduler) fireDue() {
	now := time.Now()
	var due []*Job

	s.mu.Lock()
	for len(s.heap) > 0 && !s.heap[0].NextRun.After(now) {
		job := heap.Pop(&s.heap).(*Job)
		due = append(due, job)
	}
	for _, job := range due {
		job.LastRun = now
		job.RunCount++
		job.NextRun = job.schedule.Next(now) // strictly greater than now — misses are not replayed (§4.7)
		if _, stillExists := s.jobs[job.ID]; stillExists {
			heap.Push(&s.heap, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if s.onFire != nil {
			s.onFire(Fire{JobID: job.ID, Method: job.Method, Args: job.Args})
		}
	}
}
