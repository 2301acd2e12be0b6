// Package scheduler provides rx.Scheduler implementations that relocate the
// delivery of adapted call outcomes.
//
//   - Immediate:    runs the task inline on the caller's goroutine
//   - NewGoroutine: one fresh goroutine per task
//   - Single:       one long-lived worker, tasks run FIFO
//   - Pool:         bounded concurrency, at most N tasks at once
package scheduler

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"rxcall/rx"
)

// Immediate runs every task synchronously inside Schedule.
type Immediate struct{}

func (Immediate) Schedule(task func()) rx.Disposable {
	task()
	return rx.Disposed()
}

// NewGoroutine starts one goroutine per task.
type NewGoroutine struct{}

func (NewGoroutine) Schedule(task func()) rx.Disposable {
	d := rx.NewDisposable(nil)
	go func() {
		if d.IsDisposed() {
			return
		}
		task()
	}()
	return d
}

// Single runs tasks one at a time, in submission order, on a dedicated
// worker goroutine. Close stops the worker once queued tasks are drained.
type Single struct {
	mu     sync.Mutex
	cond   sync.Cond
	tasks  *list.List
	closed bool
	done   chan struct{}
}

type job struct {
	task func()
	d    rx.Disposable
}

// NewSingle starts the worker goroutine.
func NewSingle() *Single {
	s := &Single{
		tasks: list.New(),
		done:  make(chan struct{}),
	}
	s.cond.L = &s.mu
	go s.run()
	return s
}

func (s *Single) Schedule(task func()) rx.Disposable {
	d := rx.NewDisposable(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		d.Dispose()
		return d
	}
	signal := s.tasks.Len() == 0
	s.tasks.PushBack(&job{task: task, d: d})
	if signal {
		s.cond.Signal()
	}
	return d
}

// Close rejects further tasks and waits for the worker to exit.
func (s *Single) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Single) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for s.tasks.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		front := s.tasks.Front()
		if front == nil {
			s.mu.Unlock()
			return
		}
		j := s.tasks.Remove(front).(*job)
		s.mu.Unlock()
		if !j.d.IsDisposed() {
			j.task()
		}
	}
}

// Pool runs each task on its own goroutine but never more than a fixed
// number at the same time.
type Pool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most workers tasks concurrently.
func NewPool(workers int64) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(workers)}
}

// Schedule returns an already disposed Disposable, without running task,
// once the pool is closed.
func (p *Pool) Schedule(task func()) rx.Disposable {
	d := rx.NewDisposable(nil)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		d.Dispose()
		return d
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		if d.IsDisposed() {
			return
		}
		task()
	}()
	return d
}

// Close rejects further tasks and waits until every accepted one, running or
// still waiting for a slot, has finished.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Parse builds a scheduler from its configuration name: "", "none",
// "immediate", "goroutine", "single" or "pool:<n>". The returned close
// function releases the scheduler's goroutines and is never nil.
func Parse(name string) (rx.Scheduler, func(), error) {
	noop := func() {}
	switch name = strings.TrimSpace(strings.ToLower(name)); {
	case name == "" || name == "none":
		return nil, noop, nil
	case name == "immediate":
		return Immediate{}, noop, nil
	case name == "goroutine":
		return NewGoroutine{}, noop, nil
	case name == "single":
		s := NewSingle()
		return s, s.Close, nil
	case strings.HasPrefix(name, "pool:"):
		n, err := strconv.ParseInt(strings.TrimPrefix(name, "pool:"), 10, 64)
		if err != nil || n < 1 {
			return nil, noop, fmt.Errorf("scheduler: invalid pool size in %q", name)
		}
		p := NewPool(n)
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("scheduler: unknown scheduler %q", name)
	}
}
