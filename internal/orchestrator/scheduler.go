package orchestrator

import "sync"

// Scheduler decides where the execution phase runs. Production uses
// BackgroundScheduler; tests that want deterministic ordering inject
// ImmediateScheduler.
type Scheduler interface {
	Go(fn func())
}

// BackgroundScheduler runs each task on its own goroutine and can wait
// for all of them on shutdown.
type BackgroundScheduler struct {
	wg sync.WaitGroup
}

func (s *BackgroundScheduler) Go(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every scheduled task has returned.
func (s *BackgroundScheduler) Wait() {
	s.wg.Wait()
}

// ImmediateScheduler runs the task on the calling goroutine.
type ImmediateScheduler struct{}

func (ImmediateScheduler) Go(fn func()) { fn() }
