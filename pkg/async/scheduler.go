package async

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler errors.
var (
	ErrTaskExists    = errors.New("async: task already scheduled")
	ErrEmptyTaskName = errors.New("async: empty task name")
)

// Scheduler runs named recurring tasks. Names are unique: scheduling a name
// that is already present fails and leaves the existing task untouched.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*LoopTimer
	logger *slog.Logger
}

// NewScheduler creates an empty scheduler. A nil logger uses slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  make(map[string]*LoopTimer),
		logger: logger.With("component", "scheduler"),
	}
}

// Schedule starts fn every interval under name. The task is registered and
// started under the scheduler lock, so a concurrent Stop either sees a
// running task or none at all.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn TickFunc) error {
	if name == "" {
		return ErrEmptyTaskName
	}
	timer, err := NewLoopTimer(interval, fn, s.logger.With("task", name))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.tasks[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	s.tasks[name] = timer
	timer.Start()
	s.mu.Unlock()

	s.logger.Debug("task scheduled", "task", name, "interval", interval)
	return nil
}

// Has reports whether a task named name is scheduled.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Stop cancels and removes the named task. It reports whether the task existed.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	timer, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()
	if !ok {
		return false
	}
	timer.Stop()
	s.logger.Debug("task stopped", "task", name)
	return true
}

// StopAll cancels and removes every task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*LoopTimer)
	s.mu.Unlock()

	for name, timer := range tasks {
		timer.Stop()
		s.logger.Debug("task stopped", "task", name)
	}
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
