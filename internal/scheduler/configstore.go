package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heretate/fbpscheduler/internal/trigger"
)

// ConfigStore holds one watched file's accepted configuration and the
// lifecycle of its armed trigger task.
type ConfigStore struct {
	Config         map[string]any
	LastUnmodified time.Time

	mu          sync.Mutex
	trigger     trigger.Trigger
	cancel      context.CancelFunc
	done        chan struct{}
	taskErr     error
	errReported bool
}

// NewConfigStore returns a store for an accepted config.
func NewConfigStore(config map[string]any, lastUnmodified time.Time, trg trigger.Trigger) *ConfigStore {
	return &ConfigStore{
		Config:         config,
		LastUnmodified: lastUnmodified,
		trigger:        trg,
	}
}

// Trigger returns the armed trigger, or nil.
func (s *ConfigStore) Trigger() trigger.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// SetTrigger replaces the store's trigger. The previous task, if any,
// must be cancelled first.
func (s *ConfigStore) SetTrigger(trg trigger.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = trg
}

// ActivateTrigger launches the trigger's firing loop as its own task.
func (s *ConfigStore) ActivateTrigger(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trigger == nil || s.done != nil {
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(trg trigger.Trigger, done chan struct{}) {
		defer close(done)
		if err := trg.Activate(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.mu.Lock()
			s.taskErr = err
			s.mu.Unlock()
		}
	}(s.trigger, s.done)
}

// CancelTrigger stops the trigger task and waits for it to unwind.
func (s *ConfigStore) CancelTrigger() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// TaskError returns a finished task's error once; later calls report
// nothing so the scheduler logs each crash a single time.
func (s *ConfigStore) TaskError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil || s.taskErr == nil || s.errReported {
		return nil
	}
	select {
	case <-s.done:
		s.errReported = true
		return s.taskErr
	default:
		return nil
	}
}

// Armed reports whether the store has a live trigger task.
func (s *ConfigStore) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
