// Package scheduler implements the polling loop that watches a directory
// of process definition documents, arms their triggers, and executes
// triggered processes to completion.
package scheduler

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/heretate/fbpscheduler/internal/backoff"
	"github.com/heretate/fbpscheduler/internal/cache"
	"github.com/heretate/fbpscheduler/internal/config"
	"github.com/heretate/fbpscheduler/internal/entity"
	"github.com/heretate/fbpscheduler/internal/evaluator"
	"github.com/heretate/fbpscheduler/internal/logger"
	"github.com/heretate/fbpscheduler/internal/trigger"
)

//go:embed process_schema.json
var processSchemaJSON []byte

// TerminationHandler is invoked after a process reaches a terminal
// state and leaves the run queue.
type TerminationHandler func(*entity.Process)

// Options carries the host-attached collaborators.
type Options struct {
	DateModifier       trigger.DateModifier
	TerminationHandler TerminationHandler
	CacheHandler       cache.Handler
	EntityHandler      cache.EntityHandler
	SessionParameters  map[string]any
	Registry           *evaluator.Registry
}

// Scheduler owns the watched directory, the armed triggers, and the
// process queues. All mutable state behind mu; processes execute on
// their own goroutines.
type Scheduler struct {
	id  string
	cfg *config.Config
	log logger.Logger

	cache          *cache.Cache
	registry       *evaluator.Registry
	entityFactory  *entity.Factory
	triggerFactory *trigger.Factory
	schema         *jsonschema.Resolved

	mu                 sync.Mutex
	processConfigs     map[string]*ConfigStore
	initiatedProcesses []*entity.Process
	runQueue           []*entity.Process
	endedProcesses     []*entity.Process
	executing          map[string]struct{}

	dateModifier       trigger.DateModifier
	terminationHandler TerminationHandler

	wg  sync.WaitGroup
	now func() time.Time
}

// New constructs a scheduler over cfg. Its id is stamped with the
// construction time, making entity ids globally unique in practice.
func New(cfg *config.Config, log logger.Logger, opts Options) (*Scheduler, error) {
	if log == nil {
		log = logger.Default
	}
	registry := opts.Registry
	if registry == nil {
		registry = evaluator.NewRegistry()
	}

	resolved, err := resolveSchema()
	if err != nil {
		return nil, err
	}

	now := time.Now
	s := &Scheduler{
		id:                 "S-" + now().Format("20060102150405"),
		cfg:                cfg,
		log:                log,
		registry:           registry,
		entityFactory:      entity.NewFactory(log, registry),
		triggerFactory:     trigger.NewFactory(log),
		schema:             resolved,
		processConfigs:     map[string]*ConfigStore{},
		executing:          map[string]struct{}{},
		dateModifier:       opts.DateModifier,
		terminationHandler: opts.TerminationHandler,
		now:                now,
	}
	s.cache = cache.New(s.id, opts.SessionParameters, opts.CacheHandler, opts.EntityHandler)
	return s, nil
}

func resolveSchema() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(processSchemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("could not parse process schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("could not resolve process schema: %w", err)
	}
	return resolved, nil
}

// ID returns the scheduler's entity id.
func (s *Scheduler) ID() string { return s.id }

// Cache returns the scheduler's parameter cache.
func (s *Scheduler) Cache() *cache.Cache { return s.cache }

// Registry returns the evaluator registry handlers are installed into.
func (s *Scheduler) Registry() *evaluator.Registry { return s.registry }

// SetDateModifier installs the trigger date modifier. It applies to
// triggers armed after the call.
func (s *Scheduler) SetDateModifier(modifier trigger.DateModifier) {
	if modifier == nil {
		s.log.Warn("Invalid date modifier function")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dateModifier = modifier
}

// SetTerminationHandler installs the handler invoked when a process
// ends.
func (s *Scheduler) SetTerminationHandler(handler TerminationHandler) {
	if handler == nil {
		s.log.Warn("Invalid termination handler function")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminationHandler = handler
}

// Run drives the scheduler loop until the context is canceled: file
// check, condition check, execution sweep, tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started", "schedulerId", s.id, "readDir", s.cfg.ReadDir)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.fileCheck(ctx)
		s.conditionCheck(ctx)
		s.execute(ctx)

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	stores := make([]*ConfigStore, 0, len(s.processConfigs))
	for _, store := range s.processConfigs {
		stores = append(stores, store)
	}
	s.mu.Unlock()
	for _, store := range stores {
		store.CancelTrigger()
	}
	s.wg.Wait()
	s.log.Info("Scheduler stopped", "schedulerId", s.id)
}

// checkInsert reports whether the file needs (re-)admission: unknown,
// modified since acceptance, or holding no trigger at all (as after a
// snapshot load). A store whose trigger task has finished or crashed is
// not re-admitted until the file changes.
func (s *Scheduler) checkInsert(fileName string, modTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.processConfigs[fileName]
	if !ok {
		return true
	}
	if !store.LastUnmodified.Equal(modTime) {
		return true
	}
	return store.Trigger() == nil
}

// fileCheck scans the read directory and (re-)arms triggers for new or
// modified definition files.
func (s *Scheduler) fileCheck(ctx context.Context) {
	entries, err := os.ReadDir(s.cfg.ReadDir)
	if err != nil {
		s.log.Error("Could not list read directory", "readDir", s.cfg.ReadDir, "err", err)
		return
	}
	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		fileName := dirEntry.Name()
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		if s.checkInsert(fileName, info.ModTime()) {
			s.admitFile(ctx, fileName, info.ModTime())
		}

		s.mu.Lock()
		store := s.processConfigs[fileName]
		s.mu.Unlock()
		if store != nil {
			if taskErr := store.TaskError(); taskErr != nil {
				s.log.Error("Trigger task failed", "file", fileName, "severity", "critical", "err", taskErr)
			}
		}
	}
}

func (s *Scheduler) admitFile(ctx context.Context, fileName string, modTime time.Time) {
	path := filepath.Join(s.cfg.ReadDir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			s.log.Warn("Could not access file. Will try again later.", "file", fileName)
		} else {
			s.log.Warn("Could not read file", "file", fileName, "err", err)
		}
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("Invalid JSON file. Document could not be decoded.", "file", fileName, "err", err)
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		s.log.Warn("Invalid configuration", "file", fileName, "err", err)
		return
	}

	spec, err := entity.DecodeSpec(doc)
	if err != nil {
		s.log.Warn("Invalid configuration", "file", fileName, "err", err)
		return
	}

	s.mu.Lock()
	previous := s.processConfigs[fileName]
	modifier := s.dateModifier
	s.mu.Unlock()
	if previous != nil {
		previous.CancelTrigger()
	}

	callback := func() { s.triggerCallback(doc) }
	trg, err := s.triggerFactory.CreateTrigger(spec.Trigger, callback, modifier)
	if err != nil {
		s.log.Warn("Invalid trigger configuration", "file", fileName, "err", err)
		return
	}

	store := NewConfigStore(doc, modTime, trg)
	s.mu.Lock()
	s.processConfigs[fileName] = store
	s.mu.Unlock()
	store.ActivateTrigger(ctx)
	s.log.Info("Inserted process", "file", fileName)
}

// triggerCallback instantiates a fresh process from the accepted
// document and queues it for its condition check.
func (s *Scheduler) triggerCallback(doc map[string]any) {
	requestID := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	parsed, err := s.entityFactory.Parse(s.id, doc, s.cache)
	if err != nil {
		s.log.Warn("Could not build triggered process", "requestId", requestID, "err", err)
		return
	}
	process, ok := parsed.(*entity.Process)
	if !ok {
		s.log.Warn("Triggered document is not a process", "requestId", requestID, "entityId", parsed.Core().ID)
		return
	}
	s.initiatedProcesses = append(s.initiatedProcesses, process)
	s.log.Info("Process triggered", "name", process.Name, "entityId", process.ID, "requestId", requestID)
}

// conditionCheck admits initiated processes whose conditions all hold
// into the run queue.
func (s *Scheduler) conditionCheck(ctx context.Context) {
	s.mu.Lock()
	pending := append([]*entity.Process(nil), s.initiatedProcesses...)
	s.mu.Unlock()

	for _, process := range pending {
		if !process.CheckConditions(ctx, s.cache) {
			continue
		}
		s.mu.Lock()
		s.initiatedProcesses = removeProcess(s.initiatedProcesses, process)
		s.runQueue = append(s.runQueue, process)
		s.mu.Unlock()
	}
}

// execute sweeps the run queue: terminates processes past their
// deadline and launches the rest.
func (s *Scheduler) execute(ctx context.Context) {
	s.mu.Lock()
	queued := append([]*entity.Process(nil), s.runQueue...)
	s.mu.Unlock()

	for _, process := range queued {
		if !process.Deadline.IsZero() && !s.now().Before(process.Deadline) {
			s.log.Warn("Process exceeded specified deadline", "entityId", process.ID)
			s.terminateProcess(process)
			continue
		}

		s.mu.Lock()
		_, inFlight := s.executing[process.ID]
		status := process.Status
		if inFlight || status == entity.StatusRunning || status == entity.StatusReRunning {
			s.mu.Unlock()
			continue
		}
		s.executing[process.ID] = struct{}{}
		s.mu.Unlock()

		retry := status == entity.StatusUnsuccessful
		if !retry {
			s.log.Info("Executing process", "entityId", process.ID)
		}
		s.wg.Add(1)
		go s.executeProcess(ctx, process, retry)
	}
}

// executeProcess runs one process to a status-machine stop, waiting out
// the retry interval first for an unsuccessful re-dispatch.
func (s *Scheduler) executeProcess(ctx context.Context, process *entity.Process, retry bool) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.executing, process.ID)
		s.mu.Unlock()
	}()

	if retry {
		retrier := backoff.NewRetrier(backoff.NewConstantPolicy(s.cfg.RetryInterval))
		if err := retrier.Next(ctx); err != nil {
			return
		}
		// The deadline may have passed or the process may have been
		// terminated while waiting.
		if process.Status != entity.StatusUnsuccessful {
			return
		}
	}

	if err := s.SaveState(); err != nil {
		s.log.Warn("Could not snapshot scheduler state", "err", err)
	}

	if _, err := process.Execute(ctx, s.cache, time.Time{}); err != nil {
		s.log.Error("Process execution rejected", "entityId", process.ID, "err", err)
		return
	}
	if process.Status.IsTerminal() {
		s.terminateProcess(process)
	}
}

// terminateProcess cascades termination, retires the process, and
// notifies the host. A process already retired by a concurrent path is
// left alone.
func (s *Scheduler) terminateProcess(process *entity.Process) {
	s.mu.Lock()
	if !containsProcess(s.runQueue, process) {
		s.mu.Unlock()
		return
	}
	s.runQueue = removeProcess(s.runQueue, process)
	s.endedProcesses = append(s.endedProcesses, process)
	handler := s.terminationHandler
	s.mu.Unlock()

	process.Terminate(s.cache)
	if handler != nil {
		handler(process)
	}
}

func containsProcess(processes []*entity.Process, target *entity.Process) bool {
	for _, p := range processes {
		if p == target {
			return true
		}
	}
	return false
}

func removeProcess(processes []*entity.Process, target *entity.Process) []*entity.Process {
	out := make([]*entity.Process, 0, len(processes))
	for _, p := range processes {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// InitiatedProcesses returns the processes awaiting their condition
// check.
func (s *Scheduler) InitiatedProcesses() []*entity.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.Process(nil), s.initiatedProcesses...)
}

// RunQueue returns the admitted processes.
func (s *Scheduler) RunQueue() []*entity.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.Process(nil), s.runQueue...)
}

// EndedProcesses returns the retired processes.
func (s *Scheduler) EndedProcesses() []*entity.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.Process(nil), s.endedProcesses...)
}

// ProcessConfig returns the store for a watched file, or nil.
func (s *Scheduler) ProcessConfig(fileName string) *ConfigStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processConfigs[fileName]
}
