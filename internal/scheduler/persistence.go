package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/heretate/fbpscheduler/internal/config"
	"github.com/heretate/fbpscheduler/internal/entity"
	"github.com/heretate/fbpscheduler/internal/evaluator"
	"github.com/heretate/fbpscheduler/internal/logger"
	"github.com/heretate/fbpscheduler/internal/marshal"
)

// Snapshot captures the scheduler's serializable state.
func (s *Scheduler) Snapshot() *marshal.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := map[string]marshal.ProcessConfigState{}
	for fileName, store := range s.processConfigs {
		state := marshal.ProcessConfigState{
			Config:         store.Config,
			LastUnmodified: store.LastUnmodified,
		}
		if triggerConfig, ok := store.Config["Trigger"].(map[string]any); ok {
			state.Trigger = triggerConfig
		}
		configs[fileName] = state
	}

	return &marshal.Snapshot{
		ID:                 s.id,
		ReadPath:           s.cfg.ReadDir,
		SavePath:           s.cfg.StateDir,
		CacheParameters:    s.cache.AllParameters(),
		CacheMetadata:      s.cache.AllMetadata(),
		ProcessConfigs:     configs,
		InitiatedProcesses: processIDs(s.initiatedProcesses),
		RunQueue:           processIDs(s.runQueue),
		EndedProcesses:     processIDs(s.endedProcesses),
	}
}

func processIDs(processes []*entity.Process) []string {
	ids := make([]string, 0, len(processes))
	for _, p := range processes {
		ids = append(ids, p.ID)
	}
	return ids
}

// SaveState writes a snapshot to the state directory. A disabled state
// directory makes it a no-op.
func (s *Scheduler) SaveState() error {
	if s.cfg.StateDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}

	data, err := s.Snapshot().Encode()
	if err != nil {
		return fmt.Errorf("could not encode snapshot: %w", err)
	}

	path := filepath.Join(s.cfg.StateDir, s.id+".json")
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("could not lock snapshot file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	return nil
}

// LoadState reads a snapshot and reconstructs an equivalent scheduler
// ready to Run. Triggers re-arm on the first file check; handlers are
// callables and must be re-attached through opts or the setters.
func LoadState(path string, cfg *config.Config, log logger.Logger, opts Options) (*Scheduler, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("could not lock snapshot file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot: %w", err)
	}
	snapshot, err := marshal.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.ReadDir == "" {
		cfg.ReadDir = snapshot.ReadPath
	}
	if cfg.StateDir == "" {
		cfg.StateDir = snapshot.SavePath
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 60 * time.Second
	}

	s, err := New(cfg, log, opts)
	if err != nil {
		return nil, err
	}
	s.id = snapshot.ID
	s.cache = marshal.RestoreCache(snapshot)
	s.cache.SetCacheHandler(opts.CacheHandler)
	s.cache.SetEntityHandler(opts.EntityHandler)

	for fileName, state := range snapshot.ProcessConfigs {
		s.processConfigs[fileName] = NewConfigStore(state.Config, state.LastUnmodified, nil)
	}

	restore := func(ids []string) ([]*entity.Process, error) {
		out := make([]*entity.Process, 0, len(ids))
		for _, id := range ids {
			restored, err := marshal.RestoreEntity(id, snapshot.CacheMetadata)
			if err != nil {
				return nil, err
			}
			process, ok := restored.(*entity.Process)
			if !ok {
				return nil, fmt.Errorf("entity %s is not a process", id)
			}
			wireEntity(restored, s.log, s.registry)
			out = append(out, process)
		}
		return out, nil
	}
	if s.initiatedProcesses, err = restore(snapshot.InitiatedProcesses); err != nil {
		return nil, err
	}
	if s.runQueue, err = restore(snapshot.RunQueue); err != nil {
		return nil, err
	}
	if s.endedProcesses, err = restore(snapshot.EndedProcesses); err != nil {
		return nil, err
	}
	return s, nil
}

// wireEntity re-attaches the runtime collaborators a snapshot cannot
// carry.
func wireEntity(e entity.Entity, log logger.Logger, registry *evaluator.Registry) {
	core := e.Core()
	core.SetLogger(log)
	core.SetRegistry(registry)
	switch typed := e.(type) {
	case *entity.JobGroup:
		for _, child := range typed.Entities() {
			wireEntity(child, log, registry)
		}
	case *entity.Process:
		for _, child := range typed.Entities() {
			wireEntity(child, log, registry)
		}
	}
}
