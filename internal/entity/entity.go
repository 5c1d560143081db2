// Package entity implements the schedulable entity model: jobs, job
// groups, and processes, their status lifecycle, and dependency-ordered
// DAG execution with deadline propagation.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/heretate/fbpscheduler/internal/cache"
	"github.com/heretate/fbpscheduler/internal/evaluator"
	"github.com/heretate/fbpscheduler/internal/logger"
)

// ErrInvalidStatus is returned on an illegal state transition. It is the
// only error Execute surfaces; execution failures travel as status codes.
var ErrInvalidStatus = errors.New("invalid status transition")

// Condition is a predicate gating a process's admission to the run
// queue, resolved through the evaluator registry.
type Condition struct {
	Module   string
	Function string
}

// Entity is any schedulable unit.
type Entity interface {
	// Core exposes the shared entity state.
	Core() *Core
	// Execute runs the entity to a status code. inheritedDeadline is the
	// parent's deadline ceiling; the zero time means none. The returned
	// error is non-nil only for state-machine violations.
	Execute(ctx context.Context, c *cache.Cache, inheritedDeadline time.Time) (int, error)
	// Terminate forces the entity (and any children) to failure unless
	// already finished, publishing updated metadata to the cache.
	Terminate(c *cache.Cache)
	// Metadata returns the entity's reportable state.
	Metadata() map[string]any
}

// Core carries the fields shared by every entity variant.
type Core struct {
	Name              string
	ID                string
	ObjectType        ObjectType
	Description       string
	Dependencies      map[string]string
	StartTime         time.Time
	EndTime           time.Time
	DeadlineOffset    time.Duration
	Deadline          time.Time
	Timeout           time.Duration
	Status            Status
	ExceptionHandling ExceptionPolicy
	Conditions        []Condition

	registry *evaluator.Registry
	log      logger.Logger
	now      func() time.Time
}

// NewCore returns a Core in the initialized state.
func NewCore(id string, objectType ObjectType) Core {
	return Core{
		ID:           id,
		ObjectType:   objectType,
		Dependencies: map[string]string{},
		Status:       StatusInitialized,
		log:          logger.Default,
		now:          time.Now,
	}
}

// Core implements Entity.
func (c *Core) Core() *Core { return c }

// EmbeddedCore is Core under a different identifier so that embedding it
// anonymously does not create a field named "Core", which would shadow
// the promoted Core() method above.
type EmbeddedCore = Core

// SetLogger replaces the entity's logger.
func (c *Core) SetLogger(log logger.Logger) {
	if log != nil {
		c.log = log
	}
}

// SetRegistry wires the evaluator registry used for handler jobs and
// condition predicates.
func (c *Core) SetRegistry(r *evaluator.Registry) { c.registry = r }

// Registry returns the wired evaluator registry, or an empty one.
func (c *Core) Registry() *evaluator.Registry {
	if c.registry == nil {
		c.registry = evaluator.NewRegistry()
	}
	return c.registry
}

func (c *Core) logger() logger.Logger {
	if c.log == nil {
		c.log = logger.Default
	}
	return c.log
}

func (c *Core) clock() func() time.Time {
	if c.now == nil {
		c.now = time.Now
	}
	return c.now
}

// Equal reports entity identity.
func (c *Core) Equal(other Entity) bool {
	return other != nil && c.ID == other.Core().ID
}

// DependencyNames returns the user-authored dependency names, sorted.
func (c *Core) DependencyNames() []string {
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DependencyIDs returns the resolved dependency ids, sorted; unresolved
// names contribute nothing.
func (c *Core) DependencyIDs() []string {
	ids := make([]string, 0, len(c.Dependencies))
	for _, id := range c.Dependencies {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AddDependency records or resolves a dependency edge.
func (c *Core) AddDependency(name, id string) {
	if c.Dependencies == nil {
		c.Dependencies = map[string]string{}
	}
	c.Dependencies[name] = id
}

// DependencyMap returns the entity's row of the parent graph: its id
// mapped to the ids it depends on.
func (c *Core) DependencyMap() map[string][]string {
	return map[string][]string{c.ID: c.DependencyIDs()}
}

// start transitions into running or re_running, computing the effective
// deadline and timeout. First entry records the start time and pins the
// deadline to min(now+offset, inherited).
func (c *Core) start(inheritedDeadline time.Time) error {
	now := c.clock()()
	switch c.Status {
	case StatusInitialized:
		c.StartTime = now
		if c.DeadlineOffset > 0 {
			deadline := now.Add(c.DeadlineOffset)
			if !inheritedDeadline.IsZero() && inheritedDeadline.Before(deadline) {
				deadline = inheritedDeadline
			}
			c.Deadline = deadline
		} else {
			c.Deadline = inheritedDeadline
		}
		c.Status = StatusRunning
	case StatusUnsuccessful:
		c.Status = StatusReRunning
	default:
		return fmt.Errorf("%w: cannot start %s from %s", ErrInvalidStatus, c.ID, c.Status)
	}

	if !c.Deadline.IsZero() {
		c.Timeout = c.Deadline.Sub(now)
	} else {
		c.Timeout = 0
	}
	return nil
}

// end applies the exception handling policy to an execution status code
// and returns the resulting status code.
func (c *Core) end(executionStatusCode int) (int, error) {
	if executionStatusCode == int(StatusFinished) {
		c.Status = StatusFinished
	} else {
		switch c.ExceptionHandling {
		case PolicyKill:
			c.Status = StatusFailure
		case PolicyRepeat:
			if executionStatusCode >= int(StatusFailure) {
				c.Status = StatusFailure
			} else {
				c.Status = StatusUnsuccessful
			}
		case PolicySkip:
			c.Status = StatusFinished
		default:
			return 0, fmt.Errorf("%w: no exception policy for %s", ErrInvalidStatus, c.ID)
		}
	}

	if c.Status != StatusUnsuccessful {
		c.EndTime = c.clock()()
		c.logger().Info("Entity ended", "name", c.Name, "entityId", c.ID, "status", c.Status.String(), "code", int(c.Status))
	}
	return int(c.Status), nil
}

// CheckConditions evaluates every condition predicate with the entity's
// resolved parameters. All must return code 0.
func (c *Core) CheckConditions(ctx context.Context, ch *cache.Cache) bool {
	for _, condition := range c.Conditions {
		params := map[string]any{}
		if ch != nil {
			params = ch.GetParameters(c.ID, true)
		}
		code, output := c.Registry().Evaluate(ctx, condition.Module, condition.Function, params, ch, 0)
		if code != 0 {
			c.logger().Debug("Condition not met", "entityId", c.ID,
				"condition", condition.Module+"."+condition.Function, "output", output)
			return false
		}
	}
	return true
}

// coreMetadata returns the metadata fields shared by all variants.
func (c *Core) coreMetadata() map[string]any {
	deps := make(map[string]any, len(c.Dependencies))
	for name, id := range c.Dependencies {
		deps[name] = id
	}
	conditions := make([]any, 0, len(c.Conditions))
	for _, condition := range c.Conditions {
		conditions = append(conditions, []any{condition.Module, condition.Function})
	}
	return map[string]any{
		cache.KeyMetadataID: c.ID,
		"name":              c.Name,
		"object_type":       c.ObjectType,
		"description":       c.Description,
		"dependencies":      deps,
		"conditions":        conditions,
		"start_time":        c.StartTime,
		"end_time":          c.EndTime,
		"deadline":          c.Deadline,
		"deadline_offset":   c.DeadlineOffset,
		"timeout":           c.Timeout,
		"status":            c.Status,
		"exception_handling": c.ExceptionHandling,
	}
}

// runBody wraps an entity body with the start/end lifecycle and metadata
// publication, the fixed execute envelope for every variant.
func runBody(e Entity, c *cache.Cache, inheritedDeadline time.Time, body func() int) (int, error) {
	core := e.Core()
	if err := core.start(inheritedDeadline); err != nil {
		return 0, err
	}
	if c != nil {
		c.ReadState(e.Metadata(), true)
	}

	code := body()

	code, err := core.end(code)
	if err != nil {
		return 0, err
	}
	if c != nil {
		c.ReadState(e.Metadata(), true)
	}
	return code, nil
}
