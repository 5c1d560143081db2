package entity

import (
	"context"
	"time"

	"github.com/heretate/fbpscheduler/internal/cache"
)

// Process is the root of one triggered run. It executes exactly as a
// JobGroup with its own deadline as the inherited ceiling for children,
// and is the unit the scheduler admits to the run queue.
type Process struct {
	JobGroup

	// TriggerConfig is the trigger block the process was built from,
	// kept for snapshots.
	TriggerConfig map[string]any
}

var _ Entity = (*Process)(nil)

// NewProcess returns a Process with the group defaults.
func NewProcess(id string) *Process {
	p := &Process{JobGroup: *NewJobGroup(id)}
	p.ObjectType = ObjectTypeProcess
	return p
}

// Execute runs the process DAG. The scheduler passes no inherited
// deadline; the process's own deadline is the ceiling.
func (p *Process) Execute(ctx context.Context, c *cache.Cache, inheritedDeadline time.Time) (int, error) {
	var bodyErr error
	code, err := runBody(p, c, inheritedDeadline, func() int {
		code, err := p.runGraph(ctx, c)
		if err != nil {
			bodyErr = err
		}
		return code
	})
	if bodyErr != nil {
		return 0, bodyErr
	}
	return code, err
}

// Metadata reports the process state including its trigger block.
func (p *Process) Metadata() map[string]any {
	metadata := p.JobGroup.Metadata()
	metadata["trigger"] = p.TriggerConfig
	return metadata
}
