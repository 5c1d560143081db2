package entity

import (
	"context"
	"time"

	"github.com/heretate/fbpscheduler/internal/cache"
)

// JobGroup is a nestable DAG of entities. Children execute sequentially
// in dependency order; a child's non-zero code propagates up as the
// maximum seen.
type JobGroup struct {
	EmbeddedCore
	Graph
}

var _ Entity = (*JobGroup)(nil)

// NewJobGroup returns a JobGroup with the group default of re-queueing
// on failure.
func NewJobGroup(id string) *JobGroup {
	core := NewCore(id, ObjectTypeJobGroup)
	core.ExceptionHandling = PolicyRepeat
	return &JobGroup{EmbeddedCore: core, Graph: NewGraph()}
}

// Execute walks the dependency matrix until it drains or a child's
// failure propagates. Re-runs keep the matrix state so finished children
// are not repeated.
func (g *JobGroup) Execute(ctx context.Context, c *cache.Cache, inheritedDeadline time.Time) (int, error) {
	var bodyErr error
	code, err := runBody(g, c, inheritedDeadline, func() int {
		code, err := g.runGraph(ctx, c)
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

func (g *JobGroup) runGraph(ctx context.Context, c *cache.Cache) (int, error) {
	// A fresh run rebuilds the matrix; a re-run resumes the drained one.
	if g.Status == StatusRunning || g.Matrix() == nil {
		g.GenerateGraph(true)
	}

	executionStatusCode := 0
	for {
		progressed := false
		for _, id := range g.EntityIDs() {
			child := g.Entity(id)
			if g.Matrix().RowSum(id) != 0 || child.Core().Status == StatusFinished {
				continue
			}
			progressed = true
			childCode, err := child.Execute(ctx, c, g.Deadline)
			if err != nil {
				return 0, err
			}
			if childCode == 0 {
				g.Matrix().ZeroColumn(id)
			} else if childCode > executionStatusCode {
				executionStatusCode = childCode
			}
		}

		if executionStatusCode != 0 {
			return executionStatusCode, nil
		}
		if !progressed {
			if g.Matrix().Sum() == 0 {
				return 0, nil
			}
			// No runnable row while edges remain: the dependencies are
			// cyclic and can never drain.
			g.logger().Error("Dependency graph cannot make progress", "entityId", g.ID)
			return int(StatusFailure), nil
		}
	}
}

// Terminate cascades failure to every child not already finished.
func (g *JobGroup) Terminate(c *cache.Cache) {
	if g.Status == StatusFinished {
		return
	}
	g.Status = StatusFailure
	g.EndTime = g.clock()()
	for _, child := range g.Entities() {
		child.Terminate(c)
	}
	if c != nil {
		c.ReadState(g.Metadata(), true)
	}
}

// Metadata reports the group's state plus its child ids and matrix.
func (g *JobGroup) Metadata() map[string]any {
	metadata := g.coreMetadata()
	metadata["graph_entities"] = g.EntityIDs()
	if m := g.Matrix(); m != nil {
		metadata["graph"] = m
	} else {
		metadata["graph"] = NewMatrix(g.EntityIDs())
	}
	return metadata
}
