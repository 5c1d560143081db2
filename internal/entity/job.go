package entity

import (
	"context"
	"time"

	"github.com/heretate/fbpscheduler/internal/cache"
	"github.com/heretate/fbpscheduler/internal/evaluator"
	"github.com/heretate/fbpscheduler/internal/stringutil"
)

// DefaultParameterDelimiter separates flattened command-line arguments.
const DefaultParameterDelimiter = "; "

// Job is a leaf entity whose body is an external command or a
// host-registered handler.
type Job struct {
	EmbeddedCore

	RunType            RunType
	Command            string
	Module             string
	Parameters         any
	ParameterDelimiter string
	SuccessCode        int
	ReturnCode         int
	Message            string
}

var _ Entity = (*Job)(nil)

// NewJob returns a Job with the leaf defaults: kill on failure, success
// code 0.
func NewJob(id string) *Job {
	core := NewCore(id, ObjectTypeJob)
	core.ExceptionHandling = PolicyKill
	return &Job{
		EmbeddedCore:       core,
		ParameterDelimiter: DefaultParameterDelimiter,
	}
}

// Execute resolves parameters, fills placeholders, dispatches to the
// run-type evaluator, and applies the status lifecycle.
func (j *Job) Execute(ctx context.Context, c *cache.Cache, inheritedDeadline time.Time) (int, error) {
	return runBody(j, c, inheritedDeadline, func() int {
		return j.run(ctx, c)
	})
}

func (j *Job) run(ctx context.Context, c *cache.Cache) int {
	params := map[string]any{}
	if c != nil {
		params = c.GetParameters(j.ID, true)
	}

	arguments, err := stringutil.ParseArguments(j.Parameters, params)
	if err != nil {
		j.appendLog("Could not resolve job arguments: "+err.Error(), true)
		return 1
	}
	flatArguments := stringutil.FlatArgs(arguments, j.ParameterDelimiter)
	command, err := stringutil.FillPlaceholders(j.Command, params, false)
	if err != nil {
		j.appendLog("Could not resolve command: "+err.Error(), true)
		return 1
	}

	var output string
	switch j.RunType {
	case RunTypePython:
		module, err := stringutil.FillPlaceholders(j.Module, params, false)
		if err != nil {
			j.appendLog("Could not resolve module: "+err.Error(), true)
			return 1
		}
		j.appendLog("Executing: "+command+" "+flatArguments+" from "+module, false)
		j.ReturnCode, output = j.Registry().Evaluate(ctx, module, command, handlerArgs(arguments), c, j.Timeout)
	case RunTypeCmd:
		j.appendLog("Executing: "+command+" "+flatArguments, false)
		j.ReturnCode, output = evaluator.Command(ctx, command, flatArguments, j.Timeout)
	default:
		j.appendLog("Unrecognized run type for "+j.Name, true)
		return 1
	}

	if j.ReturnCode == j.SuccessCode {
		j.appendLog(output, false)
		return 0
	}
	j.appendLog(output, true)
	return 1
}

// handlerArgs shapes resolved job parameters for a handler call. List
// parameters are passed under a single Arguments key.
func handlerArgs(arguments any) map[string]any {
	switch args := arguments.(type) {
	case map[string]any:
		return args
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"Arguments": args}
	}
}

// appendLog accumulates message output. While re-running, repeated logs
// for the same instance are suppressed until the deadline passes.
func (j *Job) appendLog(message string, warning bool) {
	j.Message += message
	if j.Status == StatusReRunning {
		return
	}
	if warning {
		j.logger().Warn(message, "entityId", j.ID)
		if j.ExceptionHandling == PolicyRepeat {
			j.logger().Infof("%s will re-run. Future warnings pertaining to this job instance will be silenced until the deadline has passed.", j.Name)
		}
		return
	}
	if message != "" {
		j.logger().Info(message, "entityId", j.ID)
	}
}

// Terminate forces the job to failure unless it already finished.
func (j *Job) Terminate(c *cache.Cache) {
	if j.Status == StatusFinished {
		return
	}
	j.Status = StatusFailure
	j.EndTime = j.clock()()
	if c != nil {
		c.ReadState(j.Metadata(), true)
	}
}

// Metadata reports the job's full state.
func (j *Job) Metadata() map[string]any {
	metadata := j.coreMetadata()
	metadata["run_type"] = j.RunType
	metadata["command"] = j.Command
	metadata["module"] = j.Module
	metadata["parameters"] = j.Parameters
	metadata["parameter_delimiter"] = j.ParameterDelimiter
	metadata["success_code"] = j.SuccessCode
	metadata["return_code"] = j.ReturnCode
	metadata["message"] = j.Message
	return metadata
}
