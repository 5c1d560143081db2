package entity

import (
	"fmt"
	"strconv"

	"github.com/heretate/fbpscheduler/internal/cache"
	"github.com/heretate/fbpscheduler/internal/evaluator"
	"github.com/heretate/fbpscheduler/internal/logger"
	"github.com/heretate/fbpscheduler/internal/stringutil"
)

// subDelimiter separates a level's type prefix from its sibling number.
const subDelimiter = "-"

// Factory builds entity trees from process definition documents,
// allocating ids and resolving dependency names.
type Factory struct {
	log      logger.Logger
	registry *evaluator.Registry
}

// NewFactory returns an entity factory. Entities it builds share the
// given evaluator registry.
func NewFactory(log logger.Logger, registry *evaluator.Registry) *Factory {
	if log == nil {
		log = logger.Default
	}
	if registry == nil {
		registry = evaluator.NewRegistry()
	}
	return &Factory{log: log, registry: registry}
}

// GenerateID allocates the next free sibling id under parentID for the
// given object type: the first unused integer suffix at or above 1.
func (f *Factory) GenerateID(parentID string, objectType ObjectType, c *cache.Cache) string {
	prefix := parentID + cache.Delimiter + objectType.Prefix() + subDelimiter
	for number := 1; ; number++ {
		candidate := prefix + strconv.Itoa(number)
		if !c.IsChild(parentID, candidate) {
			return candidate
		}
	}
}

// Parse recursively builds the entity tree for one document block,
// reserving ids in the cache and publishing initial metadata.
func (f *Factory) Parse(parentID string, doc map[string]any, c *cache.Cache) (Entity, error) {
	spec, err := DecodeSpec(doc)
	if err != nil {
		return nil, err
	}
	objectType, err := ParseObjectType(spec.ObjectType)
	if err != nil {
		return nil, err
	}

	entityID := f.GenerateID(parentID, objectType, c)
	if err := c.SetChild(entityID); err != nil {
		return nil, fmt.Errorf("could not reserve %s: %w", entityID, err)
	}

	var parsed Entity
	switch objectType {
	case ObjectTypeJob:
		parsed, err = f.parseJob(entityID, spec)
	case ObjectTypeJobGroup:
		parsed, err = f.parseJobGroup(entityID, spec, c)
	case ObjectTypeProcess:
		parsed, err = f.parseProcess(entityID, spec, doc, c)
	default:
		err = fmt.Errorf("unrecognized object type %q", spec.ObjectType)
	}
	if err != nil {
		return nil, err
	}

	c.ReadState(parsed.Metadata(), true)
	return parsed, nil
}

func (f *Factory) fillCore(core *Core, spec Spec, defaultPolicy ExceptionPolicy) error {
	core.Name = spec.Name
	core.Description = spec.Description
	core.SetLogger(f.log)
	core.SetRegistry(f.registry)

	if spec.Deadline != "" {
		offset, err := stringutil.ParseDuration(spec.Deadline)
		if err != nil {
			return err
		}
		core.DeadlineOffset = offset
	}

	core.ExceptionHandling = defaultPolicy
	if spec.ExceptionHandling != "" {
		policy, err := ParseExceptionPolicy(spec.ExceptionHandling)
		if err != nil {
			return err
		}
		core.ExceptionHandling = policy
	}

	for _, name := range spec.Dependencies {
		core.AddDependency(name, "")
	}
	for _, pair := range spec.Conditions {
		if len(pair) != 2 {
			return fmt.Errorf("invalid condition %v: want [module, function]", pair)
		}
		core.Conditions = append(core.Conditions, Condition{Module: pair[0], Function: pair[1]})
	}
	return nil
}

func (f *Factory) parseJob(jobID string, spec Spec) (*Job, error) {
	job := NewJob(jobID)
	if err := f.fillCore(&job.EmbeddedCore, spec, PolicyKill); err != nil {
		return nil, err
	}

	runType, err := ParseRunType(spec.RunType)
	if err != nil {
		return nil, err
	}
	job.RunType = runType
	job.Command = spec.Command
	job.Module = spec.Module
	job.Parameters = spec.Parameters
	if spec.ParameterDelimiter != nil {
		job.ParameterDelimiter = *spec.ParameterDelimiter
	}
	if spec.SuccessCode != nil {
		job.SuccessCode = *spec.SuccessCode
	}
	return job, nil
}

func (f *Factory) parseJobGroup(groupID string, spec Spec, c *cache.Cache) (*JobGroup, error) {
	group := NewJobGroup(groupID)
	if err := f.fillCore(&group.EmbeddedCore, spec, PolicyRepeat); err != nil {
		return nil, err
	}
	f.storeParameters(groupID, spec, c)

	for _, childDoc := range spec.Jobs {
		child, err := f.Parse(groupID, childDoc, c)
		if err != nil {
			return nil, err
		}
		group.Append(child)
	}
	f.resolveDependencies(&group.Graph)
	return group, nil
}

func (f *Factory) parseProcess(processID string, spec Spec, doc map[string]any, c *cache.Cache) (*Process, error) {
	process := NewProcess(processID)
	if err := f.fillCore(&process.EmbeddedCore, spec, PolicyRepeat); err != nil {
		return nil, err
	}
	process.TriggerConfig = spec.Trigger
	f.storeParameters(processID, spec, c)

	for _, childDoc := range spec.EntityList {
		child, err := f.Parse(processID, childDoc, c)
		if err != nil {
			return nil, err
		}
		process.Append(child)
	}
	f.resolveDependencies(&process.Graph)
	return process, nil
}

// storeParameters publishes a group or process Parameters block to its
// cache node so descendants inherit it.
func (f *Factory) storeParameters(entityID string, spec Spec, c *cache.Cache) {
	if params, ok := spec.Parameters.(map[string]any); ok && len(params) > 0 {
		c.SetParameters(entityID, params)
	}
}

// resolveDependencies maps each child's dependency names to sibling ids.
// Names with no matching sibling are dropped with a warning; the build
// itself never fails on them.
func (f *Factory) resolveDependencies(g *Graph) {
	ids := map[string]string{}
	for _, child := range g.Entities() {
		ids[child.Core().Name] = child.Core().ID
	}
	for _, child := range g.Entities() {
		core := child.Core()
		for _, name := range core.DependencyNames() {
			siblingID, ok := ids[name]
			if !ok {
				f.log.Warn("Dropping unresolved dependency", "entityId", core.ID, "dependency", name)
				delete(core.Dependencies, name)
				continue
			}
			core.AddDependency(name, siblingID)
		}
	}
}
