package marshal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/heretate/fbpscheduler/internal/cache"
	"github.com/heretate/fbpscheduler/internal/entity"
)

// Snapshot is the serializable state of a scheduler: cache contents,
// process configs (sans live trigger tasks), and the queues as entity id
// lists resolvable against the cache metadata index. Handlers serialize
// to Callable envelopes and must be re-attached on load.
type Snapshot struct {
	ID                 string
	ReadPath           string
	SavePath           string
	CacheParameters    map[string]map[string]any
	CacheMetadata      map[string]map[string]any
	ProcessConfigs     map[string]ProcessConfigState
	InitiatedProcesses []string
	RunQueue           []string
	EndedProcesses     []string
}

// ProcessConfigState is one watched file's entry in a snapshot.
type ProcessConfigState struct {
	Config         map[string]any
	LastUnmodified time.Time
	Trigger        map[string]any
}

// Encode renders the snapshot with all typed values enveloped.
func (s *Snapshot) Encode() ([]byte, error) {
	configs := map[string]any{}
	for name, state := range s.ProcessConfigs {
		configs[name] = map[string]any{
			"config":          EncodeValue(state.Config),
			"last_unmodified": EncodeValue(state.LastUnmodified),
			"trigger":         EncodeValue(state.Trigger),
			"trigger_task":    CallableEnvelope(),
		}
	}
	doc := map[string]any{
		"id":                  s.ID,
		"read_path":           s.ReadPath,
		"save_path":           s.SavePath,
		"cache": map[string]any{
			"parameters": EncodeValue(s.CacheParameters),
			"metadata":   EncodeValue(s.CacheMetadata),
		},
		"process_configs":     configs,
		"initiated_processes": EncodeValue(s.InitiatedProcesses),
		"run_queue":           EncodeValue(s.RunQueue),
		"ended_processes":     EncodeValue(s.EndedProcesses),
		"date_modifier":       CallableEnvelope(),
		"termination_handler": CallableEnvelope(),
		"cache_handler":       CallableEnvelope(),
		"entity_handler":      CallableEnvelope(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeSnapshot parses an encoded snapshot back into typed state.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	decodedAny, err := DecodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	doc, ok := decodedAny.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid snapshot: not an object")
	}

	s := &Snapshot{
		ProcessConfigs:  map[string]ProcessConfigState{},
		CacheParameters: map[string]map[string]any{},
		CacheMetadata:   map[string]map[string]any{},
	}
	s.ID, _ = doc["id"].(string)
	s.ReadPath, _ = doc["read_path"].(string)
	s.SavePath, _ = doc["save_path"].(string)

	if cacheDoc, ok := doc["cache"].(map[string]any); ok {
		s.CacheParameters = toNestedMap(cacheDoc["parameters"])
		s.CacheMetadata = toNestedMap(cacheDoc["metadata"])
	}
	if configs, ok := doc["process_configs"].(map[string]any); ok {
		for name, stateAny := range configs {
			state, ok := stateAny.(map[string]any)
			if !ok {
				continue
			}
			entry := ProcessConfigState{}
			entry.Config, _ = state["config"].(map[string]any)
			entry.Trigger, _ = state["trigger"].(map[string]any)
			if ts, ok := state["last_unmodified"].(time.Time); ok {
				entry.LastUnmodified = ts
			}
			s.ProcessConfigs[name] = entry
		}
	}
	s.InitiatedProcesses = toStringSlice(doc["initiated_processes"])
	s.RunQueue = toStringSlice(doc["run_queue"])
	s.EndedProcesses = toStringSlice(doc["ended_processes"])
	return s, nil
}

func toNestedMap(value any) map[string]map[string]any {
	out := map[string]map[string]any{}
	top, ok := value.(map[string]any)
	if !ok {
		return out
	}
	for key, subAny := range top {
		if sub, ok := subAny.(map[string]any); ok {
			out[key] = sub
		}
	}
	return out
}

func toStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// RestoreCache rebuilds a cache from snapshot state. The node tree is
// rematerialized from the parameter index's id paths, parents first.
func RestoreCache(s *Snapshot) *cache.Cache {
	root := s.ID
	c := cache.New(root, s.CacheParameters[root], nil, nil)

	// Materialize nodes shortest-path-first so parents exist before
	// children.
	ids := make([]string, 0, len(s.CacheParameters))
	for id := range s.CacheParameters {
		if id != root {
			ids = append(ids, id)
		}
	}
	sortByDepth(ids)
	for _, id := range ids {
		if err := c.SetChild(id); err != nil {
			continue
		}
		c.SetParameters(id, s.CacheParameters[id])
	}
	for _, metadata := range s.CacheMetadata {
		c.SetMetadata(metadata)
	}
	return c
}

func sortByDepth(ids []string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			if depth(ids[j]) < depth(ids[j-1]) {
				ids[j], ids[j-1] = ids[j-1], ids[j]
			}
		}
	}
}

func depth(id string) int {
	return len(cache.SplitID(id))
}

// RestoreEntity rebuilds an entity tree rooted at id from the snapshot's
// metadata index.
func RestoreEntity(id string, metadata map[string]map[string]any) (entity.Entity, error) {
	meta, ok := metadata[id]
	if !ok {
		return nil, fmt.Errorf("no metadata for entity %s", id)
	}
	objectType, ok := meta["object_type"].(entity.ObjectType)
	if !ok {
		return nil, fmt.Errorf("entity %s has no object type", id)
	}

	switch objectType {
	case entity.ObjectTypeJob:
		job := entity.NewJob(id)
		restoreCore(&job.EmbeddedCore, meta)
		if runType, ok := meta["run_type"].(entity.RunType); ok {
			job.RunType = runType
		}
		job.Command = metaString(meta, "command")
		job.Module = metaString(meta, "module")
		job.Parameters = meta["parameters"]
		if delim := metaString(meta, "parameter_delimiter"); delim != "" {
			job.ParameterDelimiter = delim
		}
		job.SuccessCode = metaInt(meta, "success_code")
		job.ReturnCode = metaInt(meta, "return_code")
		job.Message = metaString(meta, "message")
		return job, nil
	case entity.ObjectTypeJobGroup:
		group := entity.NewJobGroup(id)
		restoreCore(&group.EmbeddedCore, meta)
		if err := restoreGraph(&group.Graph, meta, metadata); err != nil {
			return nil, err
		}
		return group, nil
	case entity.ObjectTypeProcess:
		process := entity.NewProcess(id)
		restoreCore(&process.EmbeddedCore, meta)
		if triggerConfig, ok := meta["trigger"].(map[string]any); ok {
			process.TriggerConfig = triggerConfig
		}
		if err := restoreGraph(&process.Graph, meta, metadata); err != nil {
			return nil, err
		}
		return process, nil
	default:
		return nil, fmt.Errorf("entity %s has unrestorable type %s", id, objectType)
	}
}

func restoreCore(core *entity.Core, meta map[string]any) {
	core.Name = metaString(meta, "name")
	core.Description = metaString(meta, "description")
	if status, ok := meta["status"].(entity.Status); ok {
		core.Status = status
	}
	if policy, ok := meta["exception_handling"].(entity.ExceptionPolicy); ok {
		core.ExceptionHandling = policy
	}
	if ts, ok := meta["start_time"].(time.Time); ok {
		core.StartTime = ts
	}
	if ts, ok := meta["end_time"].(time.Time); ok {
		core.EndTime = ts
	}
	if ts, ok := meta["deadline"].(time.Time); ok {
		core.Deadline = ts
	}
	if seconds, ok := meta["deadline_offset"].(float64); ok {
		core.DeadlineOffset = time.Duration(seconds * float64(time.Second))
	}
	if seconds, ok := meta["timeout"].(float64); ok {
		core.Timeout = time.Duration(seconds * float64(time.Second))
	}
	if deps, ok := meta["dependencies"].(map[string]any); ok {
		for name, depAny := range deps {
			depID, _ := depAny.(string)
			core.AddDependency(name, depID)
		}
	}
	if conditions, ok := meta["conditions"].([]any); ok {
		for _, pairAny := range conditions {
			if pair, ok := pairAny.([]any); ok && len(pair) == 2 {
				module, _ := pair[0].(string)
				function, _ := pair[1].(string)
				core.Conditions = append(core.Conditions, entity.Condition{Module: module, Function: function})
			}
		}
	}
}

func restoreGraph(g *entity.Graph, meta map[string]any, metadata map[string]map[string]any) error {
	childIDs := toStringSlice(meta["graph_entities"])
	for _, childID := range childIDs {
		child, err := RestoreEntity(childID, metadata)
		if err != nil {
			return err
		}
		g.Append(child)
	}
	if frame, ok := meta["graph"].(map[string]map[string]int); ok {
		g.SetMatrix(entity.MatrixFromDict(childIDs, frame))
	}
	return nil
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaInt(meta map[string]any, key string) int {
	switch n := meta[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
