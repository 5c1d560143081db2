// Package marshal implements the typed-value envelope encoding used by
// scheduler snapshots: datetimes, enum members, dependency matrices, and
// callables are wrapped in single-key JSON envelopes so a snapshot can be
// decoded back into typed state. The envelope keys are a compatibility
// contract and must not change.
package marshal

import (
	"fmt"
	"strings"
	"time"

	"github.com/heretate/fbpscheduler/internal/entity"
	"github.com/heretate/fbpscheduler/internal/trigger"
)

// Envelope keys.
const (
	envDatetime  = "Datetime"
	envEnum      = "Enum"
	envDataFrame = "DataFrame"
	envCallable  = "Callable"
)

// enumValue is an enum whose String form is the envelope member; the
// envelope name is supplied by the caller.
type enumValue interface {
	fmt.Stringer
}

// EncodeValue recursively wraps typed values in their envelopes.
// Callables must be encoded by the caller (CallableEnvelope); plain
// scalars pass through.
func EncodeValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return map[string]any{envDatetime: v.Format(time.RFC3339Nano)}
	case time.Duration:
		return v.Seconds()
	case entity.Status:
		return enumEnvelope("Status", v)
	case entity.ObjectType:
		return map[string]any{envEnum: "ObjectType." + objectTypeMember(v)}
	case entity.RunType:
		return enumEnvelope("RunType", v)
	case entity.ExceptionPolicy:
		return enumEnvelope("ExceptionHandlerPolicy", v)
	case trigger.ModifierAction:
		return enumEnvelope("DateModifierPolicy", v)
	case *entity.Matrix:
		if v == nil {
			return nil
		}
		frame := map[string]any{}
		for col, rows := range v.ToDict() {
			rowValues := map[string]any{}
			for row, cell := range rows {
				rowValues[row] = cell
			}
			frame[col] = rowValues
		}
		return map[string]any{envDataFrame: frame}
	case map[string]map[string]int:
		// The decoded form of a DataFrame envelope re-encodes as one.
		frame := map[string]any{}
		for col, rows := range v {
			rowValues := map[string]any{}
			for row, cell := range rows {
				rowValues[row] = cell
			}
			frame[col] = rowValues
		}
		return map[string]any{envDataFrame: frame}
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, sub := range v {
			out[key] = EncodeValue(sub)
		}
		return out
	case map[string]map[string]any:
		out := make(map[string]any, len(v))
		for key, sub := range v {
			out[key] = EncodeValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = EncodeValue(sub)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = sub
		}
		return out
	default:
		return value
	}
}

func enumEnvelope(name string, v enumValue) map[string]any {
	return map[string]any{envEnum: name + "." + v.String()}
}

func objectTypeMember(o entity.ObjectType) string {
	switch o {
	case entity.ObjectTypeJob:
		return "job"
	case entity.ObjectTypeJobGroup:
		return "job_group"
	case entity.ObjectTypeProcess:
		return "process"
	case entity.ObjectTypeScheduler:
		return "scheduler"
	default:
		return ""
	}
}

// CallableEnvelope is the encoded form of any callable: non-restorable,
// re-attached by the host after load.
func CallableEnvelope() map[string]any {
	return map[string]any{envCallable: nil}
}

// DecodeValue reverses EncodeValue. Unknown envelopes decode as plain
// maps.
func DecodeValue(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 1 {
			if iso, ok := v[envDatetime]; ok {
				return decodeDatetime(iso)
			}
			if member, ok := v[envEnum]; ok {
				return decodeEnum(member)
			}
			if frame, ok := v[envDataFrame]; ok {
				return decodeFrame(frame)
			}
			if _, ok := v[envCallable]; ok {
				return nil, nil
			}
		}
		out := make(map[string]any, len(v))
		for key, sub := range v {
			decoded, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			out[key] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			decoded, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return value, nil
	}
}

func decodeDatetime(value any) (any, error) {
	iso, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("invalid Datetime envelope: %v", value)
	}
	parsed, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return nil, fmt.Errorf("invalid Datetime envelope: %w", err)
	}
	return parsed, nil
}

func decodeEnum(value any) (any, error) {
	member, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("invalid Enum envelope: %v", value)
	}
	name, field, found := strings.Cut(member, ".")
	if !found {
		return nil, fmt.Errorf("invalid Enum envelope %q", member)
	}
	switch name {
	case "Status":
		return entity.ParseStatus(field)
	case "ObjectType":
		switch field {
		case "job":
			return entity.ObjectTypeJob, nil
		case "job_group":
			return entity.ObjectTypeJobGroup, nil
		case "process":
			return entity.ObjectTypeProcess, nil
		case "scheduler":
			return entity.ObjectTypeScheduler, nil
		}
		return nil, fmt.Errorf("unknown ObjectType member %q", field)
	case "RunType":
		return entity.ParseRunType(field)
	case "ExceptionHandlerPolicy":
		return entity.ParseExceptionPolicy(field)
	case "DateModifierPolicy":
		return trigger.ParseModifierAction(field), nil
	default:
		return nil, fmt.Errorf("unknown enum %q", name)
	}
}

// decodeFrame decodes a DataFrame envelope into the column-major int
// dict form used to rebuild a Matrix.
func decodeFrame(value any) (any, error) {
	cols, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid DataFrame envelope: %v", value)
	}
	out := map[string]map[string]int{}
	for col, rowsAny := range cols {
		rows, ok := rowsAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid DataFrame column %q", col)
		}
		colOut := map[string]int{}
		for row, cell := range rows {
			switch n := cell.(type) {
			case float64:
				colOut[row] = int(n)
			case int:
				colOut[row] = n
			default:
				return nil, fmt.Errorf("invalid DataFrame cell %q/%q", col, row)
			}
		}
		out[col] = colOut
	}
	return out, nil
}
