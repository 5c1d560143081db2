package stringutil

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrParameterMissing is returned when a #key# placeholder cannot be
// resolved against the supplied parameter map.
var ErrParameterMissing = errors.New("parameter not found")

var placeholderRe = regexp.MustCompile(`#(.*?)#`)

// FillPlaceholders replaces every #key# occurrence in target with the
// corresponding value from params. Unknown keys fail with
// ErrParameterMissing unless partialFill is set, in which case they are
// left in place.
func FillPlaceholders(target string, params map[string]any, partialFill bool) (string, error) {
	var missing string
	filled := placeholderRe.ReplaceAllStringFunc(target, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := params[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	if missing != "" && !partialFill {
		return filled, fmt.Errorf("%w: %s", ErrParameterMissing, missing)
	}
	return filled, nil
}

// ParseArguments returns a copy of arguments with every string value that
// contains a #key# reference replaced by the parameter value itself,
// preserving the value's type. The whole string is replaced by the first
// reference's value; surrounding text is not kept. arguments must be a
// map[string]any or []any; any other type is returned unchanged.
func ParseArguments(arguments any, params map[string]any) (any, error) {
	switch args := arguments.(type) {
	case map[string]any:
		out := make(map[string]any, len(args))
		for key, value := range args {
			resolved, err := resolveValue(value, params)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(args))
		for i, value := range args {
			resolved, err := resolveValue(value, params)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return arguments, nil
	}
}

func resolveValue(value any, params map[string]any) (any, error) {
	str, ok := value.(string)
	if !ok {
		return value, nil
	}
	match := placeholderRe.FindStringSubmatch(str)
	if match == nil {
		return value, nil
	}
	resolved, ok := params[match[1]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterMissing, match[1])
	}
	return resolved, nil
}

// FlatArgs flattens a map or slice of arguments into a single command-line
// string: key="value" pairs (map) or "value" tokens (slice), each followed
// by the delimiter. Map keys are emitted in sorted order.
func FlatArgs(arguments any, delimiter string) string {
	var sb strings.Builder
	switch args := arguments.(type) {
	case map[string]any:
		keys := make([]string, 0, len(args))
		for key := range args {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sb.WriteString(key)
			sb.WriteString("=\"")
			sb.WriteString(fmt.Sprintf("%v", args[key]))
			sb.WriteString("\"")
			sb.WriteString(delimiter)
		}
	case []any:
		for _, value := range args {
			sb.WriteString("\"")
			sb.WriteString(fmt.Sprintf("%v", value))
			sb.WriteString("\"")
			sb.WriteString(delimiter)
		}
	}
	return sb.String()
}

// ListArgs converts a map of arguments to a sorted list of key=value
// strings.
func ListArgs(arguments map[string]any) []string {
	keys := make([]string, 0, len(arguments))
	for key := range arguments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(arguments))
	for _, key := range keys {
		out = append(out, fmt.Sprintf("%s=%v", key, arguments[key]))
	}
	return out
}

// ParseDuration parses a duration authored as HH:MM:SS. Hours may exceed
// 23.
func ParseDuration(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q: want HH:MM:SS", value)
	}
	var h, m, s int
	if _, err := fmt.Sscanf(value, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if m < 0 || m > 59 || s < 0 || s > 59 || h < 0 {
		return 0, fmt.Errorf("invalid duration %q: component out of range", value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}

// FormatDuration renders a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}
