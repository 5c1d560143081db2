package entity

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Spec is the decoded form of one entity block in a process definition
// document. Tags carry the document's display field names; fieldTable
// lets a loader accept the internal names as well.
type Spec struct {
	ObjectType        string     `mapstructure:"Object Type"`
	Name              string     `mapstructure:"Name"`
	Description       string     `mapstructure:"Description"`
	Deadline          string     `mapstructure:"Deadline"`
	ExceptionHandling string     `mapstructure:"Exception Handling"`
	Conditions        [][]string `mapstructure:"Conditions"`
	Dependencies      []string   `mapstructure:"Dependencies"`
	Parameters        any        `mapstructure:"Parameters"`

	// Job fields.
	RunType            string  `mapstructure:"Run Type"`
	Command            string  `mapstructure:"Command"`
	Module             string  `mapstructure:"Module"`
	ParameterDelimiter *string `mapstructure:"Parameter Delimiter"`
	SuccessCode        *int    `mapstructure:"Success Code"`

	// JobGroup fields.
	Jobs []map[string]any `mapstructure:"Jobs"`

	// Process fields.
	EntityList []map[string]any `mapstructure:"Entity List"`
	Trigger    map[string]any   `mapstructure:"Trigger"`
}

// fieldTable maps internal field names to the document's display names.
// A document may use either form; internal names are rewritten before
// decoding.
var fieldTable = map[string]string{
	"object_type":         "Object Type",
	"name":                "Name",
	"description":         "Description",
	"deadline":            "Deadline",
	"exception_handling":  "Exception Handling",
	"conditions":          "Conditions",
	"dependencies":        "Dependencies",
	"parameters":          "Parameters",
	"run_type":            "Run Type",
	"command":             "Command",
	"module":              "Module",
	"parameter_delimiter": "Parameter Delimiter",
	"success_code":        "Success Code",
	"jobs":                "Jobs",
	"entity_list":         "Entity List",
	"trigger":             "Trigger",
}

// normalizeKeys rewrites internal field names to display names. Display
// names win when both forms are present.
func normalizeKeys(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		if display, ok := fieldTable[key]; ok {
			if _, exists := doc[display]; !exists {
				out[display] = value
			}
			continue
		}
		out[key] = value
	}
	return out
}

// DecodeSpec decodes one entity document block, accepting display or
// internal field names.
func DecodeSpec(doc map[string]any) (Spec, error) {
	var spec Spec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Spec{}, err
	}
	if err := decoder.Decode(normalizeKeys(doc)); err != nil {
		return Spec{}, fmt.Errorf("invalid entity config: %w", err)
	}
	return spec, nil
}
