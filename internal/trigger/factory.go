package trigger

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/heretate/fbpscheduler/internal/logger"
)

// Spec is the trigger block of a process definition. Field names follow
// the document format.
type Spec struct {
	TriggerType    string `mapstructure:"Trigger Type"`
	TriggerTime    string `mapstructure:"Trigger Time"`
	CronExpression string `mapstructure:"Cron Expression"`
	ModifierAction string `mapstructure:"Modifier Action"`
}

// DecodeSpec decodes a trigger config block into a Spec.
func DecodeSpec(config map[string]any) (Spec, error) {
	var spec Spec
	if err := mapstructure.Decode(config, &spec); err != nil {
		return Spec{}, fmt.Errorf("invalid trigger config: %w", err)
	}
	return spec, nil
}

// Factory builds trigger variants from config blocks.
type Factory struct {
	log logger.Logger
}

// NewFactory returns a trigger factory logging through log.
func NewFactory(log logger.Logger) *Factory {
	if log == nil {
		log = logger.Default
	}
	return &Factory{log: log}
}

// CreateTrigger selects a trigger variant by the config's Trigger Type
// and arms it with the given callback and date modifier. The instant
// variant is armed without the date modifier.
func (f *Factory) CreateTrigger(config map[string]any, callback Callback, modifier DateModifier) (Trigger, error) {
	spec, err := DecodeSpec(config)
	if err != nil {
		return nil, err
	}
	action := ParseModifierAction(spec.ModifierAction)

	switch spec.TriggerType {
	case "cron":
		return NewCronTrigger(spec.CronExpression, callback, modifier, action, f.log)
	case "datetime":
		triggerTime, err := ParseTime(spec.TriggerTime)
		if err != nil {
			return nil, err
		}
		return NewDateTrigger(triggerTime, callback, modifier, action, f.log), nil
	case "instant":
		return NewInstantTrigger(callback, f.log), nil
	default:
		return nil, fmt.Errorf("unrecognized trigger type %q", spec.TriggerType)
	}
}
