package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/heretate/fbpscheduler/internal/logger"
)

// CronTrigger fires on a standard five-field cron expression in the
// machine's local time zone.
type CronTrigger struct {
	base
	expression string
	schedule   cron.Schedule
}

// NewCronTrigger parses expression and arms the trigger for the next
// matching instant after now.
func NewCronTrigger(expression string, callback Callback, modifier DateModifier, action ModifierAction, log logger.Logger) (*CronTrigger, error) {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	t := &CronTrigger{
		base:       newBase(callback, modifier, action, log),
		expression: expression,
		schedule:   schedule,
	}
	t.date = schedule.Next(t.now())
	t.hasDate = true
	t.next = t.Next
	return t, nil
}

// Expression returns the trigger's cron expression.
func (t *CronTrigger) Expression() string { return t.expression }

func (t *CronTrigger) Next() (time.Time, bool) {
	return t.schedule.Next(t.now()), true
}

// DateTrigger fires once at a given datetime.
type DateTrigger struct {
	base
	triggerTime time.Time
}

// NewDateTrigger arms a single firing at triggerTime.
func NewDateTrigger(triggerTime time.Time, callback Callback, modifier DateModifier, action ModifierAction, log logger.Logger) *DateTrigger {
	t := &DateTrigger{
		base:        newBase(callback, modifier, action, log),
		triggerTime: triggerTime,
	}
	t.date = triggerTime
	t.hasDate = true
	t.next = t.Next
	return t
}

func (t *DateTrigger) Next() (time.Time, bool) {
	return time.Time{}, false
}

// InstantTrigger fires once, immediately.
type InstantTrigger struct {
	base
}

// NewInstantTrigger arms a single firing at the current instant.
func NewInstantTrigger(callback Callback, log logger.Logger) *InstantTrigger {
	t := &InstantTrigger{base: newBase(callback, nil, DefaultAction, log)}
	t.date = t.now()
	t.hasDate = true
	t.next = t.Next
	return t
}

func (t *InstantTrigger) Next() (time.Time, bool) {
	return time.Time{}, false
}

// timeLayouts are the accepted forms for an authored trigger time.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an authored trigger time, trying a fixed set of
// layouts in the local time zone.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized trigger time %q", value)
}
