// Package trigger provides the time triggers that fire process
// instantiation callbacks: cron schedules, single datetimes, and instant
// fires. A configured date modifier may shift, drop, or preserve each
// firing according to its modifier action.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/heretate/fbpscheduler/internal/logger"
)

// Callback is invoked at each fire time. It must return quickly; long
// work belongs on the scheduler side.
type Callback func()

// DateModifier inspects an upcoming fire time and returns a possibly
// shifted one.
type DateModifier func(time.Time) time.Time

// ModifierAction selects how a modified date is applied.
type ModifierAction int

const (
	// ActionKeep replaces the fire time when the modifier changed it.
	ActionKeep ModifierAction = iota + 1
	// ActionUnmodify ignores the modifier's output.
	ActionUnmodify
	// ActionDelete skips the firing entirely when the modifier changed
	// its date.
	ActionDelete
)

// DefaultAction is applied when a trigger config names no modifier
// action.
const DefaultAction = ActionKeep

func (a ModifierAction) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionUnmodify:
		return "unmodify"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("ModifierAction(%d)", int(a))
	}
}

// ParseModifierAction maps a config string to its action. Unknown values
// fall back to DefaultAction.
func ParseModifierAction(value string) ModifierAction {
	switch value {
	case "keep":
		return ActionKeep
	case "unmodify":
		return ActionUnmodify
	case "delete":
		return ActionDelete
	default:
		return DefaultAction
	}
}

// Trigger fires a callback on a schedule until its dates run out or its
// context is canceled.
type Trigger interface {
	// Next computes the fire time after the current one. ok is false
	// when the trigger has no further firings.
	Next() (time.Time, bool)
	// Activate runs the firing loop. It returns nil when the trigger has
	// no more dates, or the context error on cancellation.
	Activate(ctx context.Context) error
}

// base carries the firing loop shared by all trigger variants. The
// concrete type supplies next.
type base struct {
	date     time.Time
	hasDate  bool
	action   ModifierAction
	modifier DateModifier
	callback Callback
	next     func() (time.Time, bool)
	now      func() time.Time
	log      logger.Logger
}

func newBase(callback Callback, modifier DateModifier, action ModifierAction, log logger.Logger) base {
	if log == nil {
		log = logger.Default
	}
	if action == 0 {
		action = DefaultAction
	}
	return base{
		action:   action,
		modifier: modifier,
		callback: callback,
		now:      time.Now,
		log:      log,
	}
}

func (b *base) Activate(ctx context.Context) error {
	for b.hasDate {
		if b.modifier != nil {
			b.applyModification(b.modifier(b.date))
			if !b.hasDate {
				break
			}
		}

		delay := time.Until(b.date)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		b.callback()
		b.date, b.hasDate = b.next()
	}
	b.log.Info("Trigger will no longer call back")
	return nil
}

func (b *base) applyModification(newDate time.Time) {
	if newDate.Equal(b.date) {
		return
	}
	switch b.action {
	case ActionKeep:
		b.date = newDate
	case ActionDelete:
		b.log.Info("Trigger firing dropped by date modifier", "date", b.date)
		b.date, b.hasDate = b.next()
	case ActionUnmodify:
	}
}
