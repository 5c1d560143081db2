package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstantTrigger(t *testing.T) {
	var fired atomic.Int32
	trg := NewInstantTrigger(func() { fired.Add(1) }, nil)

	err := trg.Activate(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), fired.Load())

	_, ok := trg.Next()
	require.False(t, ok)
}

func TestDateTrigger(t *testing.T) {
	t.Run("FiresNotBeforeTriggerDate", func(t *testing.T) {
		fireAt := time.Now().Add(150 * time.Millisecond)
		var firedAt time.Time
		trg := NewDateTrigger(fireAt, func() { firedAt = time.Now() }, nil, DefaultAction, nil)

		require.NoError(t, trg.Activate(context.Background()))
		require.False(t, firedAt.Before(fireAt))
	})

	t.Run("PastDateFiresImmediately", func(t *testing.T) {
		var fired atomic.Int32
		trg := NewDateTrigger(time.Now().Add(-time.Hour), func() { fired.Add(1) }, nil, DefaultAction, nil)
		require.NoError(t, trg.Activate(context.Background()))
		require.Equal(t, int32(1), fired.Load())
	})

	t.Run("Cancellation", func(t *testing.T) {
		trg := NewDateTrigger(time.Now().Add(time.Hour), func() { t.Error("should not fire") }, nil, DefaultAction, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- trg.Activate(ctx) }()
		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("trigger did not release its sleep on cancellation")
		}
	})
}

func TestCronTrigger(t *testing.T) {
	t.Run("InvalidExpression", func(t *testing.T) {
		_, err := NewCronTrigger("not a cron", func() {}, nil, DefaultAction, nil)
		require.Error(t, err)
	})

	t.Run("NextAfterNow", func(t *testing.T) {
		trg, err := NewCronTrigger("*/1 * * * *", func() {}, nil, DefaultAction, nil)
		require.NoError(t, err)
		next, ok := trg.Next()
		require.True(t, ok)
		require.True(t, next.After(time.Now()))
		require.Zero(t, next.Second())
	})
}

func TestModifierActions(t *testing.T) {
	t.Run("KeepReplacesDate", func(t *testing.T) {
		var fired atomic.Int32
		trg := NewDateTrigger(time.Now().Add(time.Hour),
			func() { fired.Add(1) },
			func(time.Time) time.Time { return time.Now().Add(-time.Minute) },
			ActionKeep, nil)

		start := time.Now()
		require.NoError(t, trg.Activate(context.Background()))
		// The hour-away date was replaced by the already-due one.
		require.Equal(t, int32(1), fired.Load())
		require.Less(t, time.Since(start), time.Minute)
	})

	t.Run("UnmodifyIgnoresModifier", func(t *testing.T) {
		fireAt := time.Now().Add(100 * time.Millisecond)
		var fired atomic.Int32
		trg := NewDateTrigger(fireAt,
			func() { fired.Add(1) },
			func(d time.Time) time.Time { return d.Add(time.Hour) },
			ActionUnmodify, nil)

		require.NoError(t, trg.Activate(context.Background()))
		require.Equal(t, int32(1), fired.Load())
	})

	t.Run("DeleteSkipsFiring", func(t *testing.T) {
		var fired atomic.Int32
		trg := NewDateTrigger(time.Now().Add(50*time.Millisecond),
			func() { fired.Add(1) },
			func(d time.Time) time.Time { return d.Add(time.Second) },
			ActionDelete, nil)

		// A date trigger has no next date, so deleting the only firing
		// ends the activation without a callback.
		require.NoError(t, trg.Activate(context.Background()))
		require.Equal(t, int32(0), fired.Load())
	})

	t.Run("UnchangedDateNotModified", func(t *testing.T) {
		var fired atomic.Int32
		trg := NewDateTrigger(time.Now().Add(50*time.Millisecond),
			func() { fired.Add(1) },
			func(d time.Time) time.Time { return d },
			ActionDelete, nil)

		require.NoError(t, trg.Activate(context.Background()))
		require.Equal(t, int32(1), fired.Load())
	})
}

func TestParseModifierAction(t *testing.T) {
	tests := []struct {
		value    string
		expected ModifierAction
	}{
		{"keep", ActionKeep},
		{"unmodify", ActionUnmodify},
		{"delete", ActionDelete},
		{"", DefaultAction},
		{"bogus", DefaultAction},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			require.Equal(t, tt.expected, ParseModifierAction(tt.value))
		})
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory(nil)

	t.Run("Cron", func(t *testing.T) {
		trg, err := factory.CreateTrigger(map[string]any{
			"Trigger Type":    "cron",
			"Cron Expression": "*/5 * * * *",
		}, func() {}, nil)
		require.NoError(t, err)
		cronTrigger, ok := trg.(*CronTrigger)
		require.True(t, ok)
		require.Equal(t, "*/5 * * * *", cronTrigger.Expression())
	})

	t.Run("Datetime", func(t *testing.T) {
		trg, err := factory.CreateTrigger(map[string]any{
			"Trigger Type": "datetime",
			"Trigger Time": "2030-06-01 08:00:00",
		}, func() {}, nil)
		require.NoError(t, err)
		require.IsType(t, &DateTrigger{}, trg)
	})

	t.Run("Instant", func(t *testing.T) {
		trg, err := factory.CreateTrigger(map[string]any{
			"Trigger Type": "instant",
		}, func() {}, nil)
		require.NoError(t, err)
		require.IsType(t, &InstantTrigger{}, trg)
	})

	t.Run("ModifierActionParsed", func(t *testing.T) {
		trg, err := factory.CreateTrigger(map[string]any{
			"Trigger Type":    "cron",
			"Cron Expression": "0 8 * * *",
			"Modifier Action": "delete",
		}, func() {}, nil)
		require.NoError(t, err)
		require.Equal(t, ActionDelete, trg.(*CronTrigger).action)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := factory.CreateTrigger(map[string]any{"Trigger Type": "interval"}, func() {}, nil)
		require.Error(t, err)
	})

	t.Run("BadTriggerTime", func(t *testing.T) {
		_, err := factory.CreateTrigger(map[string]any{
			"Trigger Type": "datetime",
			"Trigger Time": "whenever",
		}, func() {}, nil)
		require.Error(t, err)
	})
}

func TestParseTime(t *testing.T) {
	parsed, err := ParseTime("2030-06-01T08:30:00")
	require.NoError(t, err)
	require.Equal(t, 2030, parsed.Year())
	require.Equal(t, 30, parsed.Minute())

	_, err = ParseTime("June first")
	require.Error(t, err)
}
