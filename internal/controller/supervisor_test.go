package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/logic"
)

func TestConfirmShutdown_QuietAfterFirstSend(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	s := f.supervisor(SupervisorPolicy{Escalate: true})

	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeConfirmed, outcome)
	assert.Equal(t, 1, s.Attempts())
	require.Len(t, f.tx.Sent, 1)
	assert.Equal(t, oldKey, f.tx.Sent[0])
	assert.Equal(t, 20*time.Second, f.clock.Elapsed(), "one full confirmation window")
	assert.Equal(t, 0, f.restarter.Calls)
	assert.Equal(t, []logic.EventType{logic.EventShutdownSent, logic.EventConfirmed}, f.events.EventTypes())
	assert.Equal(t, "ep-1", f.events.Events[1].Episode)
	assert.Equal(t, []string{"AC off sent (1)", "AC off"}, f.screen.Lines)
}

func TestConfirmShutdown_EscalatesAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.inputs = func(time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: true} }

	sentAtRestart := -1
	f.restarter.OnRestart = func() { sentAtRestart = len(f.tx.Sent) }

	s := f.supervisor(SupervisorPolicy{Escalate: true})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeEscalated, outcome)
	assert.Equal(t, DefaultMaxAttempts, s.Attempts())
	assert.Equal(t, 1, f.restarter.Calls)
	assert.Equal(t, DefaultMaxAttempts, sentAtRestart, "restart only after the last attempt")
	assert.Equal(t, []logic.EventType{
		logic.EventShutdownSent, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventEscalate,
	}, f.events.EventTypes())
	assert.Equal(t, "Restarting...", f.screen.Lines[len(f.screen.Lines)-1])
}

func TestConfirmShutdown_RestartError(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.inputs = func(time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: true} }
	f.restarter.Err = errors.New("permission denied")

	outcome, err := f.supervisor(SupervisorPolicy{Escalate: true, MaxAttempts: 2}).
		ConfirmShutdown(context.Background(), "ep-1")

	assert.Equal(t, logic.OutcomeEscalated, outcome)
	assert.EqualError(t, err, "permission denied")
	assert.Len(t, f.tx.Sent, 2)
}

func TestConfirmShutdown_GivesUpWithoutEscalation(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.inputs = func(time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: true} }

	s := f.supervisor(SupervisorPolicy{Escalate: false, MaxAttempts: 3})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")

	assert.Equal(t, logic.OutcomeGaveUp, outcome)
	assert.ErrorIs(t, err, logic.ErrConfirmationTimeout)
	assert.Len(t, f.tx.Sent, 3)
	assert.Equal(t, 0, f.restarter.Calls)
	require.Len(t, f.eventsOf(logic.EventGaveUp), 1)
	assert.Equal(t, 3, f.eventsOf(logic.EventGaveUp)[0].Attempt)
	assert.Equal(t, "AC off failed", f.screen.Lines[len(f.screen.Lines)-1])
}

func TestConfirmShutdown_ConfirmedOnSecondAttempt(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)

	running := true
	f.inputs = func(time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: running} }
	f.tx.OnSend = func([]byte) {
		if len(f.tx.Sent) == 2 {
			running = false
		}
	}

	s := f.supervisor(SupervisorPolicy{Escalate: true})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeConfirmed, outcome)
	assert.Equal(t, 2, s.Attempts())
	assert.Equal(t, 0, f.restarter.Calls)
	assert.Equal(t, []logic.EventType{
		logic.EventShutdownSent, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventConfirmed,
	}, f.events.EventTypes())
	assert.Equal(t, 2, f.eventsOf(logic.EventConfirmed)[0].Attempt)
}

func TestConfirmShutdown_SpinDownWithinWindow(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	// Activity for the first five ticks leaves the grace ending at 15s,
	// inside the 20s window.
	f.inputs = func(e time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: e <= 5*time.Second} }

	s := f.supervisor(SupervisorPolicy{Escalate: true})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeConfirmed, outcome)
	assert.Equal(t, 1, s.Attempts())
}

func TestConfirmShutdown_LateActivityFailsWindow(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	// Activity at 12s pushes the grace past the end of the first window.
	f.inputs = func(e time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: e == 12*time.Second} }

	s := f.supervisor(SupervisorPolicy{Escalate: true})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeConfirmed, outcome)
	assert.Equal(t, 2, s.Attempts())
}

func TestConfirmShutdown_NoKey(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"missing", nil},
		{"too short", []byte("pulse 560\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, at(12, 0, 0))
			if tt.key != nil {
				f.storeKey(tt.key)
			}

			outcome, err := f.supervisor(SupervisorPolicy{Escalate: true}).
				ConfirmShutdown(context.Background(), "ep-1")

			assert.Equal(t, logic.OutcomeAborted, outcome)
			assert.ErrorIs(t, err, logic.ErrNoKeyCaptured)
			assert.Empty(t, f.tx.Sent)
			assert.Equal(t, 0, f.restarter.Calls)
			assert.Equal(t, []logic.EventType{logic.EventNoKey}, f.events.EventTypes())
			assert.Equal(t, []string{"No key - scan first"}, f.screen.Lines)
		})
	}
}

func TestConfirmShutdown_SendFailureCountsAsAttempt(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.SendErrors = []error{logic.ErrSendFailed}

	running := true
	f.inputs = func(time.Duration) gpio.Inputs { return gpio.Inputs{Vibration: running} }
	f.tx.OnSend = func([]byte) {
		if len(f.tx.Sent) == 2 {
			running = false
		}
	}

	s := f.supervisor(SupervisorPolicy{Escalate: true})
	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)

	assert.Equal(t, logic.OutcomeConfirmed, outcome)
	assert.Equal(t, 2, s.Attempts())
	assert.Equal(t, []logic.EventType{
		logic.EventSendFailed, logic.EventShutdownRetry,
		logic.EventShutdownSent, logic.EventConfirmed,
	}, f.events.EventTypes())
}

func TestConfirmShutdown_Cancelled(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.supervisor(SupervisorPolicy{Escalate: true}).ConfirmShutdown(ctx, "ep-1")

	assert.Equal(t, logic.OutcomeAborted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.restarter.Calls)
}

func TestConfirmShutdown_ReadErrorsSkipTick(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	s := f.supervisor(SupervisorPolicy{Escalate: true})
	s.reader = gpio.FuncReader(func() (gpio.Inputs, error) {
		return gpio.Inputs{}, errors.New("line busy")
	})

	outcome, err := s.ConfirmShutdown(context.Background(), "ep-1")
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeConfirmed, outcome)
}

func TestSupervisorPolicy_Defaults(t *testing.T) {
	p := SupervisorPolicy{}.withDefaults()
	assert.Equal(t, DefaultConfirmTicks, p.ConfirmTicks)
	assert.Equal(t, DefaultConfirmTick, p.ConfirmTick)
	assert.Equal(t, DefaultConfirmGrace, p.ConfirmGrace)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)

	p = SupervisorPolicy{ConfirmTicks: 5, MaxAttempts: 2}.withDefaults()
	assert.Equal(t, 5, p.ConfirmTicks)
	assert.Equal(t, 2, p.MaxAttempts)
}
