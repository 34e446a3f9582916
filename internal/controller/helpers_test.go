package controller

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/aircon-guard/internal/display"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/host"
	"github.com/sweeney/aircon-guard/internal/ir"
	"github.com/sweeney/aircon-guard/internal/keystore"
	"github.com/sweeney/aircon-guard/internal/logic"
	"github.com/sweeney/aircon-guard/internal/mqtt"
)

var (
	oldKey = bytes.Repeat([]byte("pulse 560\nspace 1690\n"), 15)
	newKey = bytes.Repeat([]byte("pulse 9000\nspace 4500\n"), 15)

	dayWindow = logic.Window{Start: logic.NewTimeOfDay(8, 0), End: logic.NewTimeOfDay(22, 0)}
)

// at returns a time on a fixed day in the local zone.
func at(hour, min, sec int) time.Time {
	return time.Date(2024, 7, 15, hour, min, sec, 0, time.Local)
}

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	start time.Time
	now   time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{start: start, now: start}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// Elapsed returns the virtual time since the clock was created.
func (c *fakeClock) Elapsed() time.Duration { return c.now.Sub(c.start) }

type statusUpdate struct {
	State      logic.State
	Episode    string
	Counts     logic.Counts
	KeyPresent bool
}

type statusRecorder struct {
	Updates []statusUpdate
}

func (r *statusRecorder) Update(state logic.State, episode string, counts logic.Counts, keyPresent bool) {
	r.Updates = append(r.Updates, statusUpdate{state, episode, counts, keyPresent})
}

func (r *statusRecorder) Last() statusUpdate {
	if len(r.Updates) == 0 {
		return statusUpdate{}
	}
	return r.Updates[len(r.Updates)-1]
}

type fixture struct {
	t         *testing.T
	clock     *fakeClock
	keys      *keystore.FileStore
	tx        *ir.FakeTransceiver
	led       *gpio.FakeIndicator
	restarter *host.FakeRestarter
	events    *mqtt.FakePublisher
	screen    *display.Recorder
	status    *statusRecorder

	// inputs returns the GPIO reading at the given virtual time since start.
	inputs func(elapsed time.Duration) gpio.Inputs
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	keys, err := keystore.Open(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		t:         t,
		clock:     newFakeClock(start),
		keys:      keys,
		tx:        &ir.FakeTransceiver{},
		led:       &gpio.FakeIndicator{},
		restarter: &host.FakeRestarter{},
		events:    mqtt.NewFakePublisher(),
		screen:    &display.Recorder{},
		status:    &statusRecorder{},
		inputs:    func(time.Duration) gpio.Inputs { return gpio.Inputs{} },
	}
}

func (f *fixture) storeKey(key []byte) {
	f.t.Helper()
	require.NoError(f.t, f.keys.SetCurrent(key))
}

func (f *fixture) reader() gpio.Reader {
	return gpio.FuncReader(func() (gpio.Inputs, error) {
		return f.inputs(f.clock.Elapsed()), nil
	})
}

func (f *fixture) supervisor(policy SupervisorPolicy) *Supervisor {
	return &Supervisor{
		policy:    policy.withDefaults(),
		clock:     f.clock,
		reader:    f.reader(),
		secondary: gpio.VibrationSignal{},
		keys:      f.keys,
		tx:        f.tx,
		restarter: f.restarter,
		events:    f.events,
		screen:    display.NewScreen(f.screen),
	}
}

func (f *fixture) captureManager(keys KeyStore) *CaptureManager {
	return &CaptureManager{
		keys:         keys,
		tx:           f.tx,
		led:          f.led,
		clock:        f.clock,
		screen:       display.NewScreen(f.screen),
		events:       f.events,
		minKeyLength: logic.DefaultMinKeyLength,
	}
}

func (f *fixture) controller(escalate bool) *Controller {
	return New(Config{
		Window:     dayWindow,
		Supervisor: SupervisorPolicy{Escalate: escalate},
	}, Deps{
		Reader:    f.reader(),
		Secondary: gpio.VibrationSignal{},
		LED:       f.led,
		IR:        f.tx,
		Keys:      f.keys,
		Restarter: f.restarter,
		Events:    f.events,
		Display:   f.screen,
		Status:    f.status,
		Clock:     f.clock,
	})
}

// eventsOf returns the recorded events of type typ.
func (f *fixture) eventsOf(typ logic.EventType) []logic.Event {
	var out []logic.Event
	for _, e := range f.events.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// captureLog redirects the global logger to a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}
