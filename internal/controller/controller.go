// Package controller runs the occupancy-driven shutdown of the air-conditioner.
//
// Everything here runs on the caller's goroutine. An episode, a confirmation
// run or a capture blocks the caller until it is finished.
package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/display"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/host"
	"github.com/sweeney/aircon-guard/internal/ir"
	"github.com/sweeney/aircon-guard/internal/logic"
	"github.com/sweeney/aircon-guard/internal/metrics"
)

// DefaultEpisodePoll is the sampling cadence while an episode is open.
const DefaultEpisodePoll = 500 * time.Millisecond

// KeyStore holds the current key and its transient backup.
type KeyStore interface {
	Current() ([]byte, bool, error)
	SetCurrent(key []byte) error
	DeleteCurrent() error
	Backup() ([]byte, bool, error)
	SetBackup(key []byte) error
	DeleteBackup() error
	Restore() (bool, error)
}

// EventPublisher receives controller events. Failures are logged, never fatal.
type EventPublisher interface {
	Publish(event logic.Event) error
}

// StatusSink receives the controller state after every step.
type StatusSink interface {
	Update(state logic.State, episode string, counts logic.Counts, keyPresent bool)
}

// Config is the controller policy.
type Config struct {
	Window          logic.Window
	Monitor         logic.MonitorPolicy
	Supervisor      SupervisorPolicy
	EpisodePoll     time.Duration
	CaptureDuration time.Duration
	MinKeyLength    int
}

// Deps are the ports the controller drives.
type Deps struct {
	Reader    gpio.Reader
	Secondary gpio.Secondary
	LED       gpio.Indicator // optional
	IR        ir.Transceiver
	Keys      KeyStore
	Restarter host.Restarter
	Events    EventPublisher
	Display   display.Renderer
	Status    StatusSink    // optional
	Clock     Clock         // defaults to RealClock
	NewID     func() string // episode IDs, defaults to uuid.NewString
}

// Controller dispatches each outer-loop tick to the capture manager, a manual
// test send or the occupancy monitor.
type Controller struct {
	cfg  Config
	deps Deps

	monitor    *logic.Monitor
	supervisor *Supervisor
	capture    *CaptureManager
	screen     *display.Screen

	counts       logic.Counts
	lastScan     bool
	lastTest     bool
	lastDecision logic.Decision
	lastOutcome  logic.Outcome

	// escalated is set once a host restart was requested on this tick.
	escalated bool
}

// New creates a controller.
func New(cfg Config, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Display == nil {
		deps.Display = display.Log{}
	}
	if cfg.EpisodePoll <= 0 {
		cfg.EpisodePoll = DefaultEpisodePoll
	}
	if cfg.MinKeyLength <= 0 {
		cfg.MinKeyLength = logic.DefaultMinKeyLength
	}
	cfg.Supervisor = cfg.Supervisor.withDefaults()
	cfg.Supervisor.MinKeyLength = cfg.MinKeyLength

	screen := display.NewScreen(deps.Display)
	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		monitor: logic.NewMonitor(cfg.Window, cfg.Monitor, deps.NewID),
		screen:  screen,
	}
	c.supervisor = &Supervisor{
		policy:    cfg.Supervisor,
		clock:     deps.Clock,
		reader:    deps.Reader,
		secondary: deps.Secondary,
		keys:      deps.Keys,
		tx:        deps.IR,
		restarter: deps.Restarter,
		events:    deps.Events,
		screen:    screen,
	}
	c.capture = &CaptureManager{
		keys:         deps.Keys,
		tx:           deps.IR,
		led:          deps.LED,
		clock:        deps.Clock,
		screen:       screen,
		events:       deps.Events,
		minKeyLength: cfg.MinKeyLength,
	}
	return c
}

// Tick handles one outer-loop reading. Buttons act on their rising edge.
// When the reading opens an episode, Tick blocks until the episode is over.
func (c *Controller) Tick(ctx context.Context, in gpio.Inputs) {
	scan := in.Scan && !c.lastScan
	test := in.Test && !c.lastTest
	c.lastScan, c.lastTest = in.Scan, in.Test
	c.escalated = false
	defer c.report()

	if scan {
		c.Capture(ctx)
		return
	}
	if test {
		c.TestSend(ctx)
	}

	step := c.monitor.Process(c.sample(in))
	c.screen.Show(step.Status)
	if step.State == logic.StateMonitoring {
		c.runEpisode(ctx, step.Episode)
	}
}

// Capture runs the key capture workflow.
func (c *Controller) Capture(ctx context.Context) logic.CaptureResult {
	res, _ := c.capture.CaptureKey(ctx, c.cfg.CaptureDuration)
	if res == logic.CaptureCaptured {
		c.counts.CapturesOK++
	} else {
		c.counts.CapturesFailed++
	}
	return res
}

// TestSend sends the current key once, without confirmation.
func (c *Controller) TestSend(ctx context.Context) error {
	key, err := currentKey(c.deps.Keys, c.cfg.MinKeyLength)
	if err != nil {
		if isNoKey(err) {
			c.screen.Print("No key - scan first")
		}
		log.Warn().Err(err).Msg("test send skipped")
		c.publish(logic.Event{Type: logic.EventNoKey, Detail: err.Error()})
		return err
	}

	log.Info().Msg("sending code")
	err = c.deps.IR.Send(ctx, key)
	metrics.IRSent(err)
	if err != nil {
		log.Warn().Err(err).Msg("test send failed")
		c.screen.Print("Send failed")
		c.publish(logic.Event{Type: logic.EventSendFailed, Detail: err.Error()})
		return err
	}
	c.screen.Print("Code sent")
	c.publish(logic.Event{Type: logic.EventTestSend})
	return nil
}

// runEpisode samples at EpisodePoll until the monitor reaches a decision.
func (c *Controller) runEpisode(ctx context.Context, episode string) {
	c.counts.Episodes++
	metrics.EpisodeStarted()
	log.Info().Str("episode", episode).Stringer("window", c.cfg.Window).Msg("ac running, watching occupancy")
	c.publish(logic.Event{Type: logic.EventEpisodeStart, Episode: episode})

	for {
		c.report()
		if err := c.deps.Clock.Sleep(ctx, c.cfg.EpisodePoll); err != nil {
			log.Info().Err(err).Str("episode", episode).Msg("episode interrupted")
			return
		}
		in, err := c.deps.Reader.Read()
		if err != nil {
			log.Warn().Err(err).Msg("gpio read error")
			metrics.SensorError()
			continue
		}
		c.setLED(in.Motion)

		step := c.monitor.Process(c.sample(in))
		c.screen.Show(step.Status)
		if step.Decision == logic.DecisionNone {
			continue
		}

		c.setLED(false)
		c.lastDecision = step.Decision
		c.endEpisode(ctx, episode, step.Decision)
		return
	}
}

func (c *Controller) endEpisode(ctx context.Context, episode string, d logic.Decision) {
	metrics.EpisodeEnded(d)
	detail := string(d)

	switch d {
	case logic.DecisionPresumedOff:
		c.counts.PresumedOff++
		log.Info().Str("episode", episode).Msg("no motion, ac presumed already off")
	case logic.DecisionWindowExited:
		c.counts.WindowExits++
		log.Info().Str("episode", episode).Err(logic.ErrWindowExited).Msg("episode aborted")
	case logic.DecisionShutdown:
		c.counts.Shutdowns++
		log.Info().Str("episode", episode).Msg("no motion, shutting ac down")
		c.report()
		outcome, err := c.supervisor.ConfirmShutdown(ctx, episode)
		if outcome == logic.OutcomeEscalated {
			// Nothing may follow a restart request.
			c.escalated = true
			if err != nil {
				log.Error().Err(err).Str("episode", episode).Msg("host restart failed")
			}
			return
		}
		c.lastOutcome = outcome
		if n := c.supervisor.Attempts(); n > 1 {
			c.counts.Retries += n - 1
		}
		if outcome == logic.OutcomeConfirmed {
			c.counts.Confirmed++
		}
		if err != nil {
			log.Warn().Err(err).Str("episode", episode).Str("outcome", string(outcome)).Msg("shutdown finished with error")
		}
		detail += "/" + string(outcome)
	}
	c.publish(logic.Event{Type: logic.EventEpisodeEnd, Episode: episode, Detail: detail})
}

func (c *Controller) sample(in gpio.Inputs) logic.Sample {
	return logic.Sample{
		Motion:    in.Motion,
		Secondary: c.deps.Secondary.Active(in),
		Time:      c.deps.Clock.Now(),
	}
}

func (c *Controller) report() {
	if c.deps.Status == nil || c.escalated {
		return
	}
	_, hasKey, _ := c.deps.Keys.Current()
	c.deps.Status.Update(c.monitor.State(), c.monitor.Episode(), c.counts, hasKey)
}

func (c *Controller) setLED(on bool) {
	if c.deps.LED == nil {
		return
	}
	if err := c.deps.LED.Set(on); err != nil {
		log.Debug().Err(err).Msg("led error")
	}
}

func (c *Controller) publish(e logic.Event) {
	e.Timestamp = c.deps.Clock.Now()
	if err := c.deps.Events.Publish(e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("publish error")
	}
}

// Counts returns the outcome counters since startup.
func (c *Controller) Counts() logic.Counts {
	return c.counts
}

// State returns the monitor state.
func (c *Controller) State() logic.State {
	return c.monitor.State()
}

// LastDecision returns how the most recent episode ended.
func (c *Controller) LastDecision() logic.Decision {
	return c.lastDecision
}

// LastOutcome returns the outcome of the most recent confirmation run.
func (c *Controller) LastOutcome() logic.Outcome {
	return c.lastOutcome
}

// Display returns the text currently on the display.
func (c *Controller) Display() string {
	return c.screen.Text()
}
