package logic

import (
	"fmt"
	"time"
)

// Default monitor policy.
const (
	DefaultMotionRunLimit = time.Minute
	DefaultSecondaryGrace = 10 * time.Second
)

// MonitorPolicy holds the debounce durations of the occupancy monitor.
type MonitorPolicy struct {
	// MotionRunLimit is how long the AC may run with no motion observed.
	MotionRunLimit time.Duration
	// SecondaryGrace is how recently the secondary signal must have been seen
	// for a shutdown to be trusted not to switch the AC on instead.
	SecondaryGrace time.Duration
}

// Step is the result of feeding one sample to the monitor.
type Step struct {
	State    State
	Decision Decision
	Episode  string
	Status   Status
}

// Monitor decides when the AC should be commanded off.
//
// IR "off" codes are usually toggles, so a shutdown is only requested while
// the secondary signal has been seen within SecondaryGrace. A stale secondary
// signal means the AC is presumed off already and nothing is sent.
type Monitor struct {
	window Window
	policy MonitorPolicy

	state             State
	episode           string
	motionDeadline    time.Time
	secondaryDeadline time.Time
	lastSecondary     bool
	lastText          string
	newID             func() string
	seq               int
}

// NewMonitor creates an idle monitor for the given window and policy.
// Zero policy durations fall back to the defaults. newID names each episode;
// when nil, episodes are numbered "episode-1", "episode-2" and so on.
func NewMonitor(window Window, policy MonitorPolicy, newID func() string) *Monitor {
	if policy.MotionRunLimit <= 0 {
		policy.MotionRunLimit = DefaultMotionRunLimit
	}
	if policy.SecondaryGrace <= 0 {
		policy.SecondaryGrace = DefaultSecondaryGrace
	}
	m := &Monitor{
		window: window,
		policy: policy,
		state:  StateIdle,
		newID:  newID,
	}
	if m.newID == nil {
		m.newID = func() string {
			m.seq++
			return fmt.Sprintf("episode-%d", m.seq)
		}
	}
	return m
}

// Process feeds one sample to the monitor and returns the resulting step.
// Terminal states (SHUTDOWN_REQUESTED, EXITED_WINDOW, or a presumed-off end)
// are reported once; the following sample starts from IDLE again.
func (m *Monitor) Process(s Sample) Step {
	rising := s.Secondary && !m.lastSecondary
	m.lastSecondary = s.Secondary

	if m.state != StateMonitoring {
		m.state = StateIdle
		m.episode = ""
		if !rising || !m.window.Contains(s.Time) {
			return m.step(DecisionNone, m.idleText(s.Time))
		}
		m.state = StateMonitoring
		m.episode = m.newID()
		m.motionDeadline = s.Time.Add(m.policy.MotionRunLimit)
		m.secondaryDeadline = s.Time.Add(m.policy.SecondaryGrace)
		return m.step(DecisionNone, "AC on - watching")
	}

	// Rule 1: restricted hours ended.
	if !m.window.Contains(s.Time) {
		m.state = StateExitedWindow
		return m.step(DecisionWindowExited, "Outside hours")
	}

	// Rule 2: motion has priority over everything else this tick.
	if s.Motion {
		m.motionDeadline = s.Time.Add(m.policy.MotionRunLimit)
		return m.step(DecisionNone, "Motion - AC allowed")
	}

	// Rule 3: the AC still looks like it is running.
	if s.Secondary {
		m.secondaryDeadline = s.Time.Add(m.policy.SecondaryGrace)
	}

	// Rule 4: nobody around for the full run limit.
	if s.Time.After(m.motionDeadline) {
		if s.Time.Before(m.secondaryDeadline) {
			m.state = StateShutdownRequested
			return m.step(DecisionShutdown, "No motion - AC off")
		}
		m.state = StateIdle
		return m.step(DecisionPresumedOff, "AC already off")
	}

	return m.step(DecisionNone, "AC on - watching")
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Episode returns the ID of the open episode, or "" when idle.
func (m *Monitor) Episode() string {
	return m.episode
}

// Deadlines returns the motion and secondary deadlines of the open episode.
func (m *Monitor) Deadlines() (motion, secondary time.Time) {
	return m.motionDeadline, m.secondaryDeadline
}

func (m *Monitor) idleText(now time.Time) string {
	if m.window.Contains(now) {
		return "Idle"
	}
	return "Unrestricted hours"
}

func (m *Monitor) step(d Decision, text string) Step {
	st := Step{
		State:    m.state,
		Decision: d,
		Episode:  m.episode,
		Status:   Status{Text: text, Dirty: text != m.lastText},
	}
	m.lastText = text
	return st
}
