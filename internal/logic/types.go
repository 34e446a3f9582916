// Package logic contains the pure decision logic of the air-conditioner guard.
// This package does no I/O (no GPIO, IR, MQTT, OS, randomness or time.Sleep).
// Time is always injectable via time.Time fields.
package logic

import "time"

// Sample is a single reading of the occupancy signals.
type Sample struct {
	Motion    bool // motion sensor active
	Secondary bool // door open or vibration: the AC appears to be running
	Time      time.Time
}

// State is the state of the occupancy monitor.
type State string

const (
	StateIdle              State = "IDLE"
	StateMonitoring        State = "MONITORING"
	StateShutdownRequested State = "SHUTDOWN_REQUESTED"
	StateExitedWindow      State = "EXITED_WINDOW"
)

// Decision is what the monitor concluded on a step.
type Decision string

const (
	DecisionNone         Decision = ""
	DecisionShutdown     Decision = "SHUTDOWN"
	DecisionPresumedOff  Decision = "PRESUMED_OFF"
	DecisionWindowExited Decision = "WINDOW_EXITED"
)

// Outcome is the result of a shutdown confirmation run.
type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeGaveUp    Outcome = "GAVE_UP"
	OutcomeEscalated Outcome = "ESCALATED"
	OutcomeAborted   Outcome = "ABORTED"
)

// CaptureResult is the result of a key capture attempt.
type CaptureResult string

const (
	CaptureCaptured CaptureResult = "CAPTURED"
	CaptureFailed   CaptureResult = "FAILED"
)

// EventType identifies an event to be published.
type EventType string

const (
	EventEpisodeStart  EventType = "EPISODE_START"
	EventEpisodeEnd    EventType = "EPISODE_END"
	EventShutdownSent  EventType = "SHUTDOWN_SENT"
	EventShutdownRetry EventType = "SHUTDOWN_RETRY"
	EventConfirmed     EventType = "SHUTDOWN_CONFIRMED"
	EventGaveUp        EventType = "SHUTDOWN_GAVE_UP"
	EventEscalate      EventType = "ESCALATE"
	EventSendFailed    EventType = "SEND_FAILED"
	EventNoKey         EventType = "NO_KEY"
	EventCaptured      EventType = "KEY_CAPTURED"
	EventCaptureFailed EventType = "KEY_CAPTURE_FAILED"
	EventTestSend      EventType = "TEST_SEND"
)

// Event is something that happened which should be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Episode   string // episode ID, empty outside an episode
	Attempt   int    // confirmation attempt, 0 when not applicable
	Detail    string
}

// Status is the text the display should show after a step.
// Dirty is set only when Text differs from the previous status.
type Status struct {
	Text  string
	Dirty bool
}

// Counts tracks the number of notable outcomes since startup.
type Counts struct {
	Episodes       int
	Shutdowns      int
	Confirmed      int
	Retries        int
	PresumedOff    int
	WindowExits    int
	CapturesOK     int
	CapturesFailed int
}
