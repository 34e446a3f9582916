package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Episode       string       `json:"episode,omitempty"`
	Display       string       `json:"display"`
	KeyPresent    bool         `json:"key_present"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of outcome counts.
type CountsJSON struct {
	Episodes       int `json:"episodes"`
	Shutdowns      int `json:"shutdowns"`
	Confirmed      int `json:"confirmed"`
	Retries        int `json:"retries"`
	PresumedOff    int `json:"presumed_off"`
	WindowExits    int `json:"window_exits"`
	CapturesOK     int `json:"captures_ok"`
	CapturesFailed int `json:"captures_failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs           int64  `json:"poll_ms"`
	EpisodePollMs    int64  `json:"episode_poll_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	MotionRunLimitMs int64  `json:"motion_run_limit_ms"`
	SecondaryGraceMs int64  `json:"secondary_grace_ms"`
	MaxAttempts      int    `json:"max_attempts"`
	Escalate         bool   `json:"escalate"`
	Window           string `json:"window"`
	Secondary        string `json:"secondary"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}
	c := snap.Config

	inner := StatusInner{
		State:         state,
		Episode:       snap.Episode,
		Display:       snap.Display,
		KeyPresent:    snap.KeyPresent,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: c.Broker},
		Counts: CountsJSON{
			Episodes:       snap.Counts.Episodes,
			Shutdowns:      snap.Counts.Shutdowns,
			Confirmed:      snap.Counts.Confirmed,
			Retries:        snap.Counts.Retries,
			PresumedOff:    snap.Counts.PresumedOff,
			WindowExits:    snap.Counts.WindowExits,
			CapturesOK:     snap.Counts.CapturesOK,
			CapturesFailed: snap.Counts.CapturesFailed,
		},
		Config: ConfigJSON{
			PollMs:           c.PollMs,
			EpisodePollMs:    c.EpisodePollMs,
			HeartbeatMs:      c.HeartbeatMs,
			MotionRunLimitMs: c.MotionRunLimitMs,
			SecondaryGraceMs: c.SecondaryGraceMs,
			MaxAttempts:      c.MaxAttempts,
			Escalate:         c.Escalate,
			Window:           c.Window,
			Secondary:        c.Secondary,
			Broker:           c.Broker,
			HTTPAddr:         c.HTTPAddr,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
