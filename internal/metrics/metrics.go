// Package metrics exposes controller counters in Prometheus text format.
package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sweeney/aircon-guard/internal/logic"
)

var (
	episodesStarted = metrics.NewCounter(`aircon_episodes_started_total`)
	irSends         = metrics.NewCounter(`aircon_ir_sends_total`)
	irSendFailures  = metrics.NewCounter(`aircon_ir_send_failures_total`)
	retries         = metrics.NewCounter(`aircon_shutdown_retries_total`)
	escalations     = metrics.NewCounter(`aircon_escalations_total`)
	sensorErrors    = metrics.NewCounter(`aircon_sensor_read_errors_total`)
	confirmSeconds  = metrics.NewSummary(`aircon_shutdown_confirm_duration_seconds`)
)

// EpisodeStarted counts a new monitoring episode.
func EpisodeStarted() { episodesStarted.Inc() }

// EpisodeEnded counts how an episode ended.
func EpisodeEnded(d logic.Decision) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`aircon_episodes_ended_total{decision=%q}`, string(d))).Inc()
}

// IRSent counts a send and whether it failed.
func IRSent(err error) {
	irSends.Inc()
	if err != nil {
		irSendFailures.Inc()
	}
}

// Retry counts a failed confirmation that leads to a resend.
func Retry() { retries.Inc() }

// Escalated counts a host restart request.
func Escalated() { escalations.Inc() }

// SensorError counts a failed GPIO read.
func SensorError() { sensorErrors.Inc() }

// Confirmation records how a confirmation run ended and how long it took.
func Confirmation(o logic.Outcome, seconds float64) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`aircon_shutdown_outcomes_total{outcome=%q}`, string(o))).Inc()
	confirmSeconds.Update(seconds)
}

// Capture counts a capture attempt by result.
func Capture(r logic.CaptureResult) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`aircon_captures_total{result=%q}`, string(r))).Inc()
}

// Write writes every metric, including Go runtime and process metrics.
func Write(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
