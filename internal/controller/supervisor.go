package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/display"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/host"
	"github.com/sweeney/aircon-guard/internal/ir"
	"github.com/sweeney/aircon-guard/internal/logic"
	"github.com/sweeney/aircon-guard/internal/metrics"
)

// Default supervisor policy.
const (
	DefaultConfirmTicks = 20
	DefaultConfirmTick  = time.Second
	DefaultConfirmGrace = 10 * time.Second
	DefaultMaxAttempts  = 5
)

// SupervisorPolicy controls confirmation and escalation.
type SupervisorPolicy struct {
	ConfirmTicks int           // ticks per confirmation window
	ConfirmTick  time.Duration // length of one tick
	ConfirmGrace time.Duration // secondary activity keeps the AC "on" this long
	MaxAttempts  int           // failed windows before giving up
	Escalate     bool          // restart the host when attempts are exhausted
	MinKeyLength int
}

func (p SupervisorPolicy) withDefaults() SupervisorPolicy {
	if p.ConfirmTicks <= 0 {
		p.ConfirmTicks = DefaultConfirmTicks
	}
	if p.ConfirmTick <= 0 {
		p.ConfirmTick = DefaultConfirmTick
	}
	if p.ConfirmGrace <= 0 {
		p.ConfirmGrace = DefaultConfirmGrace
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Supervisor sends the off code and checks, through the secondary signal,
// that the AC actually stopped.
type Supervisor struct {
	policy    SupervisorPolicy
	clock     Clock
	reader    gpio.Reader
	secondary gpio.Secondary
	keys      KeyStore
	tx        ir.Transceiver
	restarter host.Restarter
	events    EventPublisher
	screen    *display.Screen

	attempts int
}

// ConfirmShutdown sends the current key and retries until the AC is confirmed
// off or MaxAttempts windows have failed. Exhausting the attempts restarts the
// host when the policy allows it, and otherwise gives up.
func (s *Supervisor) ConfirmShutdown(ctx context.Context, episode string) (logic.Outcome, error) {
	s.attempts = 0
	start := s.clock.Now()

	key, err := currentKey(s.keys, s.policy.MinKeyLength)
	if err != nil {
		log.Warn().Err(err).Str("episode", episode).Msg("cannot shut down ac")
		s.screen.Print("No key - scan first")
		s.publish(logic.Event{Type: logic.EventNoKey, Episode: episode, Detail: err.Error()})
		return logic.OutcomeAborted, err
	}

	for {
		s.attempts++
		s.send(ctx, episode, key)

		confirmed, err := s.watch(ctx)
		if err != nil {
			return logic.OutcomeAborted, err
		}
		if confirmed {
			log.Info().Str("episode", episode).Int("attempt", s.attempts).Msg("shutdown confirmed")
			s.screen.Print("AC off")
			s.publish(logic.Event{Type: logic.EventConfirmed, Episode: episode, Attempt: s.attempts})
			metrics.Confirmation(logic.OutcomeConfirmed, s.clock.Now().Sub(start).Seconds())
			return logic.OutcomeConfirmed, nil
		}
		if s.attempts >= s.policy.MaxAttempts {
			break
		}
		log.Warn().Str("episode", episode).Int("attempt", s.attempts).Msg("ac still running, resending")
		s.publish(logic.Event{Type: logic.EventShutdownRetry, Episode: episode, Attempt: s.attempts})
		metrics.Retry()
	}

	metrics.Confirmation(outcomeFor(s.policy.Escalate), s.clock.Now().Sub(start).Seconds())
	if !s.policy.Escalate {
		log.Error().Str("episode", episode).Int("attempts", s.attempts).Msg("shutdown not confirmed, giving up")
		s.screen.Print("AC off failed")
		s.publish(logic.Event{Type: logic.EventGaveUp, Episode: episode, Attempt: s.attempts})
		return logic.OutcomeGaveUp, logic.ErrConfirmationTimeout
	}

	log.Error().Str("episode", episode).Int("attempts", s.attempts).Msg("shutdown not confirmed, restarting host")
	s.screen.Print("Restarting...")
	s.publish(logic.Event{Type: logic.EventEscalate, Episode: episode, Attempt: s.attempts})
	metrics.Escalated()
	return logic.OutcomeEscalated, s.restarter.Restart()
}

// Attempts returns how many sends the last ConfirmShutdown made.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

func (s *Supervisor) send(ctx context.Context, episode string, key []byte) {
	err := s.tx.Send(ctx, key)
	metrics.IRSent(err)
	if err != nil {
		// The window still runs: a failed send leaves the AC on, which the
		// window then reports as a failed attempt.
		log.Warn().Err(err).Str("episode", episode).Int("attempt", s.attempts).Msg("ir send failed")
		s.publish(logic.Event{Type: logic.EventSendFailed, Episode: episode, Attempt: s.attempts, Detail: err.Error()})
		return
	}
	log.Info().Str("episode", episode).Int("attempt", s.attempts).Msg("off code sent")
	s.screen.Print(fmt.Sprintf("AC off sent (%d)", s.attempts))
	s.publish(logic.Event{Type: logic.EventShutdownSent, Episode: episode, Attempt: s.attempts})
}

// watch runs one confirmation window and reports whether the AC stayed quiet.
func (s *Supervisor) watch(ctx context.Context) (bool, error) {
	deadline := s.clock.Now()
	for i := 0; i < s.policy.ConfirmTicks; i++ {
		if err := s.clock.Sleep(ctx, s.policy.ConfirmTick); err != nil {
			return false, err
		}
		in, err := s.reader.Read()
		if err != nil {
			log.Warn().Err(err).Msg("gpio read error")
			metrics.SensorError()
			continue
		}
		if s.secondary.Active(in) {
			deadline = s.clock.Now().Add(s.policy.ConfirmGrace)
		}
	}
	return !s.clock.Now().Before(deadline), nil
}

func (s *Supervisor) publish(e logic.Event) {
	e.Timestamp = s.clock.Now()
	if err := s.events.Publish(e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("publish error")
	}
}

func outcomeFor(escalate bool) logic.Outcome {
	if escalate {
		return logic.OutcomeEscalated
	}
	return logic.OutcomeGaveUp
}

// currentKey returns the stored key if it is usable for sending.
func currentKey(keys KeyStore, minLength int) ([]byte, error) {
	key, ok, err := keys.Current()
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if !ok || !logic.ValidKey(key, minLength) {
		return nil, logic.ErrNoKeyCaptured
	}
	return key, nil
}

// isNoKey reports whether err means there is nothing to send.
func isNoKey(err error) bool {
	return errors.Is(err, logic.ErrNoKeyCaptured)
}
