package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/display"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/ir"
	"github.com/sweeney/aircon-guard/internal/logic"
	"github.com/sweeney/aircon-guard/internal/metrics"
)

// DefaultCaptureDuration is how long the receiver listens for the remote.
const DefaultCaptureDuration = 5 * time.Second

// Success blink pattern.
const (
	blinkCount  = 10
	blinkPeriod = 100 * time.Millisecond
)

// CaptureManager teaches a new off code without ever losing the previous one.
type CaptureManager struct {
	keys         KeyStore
	tx           ir.Transceiver
	led          gpio.Indicator
	clock        Clock
	screen       *display.Screen
	events       EventPublisher
	minKeyLength int
}

// CaptureKey records the remote for duration and stores the result.
//
// The existing key is copied to the backup before it is deleted. A capture
// that is too short, fails or is interrupted restores the backup, so the store
// ends up holding exactly what it held before. A good capture becomes the
// current key and the backup is removed.
func (m *CaptureManager) CaptureKey(ctx context.Context, duration time.Duration) (logic.CaptureResult, error) {
	if duration <= 0 {
		duration = DefaultCaptureDuration
	}

	old, had, err := m.keys.Current()
	if err != nil {
		return m.failed(fmt.Errorf("read current key: %w", err))
	}
	if had {
		log.Info().Int("bytes", len(old)).Msg("replacing old remote configuration")
		if err := m.keys.SetBackup(old); err != nil {
			return m.failed(fmt.Errorf("backup current key: %w", err))
		}
	}
	if err := m.keys.DeleteCurrent(); err != nil {
		m.rollback()
		return m.failed(fmt.Errorf("delete current key: %w", err))
	}

	m.screen.Print("Scanning...")
	data, err := m.record(ctx, duration)
	if err == nil && !logic.ValidKey(data, m.minKeyLength) {
		err = fmt.Errorf("%w: %d bytes", logic.ErrCaptureTooShort, len(data))
	}
	if err != nil {
		m.rollback()
		return m.failed(err)
	}

	if err := m.keys.SetCurrent(data); err != nil {
		m.rollback()
		return m.failed(fmt.Errorf("store captured key: %w", err))
	}
	if err := m.keys.DeleteBackup(); err != nil {
		// Recover drops a backup that sits next to a current key.
		log.Warn().Err(err).Msg("could not delete key backup")
	}

	log.Info().Int("bytes", len(data)).Msg("remote captured")
	m.screen.Print("Key captured")
	m.publish(logic.Event{Type: logic.EventCaptured, Detail: fmt.Sprintf("%d bytes", len(data))})
	metrics.Capture(logic.CaptureCaptured)
	m.blink(ctx)
	return logic.CaptureCaptured, nil
}

// record runs the receiver for duration. The capture is ended on every path.
func (m *CaptureManager) record(ctx context.Context, duration time.Duration) ([]byte, error) {
	m.setLED(true)
	defer m.setLED(false)

	c, err := m.tx.BeginCapture(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin capture: %w", err)
	}
	defer c.End()

	waitErr := m.clock.Sleep(ctx, duration)
	data, err := c.End()
	if waitErr != nil {
		return nil, fmt.Errorf("capture interrupted: %w", waitErr)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// rollback deletes whatever is in current and puts the backup back.
func (m *CaptureManager) rollback() {
	if err := m.keys.DeleteCurrent(); err != nil {
		log.Error().Err(err).Msg("rollback: delete current key")
	}
	restored, err := m.keys.Restore()
	if err != nil {
		log.Error().Err(err).Msg("rollback: restore key backup")
		return
	}
	if restored {
		log.Info().Msg("previous key restored")
	}
}

func (m *CaptureManager) failed(err error) (logic.CaptureResult, error) {
	log.Warn().Err(err).Msg("scan failed")
	m.screen.Print("Scan failed")
	m.publish(logic.Event{Type: logic.EventCaptureFailed, Detail: err.Error()})
	metrics.Capture(logic.CaptureFailed)
	return logic.CaptureFailed, err
}

func (m *CaptureManager) blink(ctx context.Context) {
	for i := 0; i < blinkCount; i++ {
		m.setLED(true)
		if m.clock.Sleep(ctx, blinkPeriod) != nil {
			break
		}
		m.setLED(false)
		if m.clock.Sleep(ctx, blinkPeriod) != nil {
			break
		}
	}
	m.setLED(false)
}

func (m *CaptureManager) setLED(on bool) {
	if m.led == nil {
		return
	}
	if err := m.led.Set(on); err != nil {
		log.Debug().Err(err).Msg("led error")
	}
}

func (m *CaptureManager) publish(e logic.Event) {
	e.Timestamp = m.clock.Now()
	if err := m.events.Publish(e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("publish error")
	}
}
