package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/aircon-guard/internal/logic"
)

// guardedStore checks after every change that a key survives somewhere and
// can be made to fail SetCurrent.
type guardedStore struct {
	KeyStore
	t             *testing.T
	setCurrentErr error
	violations    int
}

func (g *guardedStore) check() {
	_, cur, err := g.KeyStore.Current()
	require.NoError(g.t, err)
	_, bak, err := g.KeyStore.Backup()
	require.NoError(g.t, err)
	if !cur && !bak {
		g.violations++
	}
}

func (g *guardedStore) SetCurrent(key []byte) error {
	if g.setCurrentErr != nil {
		return g.setCurrentErr
	}
	defer g.check()
	return g.KeyStore.SetCurrent(key)
}

func (g *guardedStore) DeleteCurrent() error {
	defer g.check()
	return g.KeyStore.DeleteCurrent()
}

func (g *guardedStore) SetBackup(key []byte) error {
	defer g.check()
	return g.KeyStore.SetBackup(key)
}

func (g *guardedStore) DeleteBackup() error {
	defer g.check()
	return g.KeyStore.DeleteBackup()
}

func (g *guardedStore) Restore() (bool, error) {
	defer g.check()
	return g.KeyStore.Restore()
}

func TestCaptureKey_ReplacesKey(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = newKey
	store := &guardedStore{KeyStore: f.keys, t: t}

	res, err := f.captureManager(store).CaptureKey(context.Background(), 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, logic.CaptureCaptured, res)
	cur, ok, err := f.keys.Current()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newKey, cur)
	_, ok, err = f.keys.Backup()
	require.NoError(t, err)
	assert.False(t, ok, "backup is removed after a good capture")
	assert.Equal(t, 0, store.violations)

	assert.Equal(t, 1, f.tx.Begun)
	assert.False(t, f.tx.Active())
	assert.Equal(t, []string{"Scanning...", "Key captured"}, f.screen.Lines)
	assert.Equal(t, []logic.EventType{logic.EventCaptured}, f.events.EventTypes())
}

func TestCaptureKey_LEDAndBlink(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.tx.CaptureData = newKey

	_, err := f.captureManager(f.keys).CaptureKey(context.Background(), 5*time.Second)
	require.NoError(t, err)

	on := 0
	for _, v := range f.led.History {
		if v {
			on++
		}
	}
	assert.Equal(t, 1+blinkCount, on, "lit while scanning, then blinked")
	assert.False(t, f.led.On)
	assert.Equal(t, 5*time.Second+blinkCount*2*blinkPeriod, f.clock.Elapsed())
}

func TestCaptureKey_TooShortRestoresPrevious(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = []byte("pulse 560\n")
	store := &guardedStore{KeyStore: f.keys, t: t}

	res, err := f.captureManager(store).CaptureKey(context.Background(), 0)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorIs(t, err, logic.ErrCaptureTooShort)
	cur, ok, _ := f.keys.Current()
	require.True(t, ok)
	assert.Equal(t, oldKey, cur)
	_, ok, _ = f.keys.Backup()
	assert.False(t, ok)
	assert.Equal(t, 0, store.violations)
	assert.Equal(t, DefaultCaptureDuration, f.clock.Elapsed(), "zero duration uses the default")
	assert.Equal(t, []string{"Scanning...", "Scan failed"}, f.screen.Lines)
	assert.Equal(t, []logic.EventType{logic.EventCaptureFailed}, f.events.EventTypes())
	assert.False(t, f.led.On)
}

func TestCaptureKey_FirstKey(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.tx.CaptureData = newKey

	res, err := f.captureManager(f.keys).CaptureKey(context.Background(), time.Second)
	require.NoError(t, err)

	assert.Equal(t, logic.CaptureCaptured, res)
	cur, ok, _ := f.keys.Current()
	require.True(t, ok)
	assert.Equal(t, newKey, cur)
}

func TestCaptureKey_FirstKeyFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))

	res, err := f.captureManager(f.keys).CaptureKey(context.Background(), time.Second)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorIs(t, err, logic.ErrCaptureTooShort)
	assert.False(t, f.keys.HasCurrent())
	_, ok, _ := f.keys.Backup()
	assert.False(t, ok)
}

func TestCaptureKey_BeginError(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.BeginError = errors.New("no such device")

	res, err := f.captureManager(f.keys).CaptureKey(context.Background(), time.Second)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorContains(t, err, "no such device")
	cur, _, _ := f.keys.Current()
	assert.Equal(t, oldKey, cur)
	assert.Equal(t, 0, f.tx.Ended)
	assert.False(t, f.led.On)
}

func TestCaptureKey_EndError(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = newKey
	f.tx.EndError = errors.New("ir-ctl exited")

	res, err := f.captureManager(f.keys).CaptureKey(context.Background(), time.Second)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorContains(t, err, "ir-ctl exited")
	cur, _, _ := f.keys.Current()
	assert.Equal(t, oldKey, cur)
}

func TestCaptureKey_Interrupted(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = newKey
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.captureManager(f.keys).CaptureKey(ctx, time.Second)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.tx.Active(), "receiver stopped")
	cur, _, _ := f.keys.Current()
	assert.Equal(t, oldKey, cur)
}

func TestCaptureKey_StoreFailureRestoresPrevious(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = newKey
	store := &guardedStore{KeyStore: f.keys, t: t, setCurrentErr: errors.New("disk full")}

	res, err := f.captureManager(store).CaptureKey(context.Background(), time.Second)

	assert.Equal(t, logic.CaptureFailed, res)
	assert.ErrorContains(t, err, "disk full")
	cur, ok, _ := f.keys.Current()
	require.True(t, ok)
	assert.Equal(t, oldKey, cur)
	_, ok, _ = f.keys.Backup()
	assert.False(t, ok)
	assert.Equal(t, 0, store.violations)
}

func TestCaptureThenTestSendUsesNewKey(t *testing.T) {
	f := newFixture(t, at(12, 0, 0))
	f.storeKey(oldKey)
	f.tx.CaptureData = newKey
	c := f.controller(true)

	assert.Equal(t, logic.CaptureCaptured, c.Capture(context.Background()))
	require.NoError(t, c.TestSend(context.Background()))

	require.Len(t, f.tx.Sent, 1)
	assert.Equal(t, newKey, f.tx.Sent[0])
	assert.Equal(t, 1, c.Counts().CapturesOK)
	assert.Equal(t, "Code sent", c.Display())
}
