// Package host performs the last-resort recovery action: restarting the machine.
package host

import "github.com/rs/zerolog/log"

// Restarter restarts the host. On success it does not return.
type Restarter interface {
	Restart() error
}

// DryRun logs instead of restarting. Used with --dry-run and on development machines.
type DryRun struct{}

// Restart logs the request.
func (DryRun) Restart() error {
	log.Warn().Msg("dry run: host restart requested, not restarting")
	return nil
}

// FakeRestarter counts restart requests for tests.
type FakeRestarter struct {
	Calls int
	Err   error
	// OnRestart, if set, is called on every request.
	OnRestart func()
}

// Restart records the request.
func (f *FakeRestarter) Restart() error {
	f.Calls++
	if f.OnRestart != nil {
		f.OnRestart()
	}
	return f.Err
}
