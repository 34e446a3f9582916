//go:build !linux

package host

import "errors"

// Reboot is not available on non-Linux platforms.
type Reboot struct{}

// Restart always fails on non-Linux platforms.
func (Reboot) Restart() error {
	return errors.New("host: reboot not supported on this platform (requires Linux)")
}
