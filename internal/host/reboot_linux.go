//go:build linux

package host

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Reboot restarts the machine through the reboot(2) syscall.
// The process needs CAP_SYS_BOOT.
type Reboot struct{}

// Restart flushes filesystems and reboots.
func (Reboot) Restart() error {
	log.Error().Msg("restarting host")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
