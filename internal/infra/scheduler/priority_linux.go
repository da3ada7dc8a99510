//go:build linux

package scheduler

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// raisePriority renices the calling OS thread. The caller must have
// locked the goroutine to its thread.
func raisePriority(nice int) error {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return fmt.Errorf("setpriority tid %d nice %d: %w", tid, nice, err)
	}
	return nil
}
