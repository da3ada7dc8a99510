//go:build !linux

package scheduler

import "errors"

func raisePriority(nice int) error {
	return errors.New("per-thread priority is only supported on linux")
}
