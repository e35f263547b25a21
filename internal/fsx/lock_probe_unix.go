//go:build !windows

package fsx

import "golang.org/x/sys/unix"

// processAlive sends signal 0 to pid, which performs permission/existence
// checks without actually delivering a signal (kill(2), POSIX idiom).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but we can't signal it: still alive.
	return err == unix.EPERM
}
