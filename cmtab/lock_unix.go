//go:build !windows

package cmtab

import (
	"os"
	"syscall"
)

// lockFile and rLockFile take a blocking exclusive/shared advisory
// lock on f's whole extent via flock(2), the same call
// lxc/cookiejar/filelock_unix.go wraps for its cookie jar file.
func lockFile(f *os.File) error  { return syscall.Flock(int(f.Fd()), syscall.LOCK_EX) }
func rLockFile(f *os.File) error { return syscall.Flock(int(f.Fd()), syscall.LOCK_SH) }
