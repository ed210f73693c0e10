//go:build linux

package mount

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// withFSIdentity runs fn with the calling thread's filesystem uid/gid
// set to uid/gid (the credentials the kernel checks for file creation
// and permission, per setfsuid(2)), restoring the prior values
// afterward. setfsuid/setfsgid are per-thread, so the goroutine is
// pinned to its OS thread for the duration — spec §4.10 step 3's
// "switch effective identity ... revert to root on all exits from
// this step".
func withFSIdentity(uid, gid int, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	oldGid, err := unix.SetfsgidRetGid(gid)
	if err != nil {
		return err
	}
	oldUid, err := unix.SetfsuidRetUid(uid)
	if err != nil {
		_, _ = unix.SetfsgidRetGid(oldGid)
		return err
	}

	defer func() {
		_, _ = unix.SetfsuidRetUid(oldUid)
		_, _ = unix.SetfsgidRetGid(oldGid)
	}()

	return fn()
}
