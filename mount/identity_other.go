//go:build !linux

package mount

// withFSIdentity has no non-Linux implementation: platforms without
// setfsuid(2) simply create the mountpoint as whatever identity the
// process already runs as. do_mount's fallback path (create as root,
// then chown) still applies, so this degrades gracefully rather than
// failing the mount.
func withFSIdentity(uid, gid int, fn func() error) error {
	return fn()
}
