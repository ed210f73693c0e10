// Package loopdev allocates and releases Linux loop devices, and
// resolves a loop device back to its backing file (spec §4.4). On
// platforms without loop support all operations return NOT_SUPPORTED.
package loopdev

// Manager is implemented per-platform; see loopdev_linux.go and
// loopdev_other.go.
type Manager interface {
	// Setup associates an unused loop device with path and returns its
	// device path (e.g. "/dev/loop3").
	Setup(path string, readonly bool) (string, error)
	// Release detaches device.
	Release(device string) error
	// BackingFile resolves device back to the file it's backing. If
	// device is not a loop device, it is returned unchanged.
	BackingFile(device string) (string, error)
}

var defaultManager Manager = newPlatformManager()

// Setup allocates an unused loop device backing path using the
// platform default Manager.
func Setup(path string, readonly bool) (string, error) { return defaultManager.Setup(path, readonly) }

// Release detaches device using the platform default Manager.
func Release(device string) error { return defaultManager.Release(device) }

// BackingFile resolves device to its backing file using the platform
// default Manager.
func BackingFile(device string) (string, error) { return defaultManager.BackingFile(device) }
