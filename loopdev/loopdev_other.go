//go:build !linux

package loopdev

import "github.com/pam-mount/volmount/coreerr"

func newPlatformManager() Manager { return unsupportedManager{} }

// unsupportedManager implements spec §4.4's "on platforms without loop
// support, all three return NOT_SUPPORTED."
type unsupportedManager struct{}

func (unsupportedManager) Setup(string, bool) (string, error) {
	return "", coreerr.New(coreerr.NotSupported, "loop devices are not supported on this platform")
}

func (unsupportedManager) Release(string) error {
	return coreerr.New(coreerr.NotSupported, "loop devices are not supported on this platform")
}

func (unsupportedManager) BackingFile(string) (string, error) {
	return "", coreerr.New(coreerr.NotSupported, "loop devices are not supported on this platform")
}
