//go:build linux

package loopdev

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pam-mount/volmount/coreerr"
)

const loopControlPath = "/dev/loop-control"

func newPlatformManager() Manager { return linuxManager{} }

type linuxManager struct{}

// Setup implements spec §4.4 loop_setup: allocate an unused loop
// device via /dev/loop-control's LOOP_CTL_GET_FREE, then associate
// path with it via LOOP_SET_FD.
func (linuxManager) Setup(path string, readonly bool) (string, error) {
	ctl, err := os.OpenFile(loopControlPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return "", coreerr.New(coreerr.NotSupported, "loop-control device not present")
		}
		return "", coreerr.Wrap(coreerr.LoopOS, "opening loop-control", err)
	}
	defer ctl.Close()

	idx, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		if err == syscall.ENXIO {
			return "", coreerr.New(coreerr.LoopExhausted, "no free loop device")
		}
		return "", coreerr.Wrap(coreerr.LoopOS, "LOOP_CTL_GET_FREE", err)
	}

	device := fmt.Sprintf("/dev/loop%d", idx)

	backing, err := os.OpenFile(path, openFlags(readonly), 0)
	if err != nil {
		return "", coreerr.Wrap(coreerr.LoopOS, "opening container "+path, err)
	}
	defer backing.Close()

	loopFd, err := os.OpenFile(device, openFlags(readonly), 0)
	if err != nil {
		return "", coreerr.Wrap(coreerr.LoopOS, "opening "+device, err)
	}
	defer loopFd.Close()

	err = unix.IoctlSetInt(int(loopFd.Fd()), unix.LOOP_SET_FD, int(backing.Fd()))
	if err != nil {
		return "", coreerr.Wrap(coreerr.LoopOS, "LOOP_SET_FD on "+device, err)
	}

	if readonly {
		info := unix.LoopInfo64{Flags: unix.LO_FLAGS_READ_ONLY}
		if err := unix.IoctlLoopSetStatus64(int(loopFd.Fd()), &info); err != nil {
			_ = unix.IoctlSetInt(int(loopFd.Fd()), unix.LOOP_CLR_FD, 0)
			return "", coreerr.Wrap(coreerr.LoopOS, "LOOP_SET_STATUS64 on "+device, err)
		}
	}

	return device, nil
}

// Release implements spec §4.4 loop_release: detach. ENXIO ("not
// assigned") and ENOTTY ("not a loop device") are returned as-is; the
// EHD orchestrator (C6) treats those two as success on unload.
func (linuxManager) Release(device string) error {
	fd, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return coreerr.Wrap(coreerr.LoopOS, "opening "+device, err)
	}
	defer fd.Close()

	if err := unix.IoctlSetInt(int(fd.Fd()), unix.LOOP_CLR_FD, 0); err != nil {
		return err
	}
	return nil
}

// BackingFile implements spec §4.4 loop_file: resolve device back to
// its backing path via LOOP_GET_STATUS64, or return device unchanged
// if it isn't a loop device.
func (linuxManager) BackingFile(device string) (string, error) {
	fd, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return "", coreerr.Wrap(coreerr.LoopOS, "opening "+device, err)
	}
	defer fd.Close()

	info, err := unix.IoctlLoopGetStatus64(int(fd.Fd()))
	if err != nil {
		if err == syscall.ENXIO || err == syscall.ENOTTY {
			return device, nil
		}
		return "", coreerr.Wrap(coreerr.LoopOS, "LOOP_GET_STATUS64 on "+device, err)
	}

	name := info.File_name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name), nil
}

func openFlags(readonly bool) int {
	if readonly {
		return os.O_RDONLY
	}
	return os.O_RDWR
}
