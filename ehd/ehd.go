// Package ehd implements the encrypted-volume engine orchestrator
// (C6, spec §4.6): it composes the loop manager (C4) and the crypto
// layer (C5) into a single load/unload primitive, rolling a loop
// device back on crypto failure the same way
// lxd/daemon/daemon_share_mounts.go undoes a partial mount sequence.
package ehd

import (
	"os"
	"syscall"

	"github.com/pam-mount/volmount/coreerr"
	"github.com/pam-mount/volmount/cryptsetup"
	"github.com/pam-mount/volmount/loopdev"
	"github.com/pam-mount/volmount/volume"
)

// Engine composes a loop manager and a crypto backend. Both are
// interfaces so tests can substitute fakes without touching real
// kernel/cryptsetup state.
type Engine struct {
	Loop   loopdev.Manager
	Crypto cryptsetup.Backend
}

// New returns an Engine wired to the real platform loop manager and
// the dm-crypt/LUKS backend.
func New() *Engine {
	return &Engine{Loop: defaultLoopManager{}, Crypto: cryptsetup.New()}
}

// defaultLoopManager delegates to the loopdev package-level functions
// rather than capturing loopdev.defaultManager directly, keeping this
// package decoupled from loopdev's internal platform switch.
type defaultLoopManager struct{}

func (defaultLoopManager) Setup(path string, readonly bool) (string, error) {
	return loopdev.Setup(path, readonly)
}
func (defaultLoopManager) Release(device string) error { return loopdev.Release(device) }
func (defaultLoopManager) BackingFile(device string) (string, error) {
	return loopdev.BackingFile(device)
}

// Load implements ehd_load: stat the container, allocate a loop
// device if it's a regular file, then drive the crypto helper. On
// crypto failure after a loop was allocated, the loop is released
// before returning.
func (e *Engine) Load(req volume.EHDRequest) (volume.EHDInfo, error) {
	isBlock, err := isBlockDevice(req.Container)
	if err != nil {
		return volume.EHDInfo{}, coreerr.Wrap(coreerr.LoopOS, "stat container", err)
	}

	info := volume.EHDInfo{Container: req.Container}

	lower := req.Container
	if !isBlock {
		dev, err := e.Loop.Setup(req.Container, req.ReadOnly)
		if err != nil {
			return volume.EHDInfo{}, err
		}
		lower = dev
		info.LoopDevice = dev
	}
	info.LowerDevice = lower

	name := cryptsetup.MangleName(req.Container)
	isLUKS, _ := e.Crypto.IsLUKS(lower)

	cinfo, err := e.Crypto.Open(cryptsetup.Request{
		Lower:    lower,
		Name:     name,
		IsLUKS:   isLUKS,
		Cipher:   req.Cipher,
		Hash:     req.Hash,
		Key:      req.TruncatedKey(),
		ReadOnly: req.ReadOnly,
	})
	if err != nil {
		if info.LoopDevice != "" {
			_ = e.Loop.Release(info.LoopDevice)
		}
		return volume.EHDInfo{}, err
	}

	info.CryptoName = cinfo.Name
	info.CryptoDevice = cinfo.Device
	return info, nil
}

// Unload implements ehd_unload: query the crypto mapping's own report
// of its backing device (the kernel's view is authoritative, spec
// §4.6), close the mapping, then release the loop device unless the
// container was a bare block device. When a loop device was recorded
// and the status query names a backing device, the queried device is
// the one released. ENXIO/ENOTTY on loop release are treated as
// success, matching the loop manager's own idempotent Release contract.
func (e *Engine) Unload(info volume.EHDInfo) error {
	if status, ok, err := e.Crypto.Status(info.CryptoName); err == nil && ok && status.LowerDevice != "" {
		info.LowerDevice = status.LowerDevice
		if info.LoopDevice != "" {
			info.LoopDevice = status.LowerDevice
		}
	}

	closeErr := e.Crypto.Close(cryptsetup.Info{Name: info.CryptoName, Device: info.CryptoDevice})

	if info.LoopDevice != "" {
		if relErr := e.Loop.Release(info.LoopDevice); relErr != nil && !isAlreadyDetached(relErr) {
			if closeErr != nil {
				return closeErr
			}
			return relErr
		}
	}

	return closeErr
}

func isBlockDevice(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice == 0, nil
}

// isAlreadyDetached reports whether err is ENXIO ("not assigned") or
// ENOTTY ("not a loop device"), the loop manager's signal that the
// device is already gone (spec §4.6 invariant: treated as success on
// unload).
func isAlreadyDetached(err error) bool {
	return err == syscall.ENXIO || err == syscall.ENOTTY
}
