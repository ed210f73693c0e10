package ehd

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/pam-mount/volmount/cryptsetup"
	"github.com/pam-mount/volmount/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct {
	setupDevice  string
	setupErr     error
	releaseErr   error
	released     []string
	setupCalls   int
	releaseCalls int
}

func (f *fakeLoop) Setup(path string, readonly bool) (string, error) {
	f.setupCalls++
	return f.setupDevice, f.setupErr
}
func (f *fakeLoop) Release(device string) error {
	f.releaseCalls++
	f.released = append(f.released, device)
	return f.releaseErr
}
func (f *fakeLoop) BackingFile(device string) (string, error) { return device, nil }

type fakeCrypto struct {
	openErr    error
	closeErr   error
	statusInfo cryptsetup.Info
	statusOK   bool
	openCalls  int
	closeCalls int
}

func (f *fakeCrypto) IsLUKS(lower string) (bool, error) { return false, nil }
func (f *fakeCrypto) Open(req cryptsetup.Request) (cryptsetup.Info, error) {
	f.openCalls++
	if f.openErr != nil {
		return cryptsetup.Info{}, f.openErr
	}
	return cryptsetup.Info{Name: req.Name, Device: "/dev/mapper/" + req.Name}, nil
}
func (f *fakeCrypto) Close(info cryptsetup.Info) error {
	f.closeCalls++
	return f.closeErr
}
func (f *fakeCrypto) Status(name string) (cryptsetup.Info, bool, error) {
	return f.statusInfo, f.statusOK, nil
}

func regularFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "container.img")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func TestLoadAllocatesLoopForRegularFile(t *testing.T) {
	loop := &fakeLoop{setupDevice: "/dev/loop5"}
	crypto := &fakeCrypto{}
	e := &Engine{Loop: loop, Crypto: crypto}

	info, err := e.Load(volume.EHDRequest{Container: regularFile(t), Key: []byte("k")})
	require.NoError(t, err)

	assert.Equal(t, "/dev/loop5", info.LoopDevice)
	assert.Equal(t, "/dev/loop5", info.LowerDevice)
	assert.Equal(t, "/dev/mapper/"+info.CryptoName, info.CryptoDevice)
	assert.Equal(t, 1, loop.setupCalls)
	assert.Equal(t, 1, crypto.openCalls)
}

func TestLoadReleasesLoopOnCryptoFailure(t *testing.T) {
	loop := &fakeLoop{setupDevice: "/dev/loop5"}
	crypto := &fakeCrypto{openErr: errors.New("cryptsetup exited 1")}
	e := &Engine{Loop: loop, Crypto: crypto}

	_, err := e.Load(volume.EHDRequest{Container: regularFile(t), Key: []byte("k")})
	require.Error(t, err)

	assert.Equal(t, []string{"/dev/loop5"}, loop.released)
}

func TestUnloadReleasesLoopAndClosesCrypto(t *testing.T) {
	loop := &fakeLoop{}
	crypto := &fakeCrypto{}
	e := &Engine{Loop: loop, Crypto: crypto}

	err := e.Unload(volume.EHDInfo{
		Container:    "/srv/img.bin",
		LoopDevice:   "/dev/loop5",
		LowerDevice:  "/dev/loop5",
		CryptoName:   "foo",
		CryptoDevice: "/dev/mapper/foo",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, crypto.closeCalls)
	assert.Equal(t, []string{"/dev/loop5"}, loop.released)
}

func TestUnloadTreatsENXIOOnReleaseAsSuccess(t *testing.T) {
	loop := &fakeLoop{releaseErr: syscall.ENXIO}
	crypto := &fakeCrypto{}
	e := &Engine{Loop: loop, Crypto: crypto}

	err := e.Unload(volume.EHDInfo{LoopDevice: "/dev/loop5", CryptoName: "foo"})
	assert.NoError(t, err)
}

func TestUnloadSkipsLoopReleaseForBareBlockDevice(t *testing.T) {
	loop := &fakeLoop{}
	crypto := &fakeCrypto{}
	e := &Engine{Loop: loop, Crypto: crypto}

	err := e.Unload(volume.EHDInfo{CryptoName: "foo"})
	require.NoError(t, err)
	assert.Equal(t, 0, loop.releaseCalls)
}
