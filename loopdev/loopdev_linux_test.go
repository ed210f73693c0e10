//go:build linux

package loopdev

import (
	"os"
	"testing"
)

// TestSetupReleaseRoundTrip exercises the full loop_setup/loop_release
// cycle against a real /dev/loop-control. It's skipped outside of
// privileged CI the same way the teacher skips syscall-heavy tests
// when the kernel facility isn't available (e.g.
// shared/idmap/idmapset_linux_test.go's capability checks).
func TestSetupReleaseRoundTrip(t *testing.T) {
	if _, err := os.Stat(loopControlPath); err != nil {
		t.Skipf("loop-control not available: %v", err)
	}
	if os.Geteuid() != 0 {
		t.Skip("loop device setup requires root")
	}

	f, err := os.CreateTemp(t.TempDir(), "loopdev-backing")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(1 << 20); err != nil {
		t.Fatal(err)
	}

	dev, err := Setup(f.Name(), false)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if err := Release(dev); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := Release(dev); err == nil {
		t.Fatal("expected second Release to fail")
	}
}
