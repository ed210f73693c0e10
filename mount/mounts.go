package mount

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pam-mount/volmount/escape"
	"github.com/pam-mount/volmount/volume"
)

// DefaultMountsPath is the kernel mount list this controller reads to
// decide whether a volume is already mounted (spec §4.10 step 2).
const DefaultMountsPath = "/proc/mounts"

// Entry is one line of the kernel mount list: device, mountpoint,
// filesystem type, and the option string, the same four fields
// other_examples' cryptctl fs.ParseMountPoints keys its comparisons
// on.
type Entry struct {
	Device     string
	Mountpoint string
	FSType     string
	Options    string
}

// parseMounts reads /proc/mounts-style text into Entries. Device and
// mountpoint fields are octal-escaped by the kernel the same way
// cmtab fields are (C1), so the escape codec decodes them here too.
func parseMounts(data string) []Entry {
	var out []Entry
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		out = append(out, Entry{
			Device:     escape.Decode(fields[0]),
			Mountpoint: escape.Decode(fields[1]),
			FSType:     fields[2],
			Options:    fields[3],
		})
	}
	return out
}

// readMounts reads and parses path (normally DefaultMountsPath).
func readMounts(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseMounts(string(raw)), nil
}

// loopBackingResolver resolves a loop device back to the file it
// backs, so a container mounted through a loop device is still
// recognized by its original container path (spec §4.10 step 2:
// "resolve loop-backed devices back to their backing file on
// platforms that expose it").
type loopBackingResolver func(device string) (string, error)

// isAlreadyMounted implements spec §4.10 step 2: compare
// (fsname, mountpoint) against the volume's canonical device form and
// both the configured mountpoint and its realpath, case-insensitively
// for {smb, cifs, ncp}.
func isAlreadyMounted(entries []Entry, rec *volume.Record, resolveLoop loopBackingResolver) bool {
	wantDevice := rec.CanonicalDevice()
	wantMount := rec.Mountpoint
	realMount := wantMount
	if resolved, err := filepath.EvalSymlinks(wantMount); err == nil {
		realMount = resolved
	}

	caseInsensitive := rec.Kind.CaseInsensitiveCompare()

	for _, e := range entries {
		dev := e.Device
		if resolveLoop != nil && strings.HasPrefix(dev, "/dev/loop") {
			if backing, err := resolveLoop(dev); err == nil {
				dev = backing
			}
		}

		mountMatches := e.Mountpoint == wantMount || e.Mountpoint == realMount
		var deviceMatches bool
		if caseInsensitive {
			deviceMatches = strings.EqualFold(dev, wantDevice)
		} else {
			deviceMatches = dev == wantDevice
		}

		if mountMatches && deviceMatches {
			return true
		}
	}
	return false
}
