package cmtab

import (
	"fmt"
	"os"
	"strings"

	"github.com/pam-mount/volmount/coreerr"
	"github.com/pam-mount/volmount/escape"
)

// SmtabRecord is one system-mtab entry (spec §3 "Smtab record"):
// standard mtab fields, device/mountpoint/fstype/options plus two
// trailing numeric fields that are always written as "0 0".
type SmtabRecord struct {
	Device     string
	Mountpoint string
	FSType     string
	Options    string
}

func (r SmtabRecord) encode() string {
	fields := []string{r.Device, r.Mountpoint, r.FSType, r.Options}
	for i, f := range fields {
		fields[i] = escape.Encode(f)
	}
	return fmt.Sprintf("%s 0 0", strings.Join(fields, " "))
}

func decodeSmtabRecord(line string) (SmtabRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return SmtabRecord{}, false
	}
	for i := 0; i < 4; i++ {
		fields[i] = escape.Decode(fields[i])
	}
	return SmtabRecord{
		Device:     fields[0],
		Mountpoint: fields[1],
		FSType:     fields[2],
		Options:    fields[3],
	}, true
}

// Smtab is a handle on the system mtab, on platforms where the kernel
// mtab is a writable plain file. Path is empty on platforms where it
// isn't (spec §4.7): Add then returns NOT_SUPPORTED and Remove is a
// no-op success.
type Smtab struct {
	Path string
}

// NewSmtab returns a Smtab for path; an empty path marks the platform
// as not supporting a writable kernel mtab.
func NewSmtab(path string) *Smtab { return &Smtab{Path: path} }

func (s *Smtab) supported() bool { return s.Path != "" }

// Add appends rec under an exclusive lock, or returns NOT_SUPPORTED
// if this platform has no writable system mtab.
func (s *Smtab) Add(rec SmtabRecord) error {
	if !s.supported() {
		return coreerr.New(coreerr.NotSupported, "system mtab is not writable on this platform")
	}

	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "opening smtab for append", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return coreerr.Wrap(coreerr.RegistryLock, "locking smtab", err)
	}

	payload := rec.encode() + "\n"
	if _, err := f.WriteString(payload); err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "writing smtab record", err)
	}
	return nil
}

// Remove deletes the last record whose mountpoint matches mountpoint.
// On platforms without a writable system mtab, this is a no-op
// success (spec §8 boundary: "Non-writable smtab platform ...
// `_remove` return NOT_SUPPORTED (success code 0 in the remove
// case)").
func (s *Smtab) Remove(mountpoint string) error {
	if !s.supported() {
		return nil
	}

	f, err := os.OpenFile(s.Path, os.O_RDWR, 0644)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "opening smtab for remove", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return coreerr.Wrap(coreerr.RegistryLock, "locking smtab", err)
	}

	raw, err := readAll(f)
	if err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "reading smtab", err)
	}

	lines := splitKeepingTrailer(string(raw))
	matchStart, matchEnd := -1, -1
	offset := 0
	for _, line := range lines {
		lineLen := len(line) + 1
		if line != "" {
			if rec, valid := decodeSmtabRecord(line); valid && rec.Mountpoint == mountpoint {
				matchStart = offset
				matchEnd = offset + lineLen
			}
		}
		offset += lineLen
	}
	if matchEnd < 0 {
		return nil
	}
	if matchEnd > len(raw) {
		matchEnd = len(raw) // final line had no trailing newline
	}

	tail := raw[matchEnd:]
	if _, err := f.WriteAt(tail, int64(matchStart)); err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "compacting smtab", err)
	}
	return f.Truncate(int64(matchStart + len(tail)))
}
