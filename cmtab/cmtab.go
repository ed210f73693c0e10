// Package cmtab implements the association registry (C7, spec §4.7):
// a persistent, append-only, crash-safe table of
// {mountpoint, container, loop-device, crypto-device} tuples, so
// teardown can reconstruct the layer stack setup built even across
// reboots. Locking follows lxc/cookiejar/filelock_unix.go's flock
// wrapper; scan/compact is exercised the way
// other_examples' cryptctl fs/mnt tests exercise mount-table parsing.
package cmtab

import (
	"bufio"
	"os"
	"strings"

	"github.com/pam-mount/volmount/coreerr"
)

// DefaultPath is where the cmtab lives absent configuration override
// (spec §4.7: "always, app-owned, path /etc/cmtab").
const DefaultPath = "/etc/cmtab"

// Registry is a handle on one cmtab file.
type Registry struct {
	Path string
}

// New returns a Registry for path.
func New(path string) *Registry { return &Registry{Path: path} }

// Append serializes rec and appends it to the file under an exclusive
// advisory lock (spec §4.7 "Append"). The lock is released implicitly
// when the file is closed.
func (r *Registry) Append(rec Record) error {
	f, err := os.OpenFile(r.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "opening cmtab for append", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return coreerr.Wrap(coreerr.RegistryLock, "locking cmtab", err)
	}

	payload := rec.encode() + "\n"
	n, err := f.WriteString(payload)
	if err != nil {
		return coreerr.Wrap(coreerr.RegistryIO, "writing cmtab record", err)
	}
	if n != len(payload) {
		return coreerr.New(coreerr.RegistryIO, "short write appending cmtab record")
	}
	return nil
}

// Lookup scans the file under a shared lock and returns the last
// record whose field matches key (spec §4.7 "Lookup": "the last
// matching record wins, to handle overmounts").
func (r *Registry) Lookup(field Field, key string) (Record, bool, error) {
	f, err := os.Open(r.Path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, coreerr.Wrap(coreerr.RegistryIO, "opening cmtab for lookup", err)
	}
	defer f.Close()

	if err := rLockFile(f); err != nil {
		return Record{}, false, coreerr.Wrap(coreerr.RegistryLock, "locking cmtab", err)
	}

	var found Record
	var ok bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, valid := decodeRecord(line)
		if !valid {
			continue
		}
		if rec.field(field) == key {
			found, ok = rec, true
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, false, coreerr.Wrap(coreerr.RegistryIO, "scanning cmtab", err)
	}

	return found, ok, nil
}

// Remove deletes the last record matching field/key, compacting every
// byte after it forward (spec §4.7 "Remove"): this preserves the
// order of records that follow the removed one, it does not collapse
// a whole per-mountpoint overmount stack to the newest entry. Returns
// (false, nil) if no match was found.
func (r *Registry) Remove(field Field, key string) (bool, error) {
	f, err := os.OpenFile(r.Path, os.O_RDWR, 0644)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, coreerr.Wrap(coreerr.RegistryIO, "opening cmtab for remove", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return false, coreerr.Wrap(coreerr.RegistryLock, "locking cmtab", err)
	}

	raw, err := readAll(f)
	if err != nil {
		return false, coreerr.Wrap(coreerr.RegistryIO, "reading cmtab", err)
	}

	lines := splitKeepingTrailer(string(raw))

	matchStart, matchEnd := -1, -1
	offset := 0
	for _, line := range lines {
		lineLen := len(line) + 1 // + newline
		if line != "" {
			if rec, valid := decodeRecord(line); valid && rec.field(field) == key {
				matchStart = offset
				matchEnd = offset + lineLen
			}
		}
		offset += lineLen
	}

	if matchEnd < 0 {
		return false, nil
	}
	if matchEnd > len(raw) {
		matchEnd = len(raw) // final line had no trailing newline
	}

	tail := raw[matchEnd:]
	if _, err := f.WriteAt(tail, int64(matchStart)); err != nil {
		return false, coreerr.Wrap(coreerr.RegistryIO, "compacting cmtab", err)
	}
	if err := f.Truncate(int64(matchStart + len(tail))); err != nil {
		return false, coreerr.Wrap(coreerr.RegistryIO, "truncating cmtab", err)
	}

	return true, nil
}

// All returns every record currently in the file, in on-disk order
// (including any overmount history Lookup's last-match-wins would
// hide). Used by the companion CLI's status subcommand.
func (r *Registry) All() ([]Record, error) {
	f, err := os.Open(r.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.RegistryIO, "opening cmtab for listing", err)
	}
	defer f.Close()

	if err := rLockFile(f); err != nil {
		return nil, coreerr.Wrap(coreerr.RegistryLock, "locking cmtab", err)
	}

	var out []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if rec, ok := decodeRecord(line); ok {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.RegistryIO, "scanning cmtab", err)
	}
	return out, nil
}

func readAll(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var buf []byte
	chunk := make([]byte, 64*1024)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// splitKeepingTrailer splits on "\n" the way strings.Split would, but
// drops the final empty element produced by a trailing newline so
// callers don't treat it as a zero-length record line.
func splitKeepingTrailer(s string) []string {
	parts := strings.Split(s, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
