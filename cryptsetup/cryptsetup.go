// Package cryptsetup implements the crypto layer (C5, spec §4.5): it
// probes a container for a LUKS header and opens/closes a dm-crypt
// mapping by shelling out to the external `cryptsetup` binary, the
// way other_examples' hcsshim crypt.go drives the same tool and the
// way this repo's teacher never reimplements crypto primitives
// in-process.
package cryptsetup

import (
	"regexp"
	"strings"

	"github.com/pam-mount/volmount/coreerr"
	"github.com/pam-mount/volmount/subprocess"
)

// Request describes a single crypto-open call.
type Request struct {
	// Lower is the backing device: either the container itself (if
	// it's already a block device) or a loop device fronting it.
	Lower string
	// Name is the dm-crypt mapping's short name.
	Name string

	IsLUKS   bool
	Cipher   string
	Hash     string
	Key      []byte
	ReadOnly bool
}

// Info is what a successful Open call produces: enough to reverse the
// mapping later (spec §3, "EHD mount info").
type Info struct {
	Name   string
	Device string
	// LowerDevice is filled in by Status from the helper's own report
	// of what backs the mapping; empty when not queried via Status.
	LowerDevice string
}

// Backend is the capability set spec §9 calls out for the two crypto
// backends the original supports (dm-crypt/LUKS and NetBSD cgd):
// is_luks/load/unload. Only dmcrypt is wired here — see DESIGN.md for
// why cgd has no home in this tree.
type Backend interface {
	IsLUKS(lower string) (bool, error)
	Open(req Request) (Info, error)
	Close(info Info) error
	// Status reports whether name is an active mapping and, if so,
	// its Info with LowerDevice filled in from the helper's own
	// report (spec §4.6: "query the crypto status to learn the
	// current backing device ... the kernel's view is authoritative").
	Status(name string) (Info, bool, error)
}

// nonMappingChar matches every byte that isn't alphanumeric or
// underscore; MangleName replaces each with underscore, per spec §4.5's
// "name mangling" rule.
var nonMappingChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

// MangleName derives a dm-crypt mapping name from a container path.
func MangleName(containerPath string) string {
	return nonMappingChar.ReplaceAllString(containerPath, "_")
}

// Binary is the path to the external cryptsetup program; overridable
// by configuration the way the mount/unmount helper argv templates
// are (spec §6).
var Binary = "cryptsetup"

type dmcrypt struct{}

// New returns the dm-crypt/LUKS Backend, the only one this tree wires
// (spec §9's cgd variant has no Linux analogue to drive here).
func New() Backend { return dmcrypt{} }

func (dmcrypt) IsLUKS(lower string) (bool, error) {
	p, err := subprocess.Spawn(subprocess.Request{Argv: []string{Binary, "isLuks", lower}})
	if err != nil {
		return false, coreerr.Wrap(coreerr.CryptoHelperFailed, "spawning isLuks", err)
	}
	status, err := p.Wait()
	if err != nil {
		return false, coreerr.Wrap(coreerr.CryptoHelperFailed, "waiting for isLuks", err)
	}
	return status == 0, nil
}

func (dmcrypt) Open(req Request) (Info, error) {
	argv := []string{Binary}
	if req.ReadOnly {
		argv = append(argv, "--readonly")
	}

	if req.IsLUKS {
		if req.Cipher != "" {
			argv = append(argv, "-c", req.Cipher)
		}
		argv = append(argv, "luksOpen", req.Lower, req.Name)
	} else {
		if req.Cipher != "" {
			argv = append(argv, "-c", req.Cipher)
		}
		argv = append(argv, "--key-file=-")
		if req.Hash != "" {
			argv = append(argv, "-h", req.Hash)
		}
		argv = append(argv, "create", req.Name, req.Lower)
	}

	p, err := subprocess.Spawn(subprocess.Request{Argv: argv, WantStdin: true})
	if err != nil {
		return Info{}, coreerr.Wrap(coreerr.CryptoHelperFailed, "spawning crypto open", err)
	}
	if err := p.WriteAndClose(req.Key); err != nil {
		return Info{}, coreerr.Wrap(coreerr.CryptoHelperFailed, "delivering key to crypto helper", err)
	}

	status, err := p.Wait()
	if err != nil {
		return Info{}, coreerr.Wrap(coreerr.CryptoHelperFailed, "waiting for crypto open", err)
	}
	if status != 0 {
		return Info{}, coreerr.New(coreerr.CryptoHelperFailed, "crypto helper exited non-zero")
	}

	return Info{Name: req.Name, Device: deviceFor(req.Name)}, nil
}

func (dmcrypt) Close(info Info) error {
	p, err := subprocess.Spawn(subprocess.Request{Argv: []string{Binary, "remove", info.Name}})
	if err != nil {
		return coreerr.Wrap(coreerr.CryptoHelperFailed, "spawning crypto close", err)
	}
	status, err := p.Wait()
	if err != nil {
		return coreerr.Wrap(coreerr.CryptoHelperFailed, "waiting for crypto close", err)
	}
	if status != 0 {
		return coreerr.New(coreerr.CryptoHelperFailed, "crypto remove exited non-zero")
	}
	return nil
}

// Status queries the helper for the current backing device of a
// mapping, used by ehd_unload to learn the lower device authoritatively
// (spec §4.6) even if the caller's own bookkeeping was lost.
func (dmcrypt) Status(name string) (Info, bool, error) {
	p, err := subprocess.Spawn(subprocess.Request{
		Argv:       []string{Binary, "status", name},
		WantStdout: true,
	})
	if err != nil {
		return Info{}, false, coreerr.Wrap(coreerr.CryptoHelperFailed, "spawning crypto status", err)
	}

	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := p.Stdout.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}

	status, err := p.Wait()
	if err != nil {
		return Info{}, false, coreerr.Wrap(coreerr.CryptoHelperFailed, "waiting for crypto status", err)
	}
	if status != 0 {
		return Info{}, false, nil
	}

	return Info{
		Name:        name,
		Device:      deviceFor(name),
		LowerDevice: parseStatusDevice(out.String()),
	}, true, nil
}

func deviceFor(name string) string {
	return "/dev/mapper/" + name
}

// parseStatusDevice extracts the "device:" field from `cryptsetup
// status` output, e.g. a line "  device:  /dev/loop0".
func parseStatusDevice(status string) string {
	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "device:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
