package volume

import (
	"github.com/pam-mount/volmount/coreerr"
)

// Record limits mirror the source's fixed-size field caps (spec §9's
// note on MAX_PAR-style bounds); chosen generously enough that no
// legitimate mountpoint/path/server value is rejected.
const (
	MaxPathLen   = 4096
	MaxFieldLen  = 256
	MaxOptionLen = 4096
)

// Record is the volume record the mount controller consumes (spec
// §3). It is owned by the caller; the core takes it read-only.
type Record struct {
	Kind Kind

	Mountpoint string
	Server     string
	Volume     string // remote path, or local container path
	MountUser  string

	Options map[string]string

	KeyPath   string
	KeyCipher string
	KeyDigest string

	GlobalConfig bool
	CreatedMntpt bool
	ReadOnly     bool
	UsesSSH      bool
}

// Validate checks the structural invariants from spec §3: kind is
// within the enumeration, server is set for non-local kinds, and a
// key path is present whenever a key cipher is named.
func (r *Record) Validate() error {
	if _, known := kindNames[r.Kind]; !known {
		return coreerr.New(coreerr.ConfigInvalid, "volume kind is not set or not a known kind")
	}
	if len(r.Mountpoint) == 0 || len(r.Mountpoint) > MaxPathLen {
		return coreerr.New(coreerr.ConfigInvalid, "mountpoint missing or too long")
	}
	if r.Kind.IsRemote() && r.Server == "" {
		return coreerr.New(coreerr.ConfigInvalid, "server required for remote volume kind "+r.Kind.String())
	}
	if len(r.Volume) > MaxPathLen || len(r.Server) > MaxFieldLen || len(r.MountUser) > MaxFieldLen {
		return coreerr.New(coreerr.ConfigInvalid, "a volume field exceeds its maximum length")
	}
	if r.KeyCipher != "" && r.KeyPath == "" {
		return coreerr.New(coreerr.ConfigInvalid, "key cipher named without a key path")
	}
	for k, v := range r.Options {
		if len(k)+len(v) > MaxOptionLen {
			return coreerr.New(coreerr.ConfigInvalid, "mount option exceeds maximum length: "+k)
		}
	}
	return nil
}

// CanonicalDevice returns the string the kernel mount list's "device"
// (fsname) column would show for this volume, used by the
// already-mounted check (spec §4.10 step 2).
func (r *Record) CanonicalDevice() string {
	switch r.Kind {
	case KindCIFS, KindSMB:
		return "//" + r.Server + "/" + r.Volume
	case KindNCP:
		return r.Server + "/" + r.Volume
	case KindNFS:
		return r.Server + ":" + r.Volume
	default:
		return r.Volume
	}
}
