package volume

import (
	"fmt"
	"strings"
)

// Kind is the closed enumeration of volume kinds the mount controller
// understands (spec §3). It round-trips through YAML config the same
// way the teacher's architecture/instance-type enums do.
type Kind int

const (
	KindUnknown Kind = iota
	KindLocal
	KindCIFS
	KindSMB
	KindNCP
	KindNFS
	KindFUSE
	KindCrypt
	KindTCrypt
)

var kindNames = map[Kind]string{
	KindLocal:  "local",
	KindCIFS:   "cifs",
	KindSMB:    "smb",
	KindNCP:    "ncp",
	KindNFS:    "nfs",
	KindFUSE:   "fuse",
	KindCrypt:  "crypt",
	KindTCrypt: "tcrypt",
}

var namesToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a configuration-file or mount-table fstype name to a
// Kind. An unrecognized name returns KindUnknown and false.
func ParseKind(s string) (Kind, bool) {
	k, ok := namesToKind[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// IsRemote reports whether kind requires a non-empty server (spec §3
// invariant: "for non-local kinds the server is non-empty").
func (k Kind) IsRemote() bool {
	switch k {
	case KindCIFS, KindSMB, KindNCP, KindNFS:
		return true
	default:
		return false
	}
}

// IsEncrypted reports whether kind is an encrypted-container kind that
// drives the EHD engine (C6) and records a cmtab entry.
func (k Kind) IsEncrypted() bool {
	return k == KindCrypt || k == KindTCrypt
}

// CaseInsensitiveCompare reports whether already-mounted comparisons
// for this kind should ignore case (spec §4.10 step 2: "case
// insensitive for kinds in {smb, cifs, ncp}").
func (k Kind) CaseInsensitiveCompare() bool {
	switch k {
	case KindSMB, KindCIFS, KindNCP:
		return true
	default:
		return false
	}
}

// UnmarshalYAML implements yaml.Unmarshaler so Kind can be written as
// a bare string in the operator config file.
func (k *Kind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, ok := ParseKind(s)
	if !ok {
		return fmt.Errorf("volume: unknown kind %q", s)
	}
	*k = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}
