package cmtab

import (
	"strings"

	"github.com/pam-mount/volmount/escape"
)

// absent is the on-disk placeholder for an unset loop or crypto
// device field (spec §4.7: "`-` stored in loop or crypto fields
// decodes to absent").
const absent = "-"

// Record is one cmtab entry (spec §3): the layer stack a single
// encrypted mount built, so teardown can walk it in reverse.
type Record struct {
	Mountpoint   string
	Container    string
	LoopDevice   string // "" encodes as "-"
	CryptoDevice string // "" encodes as "-"
}

// Field selects which Record attribute a Lookup/Remove call matches
// against (spec §4.7: "compare the chosen field against a key").
type Field int

const (
	FieldMountpoint Field = iota
	FieldContainer
	FieldLoopDevice
	FieldCryptoDevice
)

func (r Record) field(f Field) string {
	switch f {
	case FieldContainer:
		return r.Container
	case FieldLoopDevice:
		return r.LoopDevice
	case FieldCryptoDevice:
		return r.CryptoDevice
	default:
		return r.Mountpoint
	}
}

// encode serializes r as a single tab-separated cmtab line, without a
// trailing newline.
func (r Record) encode() string {
	fields := []string{r.Mountpoint, r.Container, encodeOptional(r.LoopDevice), encodeOptional(r.CryptoDevice)}
	for i, f := range fields {
		fields[i] = escape.Encode(f)
	}
	return strings.Join(fields, "\t")
}

func encodeOptional(s string) string {
	if s == "" {
		return absent
	}
	return s
}

func decodeOptional(s string) string {
	if s == absent {
		return ""
	}
	return s
}

// decodeRecord parses a single cmtab line into a Record. Malformed
// lines (wrong field count) are reported so the caller can decide
// whether to treat them as trailing garbage from an interrupted
// compaction (spec §4.7 concurrency contract).
func decodeRecord(line string) (Record, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Record{}, false
	}
	for i, f := range fields {
		fields[i] = escape.Decode(f)
	}
	return Record{
		Mountpoint:   fields[0],
		Container:    fields[1],
		LoopDevice:   decodeOptional(fields[2]),
		CryptoDevice: decodeOptional(fields[3]),
	}, true
}
