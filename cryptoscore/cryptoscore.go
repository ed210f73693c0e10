// Package cryptoscore maps cipher/digest names to a security verdict
// (spec §4.3). It never panics on unrecognized names: an unknown name
// that doesn't contain a blacklisted token is simply ADEQUATE.
package cryptoscore

import "strings"

// Verdict ranks the security tier a cipher/digest name maps to.
// Callers must compare via the ordering, never rely on exact integer
// values beyond it (spec §4.3): BLACKLISTED < SUBPAR < UNSPEC < ADEQUATE.
type Verdict int

const (
	Blacklisted Verdict = iota
	Subpar
	Unspec
	Adequate
)

func (v Verdict) String() string {
	switch v {
	case Blacklisted:
		return "BLACKLISTED"
	case Subpar:
		return "SUBPAR"
	case Unspec:
		return "UNSPEC"
	case Adequate:
		return "ADEQUATE"
	default:
		return "UNKNOWN"
	}
}

// blacklist is the explicit set of tokens that downgrade a name to
// BLACKLISTED, per spec §4.3.
var blacklist = map[string]bool{
	"ecb":  true,
	"rc2":  true,
	"rc4":  true,
	"des":  true,
	"des3": true,
	"md2":  true,
	"md4":  true,
}

const tokenSeparators = ",-.:_"

// Score tokenizes a compound cipher/digest name (OpenSSL or
// crypto-helper style) on any of `,-.:_` and returns BLACKLISTED if
// any token matches the blacklist, ADEQUATE otherwise.
func Score(name string) Verdict {
	for _, tok := range splitAny(strings.ToLower(name), tokenSeparators) {
		if blacklist[tok] {
			return Blacklisted
		}
	}
	return Adequate
}

func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
}
