// Package template implements the command templater (C8, spec §4.8):
// it expands `%(NAME)` and `%(before="..." NAME)` / `%(after="..."
// NAME)` placeholders against a volume.VariableMap, and builds argv
// vectors by expanding a sequence of such templates.
package template

import (
	"strings"

	"github.com/pam-mount/volmount/volume"
)

// Expander accumulates parse errors across one or more Expand calls so
// a caller can drain them after building a whole argv vector, per
// spec §4.8 ("Parse errors are collected into a per-invocation error
// list that the caller may drain").
type Expander struct {
	errs []error
}

// New returns a fresh Expander.
func New() *Expander { return &Expander{} }

// Errors returns every parse error recorded since the Expander was
// created.
func (e *Expander) Errors() []error { return e.errs }

// Expand substitutes every `%(...)` placeholder in tmpl using vars.
// Missing variables without an affix expand to empty; missing or
// empty variables with a before=/after= affix suppress the affix
// entirely.
func (e *Expander) Expand(tmpl string, vars volume.VariableMap) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '%' && i+1 < len(tmpl) && tmpl[i+1] == '(' {
			end := matchingParen(tmpl, i+1)
			if end < 0 {
				e.errs = append(e.errs, errUnterminated(tmpl[i:]))
				out.WriteString(tmpl[i:])
				break
			}
			ph := tmpl[i+2 : end]
			out.WriteString(e.expandPlaceholder(ph, vars))
			i = end + 1
			continue
		}
		out.WriteByte(tmpl[i])
		i++
	}
	return out.String()
}

// ArglistBuild expands each element of templates independently,
// building a process argument vector (spec §4.8's arglist_build).
func ArglistBuild(templates []string, vars volume.VariableMap) []string {
	e := New()
	argv := make([]string, len(templates))
	for i, t := range templates {
		argv[i] = e.Expand(t, vars)
	}
	return argv
}

func (e *Expander) expandPlaceholder(ph string, vars volume.VariableMap) string {
	before, after, name, err := parsePlaceholder(ph)
	if err != nil {
		e.errs = append(e.errs, err)
		return ""
	}

	value, ok := vars[name]
	if !ok || value == "" {
		return ""
	}
	if before != "" {
		return before + value
	}
	if after != "" {
		return value + after
	}
	return value
}

// parsePlaceholder parses the interior of a %(...) placeholder into
// an optional before=/after= affix plus the variable NAME.
func parsePlaceholder(ph string) (before, after, name string, err error) {
	s := strings.TrimSpace(ph)

	switch {
	case strings.HasPrefix(s, "before="):
		s = s[len("before="):]
		before, s, err = readQuoted(s)
	case strings.HasPrefix(s, "after="):
		s = s[len("after="):]
		after, s, err = readQuoted(s)
	}
	if err != nil {
		return "", "", "", err
	}

	name = strings.TrimSpace(s)
	if name == "" {
		return "", "", "", errEmptyName(ph)
	}
	return before, after, name, nil
}

func readQuoted(s string) (text, rest string, err error) {
	if len(s) == 0 || s[0] != '"' {
		return "", "", errAffixQuote(s)
	}
	endQuote := strings.IndexByte(s[1:], '"')
	if endQuote < 0 {
		return "", "", errAffixQuote(s)
	}
	return s[1 : 1+endQuote], s[1+endQuote+1:], nil
}

// matchingParen returns the index of the ')' matching the '(' at
// tmpl[open], or -1 if unterminated. Affix text may itself contain
// parentheses inside its quotes; those are skipped over rather than
// counted.
func matchingParen(tmpl string, open int) int {
	inQuote := false
	for i := open + 1; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '"':
			inQuote = !inQuote
		case ')':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}
