package cryptoscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	cases := map[string]Verdict{
		"aes-256-cbc":  Adequate,
		"aes-ecb":      Blacklisted,
		"md4-sha256":   Blacklisted,
		"des":          Blacklisted,
		"des3-cbc":     Blacklisted,
		"rc2-40-cbc":   Blacklisted,
		"rc4":          Blacklisted,
		"md2":          Blacklisted,
		"sha256":       Adequate,
		"aes.256.gcm":  Adequate,
		"serpent:xts":  Adequate,
	}
	for name, want := range cases {
		assert.Equal(t, want, Score(name), "name=%s", name)
	}
}

func TestScoreOrdering(t *testing.T) {
	assert.Less(t, int(Blacklisted), int(Subpar))
	assert.Less(t, int(Subpar), int(Unspec))
	assert.Less(t, int(Unspec), int(Adequate))
}
