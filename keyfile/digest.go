package keyfile

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"strings"

	"golang.org/x/crypto/md4"
)

// digestFactories maps a digest name, as named by the external crypto
// helper / OpenSSL, to a constructor. md4 is pulled from
// golang.org/x/crypto because the standard library doesn't carry it,
// and the legacy keyfile format this package decrypts sometimes
// specifies it.
var digestFactories = map[string]func() hash.Hash{
	"md4":    md4.New,
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

func lookupDigest(name string) (func() hash.Hash, bool) {
	f, ok := digestFactories[strings.ToLower(name)]
	return f, ok
}
