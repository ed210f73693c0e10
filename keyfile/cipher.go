package keyfile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"strings"
)

// cipherSpec describes the key/IV/block sizes an OpenSSL-style cipher
// name implies, and how to build a cipher.Block from a derived key.
type cipherSpec struct {
	keyLen int
	ivLen  int
	newBlk func(key []byte) (cipher.Block, error)
}

var cipherSpecs = map[string]cipherSpec{
	"aes-128-cbc": {16, 16, aes.NewCipher},
	"aes-192-cbc": {24, 16, aes.NewCipher},
	"aes-256-cbc": {32, 16, aes.NewCipher},
	"des-cbc":     {8, 8, des.NewCipher},
	"des3-cbc":    {24, 8, des.NewTripleDESCipher},
	"des-ede3-cbc": {24, 8, des.NewTripleDESCipher},
}

func lookupCipher(name string) (cipherSpec, bool) {
	spec, ok := cipherSpecs[strings.ToLower(name)]
	return spec, ok
}
