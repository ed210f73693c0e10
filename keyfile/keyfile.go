// Package keyfile implements the keyfile decryptor (spec §4.2): it
// loads a salted OpenSSL-style enveloped keyfile, derives a key and IV
// from a passphrase via the legacy EVP_BytesToKey construction, and
// returns the plaintext filesystem key.
package keyfile

import (
	"bytes"
	"crypto/cipher"
	"hash"
	"os"

	"github.com/pam-mount/volmount/coreerr"
)

const (
	magic        = "Salted__"
	saltLen      = 8
	headerLen    = len(magic) + saltLen
	maxKeyfileLen = 1 << 20 // 1MiB; generous bound per spec §9's fixed-buffer concern
)

// Decrypt reads the keyfile at path, verifies the "Salted__" envelope,
// derives key+IV from passphrase and the embedded salt using
// EVP_BytesToKey with iteration count 1, and returns the decrypted
// plaintext filesystem key.
//
// The caller must zero the returned buffer after use.
func Decrypt(path, digestName, cipherName string, passphrase []byte) ([]byte, error) {
	digestFn, ok := lookupDigest(digestName)
	if !ok {
		return nil, coreerr.New(coreerr.KeyDigestUnknown, "unknown digest: "+digestName)
	}

	spec, ok := lookupCipher(cipherName)
	if !ok {
		return nil, coreerr.New(coreerr.KeyCipherUnknown, "unknown cipher: "+cipherName)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KeyIO, "reading keyfile "+path, err)
	}
	if len(raw) < headerLen {
		return nil, coreerr.New(coreerr.KeyIO, "keyfile shorter than the salted header")
	}
	if len(raw) > maxKeyfileLen {
		return nil, coreerr.New(coreerr.KeyIO, "keyfile exceeds maximum supported size")
	}
	if string(raw[:len(magic)]) != magic {
		return nil, coreerr.New(coreerr.KeyIO, "keyfile missing Salted__ magic")
	}

	salt := raw[len(magic):headerLen]
	ciphertext := raw[headerLen:]

	if len(ciphertext) == 0 || len(ciphertext)%spec.ivLen != 0 {
		return nil, coreerr.New(coreerr.KeyIO, "ciphertext is not a whole number of blocks")
	}

	key, iv := bytesToKey(digestFn, passphrase, salt, spec.keyLen, spec.ivLen)
	defer zero(key)
	defer zero(iv)

	block, err := spec.newBlk(key)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KeyDecrypt, "constructing cipher block", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPKCS7(plaintext, block.BlockSize())
	if err != nil {
		zero(plaintext)
		return nil, coreerr.Wrap(coreerr.KeyDecrypt, "removing padding", err)
	}

	return plaintext, nil
}

// bytesToKey implements the legacy OpenSSL EVP_BytesToKey construction
// with iteration count 1 (spec §4.2): D_0 = "", D_i =
// digest(D_(i-1) || password || salt), concatenated until there are
// enough bytes for key+IV.
func bytesToKey(digestFn func() hash.Hash, password, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var concat, prev []byte
	for len(concat) < keyLen+ivLen {
		h := digestFn()
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		prev = h.Sum(nil)
		concat = append(concat, prev...)
	}
	return concat[:keyLen], concat[keyLen : keyLen+ivLen]
}

func stripPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, coreerr.New(coreerr.KeyDecrypt, "invalid padded length")
	}
	pad := int(data[len(data)-1])
	if pad <= 0 || pad > blockSize || pad > len(data) {
		return nil, coreerr.New(coreerr.KeyDecrypt, "invalid padding")
	}
	if !bytes.Equal(data[len(data)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, coreerr.New(coreerr.KeyDecrypt, "invalid padding bytes")
	}
	return data[:len(data)-pad], nil
}

// zero overwrites b so key/IV material doesn't linger in memory.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
