// Package seal encrypts push payloads with AES-256-CBC under a key derived
// from the worker's pre-shared secret.
//
// Key: first 32 bytes of SHA-512(secret).
// IV:  first 16 bytes of SHA-512(16 random bytes), fresh for every payload.
// Ciphertext is PKCS#7 padded and hex encoded; the IV travels base64 encoded.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

// CryptoError is returned for every failure inside this package.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return "crypto: " + e.Op + ": " + e.Err.Error() }

func (e *CryptoError) Unwrap() error { return e.Err }

func cryptoErr(op string, err error) error { return &CryptoError{Op: op, Err: err} }

var (
	errBadPadding = errors.New("invalid padding")
	errBadLength  = errors.New("ciphertext is not a positive multiple of the block size")
	errNotText    = errors.New("plaintext is not valid utf-8")
)

// DeriveKey turns the pre-shared secret into an AES-256 key.
func DeriveKey(secret string) [KeySize]byte {
	sum := sha512.Sum512([]byte(secret))
	var key [KeySize]byte
	copy(key[:], sum[:KeySize])
	return key
}

// GenerateIV draws a fresh IV from crypto/rand.
func GenerateIV() ([IVSize]byte, error) {
	return GenerateIVFrom(rand.Reader)
}

// GenerateIVFrom reads 16 bytes from r and whitens them through SHA-512.
// The hash step adds nothing over the raw random bytes; collectors expect
// it, so it stays.
func GenerateIVFrom(r io.Reader) ([IVSize]byte, error) {
	var iv [IVSize]byte
	var raw [IVSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return iv, cryptoErr("generate iv", err)
	}
	sum := sha512.Sum512(raw[:])
	copy(iv[:], sum[:IVSize])
	return iv, nil
}

// StaticIV derives an IV from a string. Every message sealed with the same
// seed shares the IV, which leaks equal prefixes between messages.
//
// Deprecated: legacy scheme, only kept to open old payloads. The push
// pipeline always uses GenerateIV.
func StaticIV(seed string) [IVSize]byte {
	sum := sha512.Sum512([]byte(seed))
	var iv [IVSize]byte
	copy(iv[:], sum[:IVSize])
	return iv
}

// EncodeIV returns the standard base64 form sent next to the ciphertext.
func EncodeIV(iv [IVSize]byte) string {
	return base64.StdEncoding.EncodeToString(iv[:])
}

func DecodeIV(s string) ([IVSize]byte, error) {
	var iv [IVSize]byte
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return iv, cryptoErr("decode iv", err)
	}
	if len(b) != IVSize {
		return iv, cryptoErr("decode iv", fmt.Errorf("got %d bytes, want %d", len(b), IVSize))
	}
	copy(iv[:], b)
	return iv, nil
}

// Encrypt seals plaintext and returns lowercase hex.
func Encrypt(plaintext []byte, key [KeySize]byte, iv [IVSize]byte) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", cryptoErr("new cipher", err)
	}
	buf := pad(plaintext, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(buf, buf)
	return hex.EncodeToString(buf), nil
}

// Decrypt is the inverse of Encrypt.
func Decrypt(ciphertextHex string, key [KeySize]byte, iv [IVSize]byte) (string, error) {
	buf, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", cryptoErr("decode hex", err)
	}
	if len(buf) == 0 || len(buf)%aes.BlockSize != 0 {
		return "", cryptoErr("decrypt", errBadLength)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", cryptoErr("new cipher", err)
	}
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(buf, buf)

	out, err := unpad(buf, aes.BlockSize)
	if err != nil {
		return "", cryptoErr("decrypt", err)
	}
	if !utf8.Valid(out) {
		return "", cryptoErr("decrypt", errNotText)
	}
	return string(out), nil
}

// pad always appends 1..size bytes, so a full block of padding follows
// block-aligned input.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, errBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errBadPadding
		}
	}
	return b[:len(b)-n], nil
}
