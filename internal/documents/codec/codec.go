// Package codec encrypts stored documents with AES-256-CBC and PKCS#7
// padding. The nonce is the CBC initialisation vector.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	dErrors "certify/pkg/domain-errors"
)

const (
	KeySize   = 32
	NonceSize = aes.BlockSize
)

// hkdfInfo separates document keys from any other key derived from the
// same secret.
const hkdfInfo = "certify document key v1"

type AES struct{}

func New() AES { return AES{} }

func (AES) Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	block, err := newBlock(key, nonce)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, nonce).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt fails with a decode error on truncated input or bad padding,
// which is also what a wrong key usually produces.
func (AES) Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := newBlock(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, dErrors.New(dErrors.CodeDecodeFailed, "ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, nonce).CryptBlocks(out, ciphertext)
	return unpad(out)
}

func newBlock(key, nonce []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, dErrors.Newf(dErrors.CodeValidation, "key must be %d bytes", KeySize)
	}
	if len(nonce) != NonceSize {
		return nil, dErrors.Newf(dErrors.CodeValidation, "nonce must be %d bytes", NonceSize)
	}
	return aes.NewCipher(key)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, dErrors.New(dErrors.CodeDecodeFailed, "invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, dErrors.New(dErrors.CodeDecodeFailed, "invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

// DeriveKey turns the configured secret into a 32-byte key. A 64-character
// hex string is used verbatim; anything else goes through HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document key must not be empty")
	}
	if len(secret) == 2*KeySize {
		if raw, err := hex.DecodeString(secret); err == nil {
			return raw, nil
		}
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}
