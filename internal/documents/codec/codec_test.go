package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certify/pkg/domain-errors"
)

var (
	testKey   = bytes.Repeat([]byte{0x42}, KeySize)
	testNonce = bytes.Repeat([]byte{0x07}, NonceSize)
)

func TestRoundTrip(t *testing.T) {
	c := New()
	for _, plain := range [][]byte{
		{},
		[]byte("a"),
		[]byte("exactly sixteen!"),
		bytes.Repeat([]byte("metadata "), 100),
	} {
		ct, err := c.Encrypt(plain, testKey, testNonce)
		require.NoError(t, err)
		assert.Zero(t, len(ct)%NonceSize)
		assert.Greater(t, len(ct), len(plain))

		got, err := c.Decrypt(ct, testKey, testNonce)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

// Matches the OpenSSL/CryptoJS output for AES-256-CBC with PKCS#7.
func TestKnownVector(t *testing.T) {
	key, _ := hex.DecodeString("603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plain, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172a")

	ct, err := New().Encrypt(plain, key, iv)
	require.NoError(t, err)
	assert.Equal(t, "f58c4c04d6e5f1ba779eabfb5f7bfbd6", hex.EncodeToString(ct[:16]))
	assert.Len(t, ct, 32)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c := New()
	_, err := c.Decrypt([]byte("short"), testKey, testNonce)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecodeFailed))

	// a block that decrypts to all zeros has no valid padding byte
	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	zeros := make([]byte, NonceSize)
	cipher.NewCBCEncrypter(block, testNonce).CryptBlocks(zeros, zeros)
	_, err = c.Decrypt(zeros, testKey, testNonce)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecodeFailed))
}

func TestKeyAndNonceSizes(t *testing.T) {
	_, err := New().Encrypt([]byte("x"), testKey[:16], testNonce)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = New().Encrypt([]byte("x"), testKey, testNonce[:8])
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDeriveKey(t *testing.T) {
	hexKey := hex.EncodeToString(testKey)
	k, err := DeriveKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	a, err := DeriveKey("passphrase")
	require.NoError(t, err)
	b, err := DeriveKey("passphrase")
	require.NoError(t, err)
	assert.Len(t, a, KeySize)
	assert.Equal(t, a, b)

	_, err = DeriveKey("  ")
	assert.Error(t, err)
}
