package cipher

import (
	"testing"

	"github.com/mmp/but/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("hunter2")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	got, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := DeriveKey("hunter2")
	wrong := DeriveKey("wrong-password")
	ciphertext, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(wrong, ciphertext)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuthFailure))
}

func TestDecryptTruncatedPayloadIsCorrupt(t *testing.T) {
	key := DeriveKey("hunter2")
	_, err := Decrypt(key, []byte("short"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCorruptBlob))
}

func TestEncryptEmptyData(t *testing.T) {
	key := DeriveKey("hunter2")
	ciphertext, err := Encrypt(key, nil)
	require.NoError(t, err)
	got, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNoncesAreUnique(t *testing.T) {
	key := DeriveKey("hunter2")
	a, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	b, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
}

func TestSingleBitFlipCausesAuthFailure(t *testing.T) {
	key := DeriveKey("hunter2")
	ciphertext, err := Encrypt(key, []byte("integrity matters"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0x01

	_, err = Decrypt(key, ciphertext)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuthFailure))
}
