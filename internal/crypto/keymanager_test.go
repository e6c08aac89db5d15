package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptSigningKey(t *testing.T) {
	blob, err := EncryptSigningKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptSigningKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptSigningKeyWrongPassword(t *testing.T) {
	blob, err := EncryptSigningKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptSigningKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptSigningKeyValidation(t *testing.T) {
	_, err := EncryptSigningKey(testKeyHex, "")
	assert.Error(t, err)

	_, err = EncryptSigningKey("zz-not-hex", "pw")
	assert.Error(t, err)

	_, err = EncryptSigningKey("abcd", "pw") // too short
	assert.Error(t, err)
}

func TestLoadSigningKey(t *testing.T) {
	t.Run("raw key wins", func(t *testing.T) {
		got, err := LoadSigningKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
		require.NoError(t, err)
		assert.Equal(t, testKeyHex, got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptSigningKey(testKeyHex, "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "attestor.key.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadSigningKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		require.NoError(t, err)
		assert.Equal(t, testKeyHex, got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSigningKey(KeyConfig{})
		assert.Error(t, err)
	})
}
