package keystore

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestGenerateAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	ks, err := Generate(path)
	require.NoError(t, err)
	require.Len(t, ks.GetPublic(), ed25519.PublicKeySize)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ks.GetPublic(), reloaded.GetPublic())
}

func TestLoadRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.key"))
	require.Error(t, err)
}

func TestSignVerifiesUnderPublicKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	ks, err := Generate(path)
	require.NoError(t, err)

	msg := []byte("hello guachain")
	sig := ks.Sign(msg)

	require.True(t, ed25519.Verify(ed25519.PublicKey(ks.GetPublic()), msg, sig))
}

func TestDecryptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	ks, err := Generate(path)
	require.NoError(t, err)

	fk := ks.(*fileKeystore)
	aead, err := chacha20poly1305.New(fk.symKey)
	require.NoError(t, err)

	iv := []byte("abcdefghijkl")
	ciphertext := aead.Seal(nil, iv, []byte("plaintext"), nil)

	plain, err := ks.Decrypt(ciphertext, iv)
	require.NoError(t, err)
	require.Equal(t, "plaintext", string(plain))
}

func TestDecryptWrongIVYieldsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	ks, err := Generate(path)
	require.NoError(t, err)

	fk := ks.(*fileKeystore)
	aead, err := chacha20poly1305.New(fk.symKey)
	require.NoError(t, err)

	iv := []byte("abcdefghijkl")
	ciphertext := aead.Seal(nil, iv, []byte("plaintext"), nil)

	wrongIV := []byte("zzzzzzzzzzzz")
	plain, err := ks.Decrypt(ciphertext, wrongIV)
	require.NoError(t, err)
	require.Nil(t, plain)
}

func TestDecryptRejectsWrongIVLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	ks, err := Generate(path)
	require.NoError(t, err)

	_, err = ks.Decrypt([]byte("ciphertext"), []byte("short"))
	require.Error(t, err)
}
