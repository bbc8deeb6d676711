// Package keystore implements the Keystore collaborator interface
// consumed by the chain engine and miner: GetPublic, Sign, Decrypt.
//
// Grounded on the original implementation's Keystore::from_file usage
// and the specification's 12-byte-IV decrypt convention.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/guachain/guachain/errors"
)

// Keystore signs blocks and decrypts legacy ciphertext on behalf of a
// single node identity.
type Keystore interface {
	GetPublic() []byte
	Sign(msg []byte) []byte
	Decrypt(ciphertext, iv12 []byte) ([]byte, error)
}

// fileKeystore is a file-backed ed25519 identity plus a derived
// ChaCha20-Poly1305 symmetric key for the legacy decrypt path.
type fileKeystore struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	symKey  []byte
}

// Generate creates a fresh random identity and persists it to filename.
func Generate(filename string) (Keystore, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "cannot generate key", err)
	}

	ks := &fileKeystore{priv: priv, pub: pub, symKey: deriveSymKey(priv)}

	if err := os.WriteFile(filename, priv, 0600); err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "cannot write key file %s", filename, err)
	}

	return ks, nil
}

// Load reads an ed25519 private key from filename.
func Load(filename string) (Keystore, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.New(errors.ErrNotFound, "cannot read key file %s", filename, err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, errors.New(errors.ErrInvalidArgument, "key file %s has wrong size", filename)
	}

	priv := ed25519.PrivateKey(data)
	pub := priv.Public().(ed25519.PublicKey)

	return &fileKeystore{priv: priv, pub: pub, symKey: deriveSymKey(priv)}, nil
}

func deriveSymKey(priv ed25519.PrivateKey) []byte {
	// The symmetric decrypt key is derived from the signing seed; it
	// never leaves the node and is only used against this node's own
	// historical ciphertext (get_my_domains' legacy fallback).
	seed := priv.Seed()
	key := make([]byte, chacha20poly1305.KeySize)
	copy(key, seed)
	return key
}

func (k *fileKeystore) GetPublic() []byte {
	return []byte(k.pub)
}

func (k *fileKeystore) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Decrypt opens ciphertext with iv12 as the 12-byte nonce, the same
// convention the original implementation uses for confirmation[0:12].
func (k *fileKeystore) Decrypt(ciphertext, iv12 []byte) ([]byte, error) {
	if len(iv12) != chacha20poly1305.NonceSize {
		return nil, errors.New(errors.ErrInvalidArgument, "iv must be %d bytes", chacha20poly1305.NonceSize)
	}

	aead, err := chacha20poly1305.New(k.symKey)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "cannot build cipher", err)
	}

	plain, err := aead.Open(nil, iv12, ciphertext, nil)
	if err != nil {
		// A failed open is treated as an empty result: the legacy
		// fallback loop in chain.Engine.GetMyDomains tries the next
		// candidate IV rather than treating this as fatal.
		return nil, nil
	}

	return plain, nil
}
