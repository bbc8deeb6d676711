// Package hashkey implements C1: block hashing, identity hashing, the
// public-key strength check, signature verification, and the
// Yggdrasil-range predicate that C3/C5 consult.
package hashkey

import (
	"crypto/ed25519"
	"net"

	"golang.org/x/crypto/blake2b"
)

// Hash computes guachain's canonical content hash over b: BLAKE2b-256,
// the same hash family the original implementation's "blakeout" hasher
// belongs to.
func Hash(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}

// LeadingZeroBits counts the number of leading zero bits in h, treating
// h as a big-endian bit string. This is the PoW difficulty measure used
// throughout §4 of the specification.
func LeadingZeroBits(h []byte) int {
	count := 0
	for _, b := range h {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// PubKeyStrong reports whether pubKey's hash has at least the required
// number of leading zero bits (KEYSTORE_DIFFICULTY).
func PubKeyStrong(pubKey []byte, required int) bool {
	return LeadingZeroBits(Hash(pubKey)) >= required
}

// Verify checks an ed25519 signature over msg under pubKey.
func Verify(pubKey, signature, msg []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, signature)
}

// yggdrasilNet is the Yggdrasil network's routed IPv6 range, 0200::/7.
var _, yggdrasilNet, _ = net.ParseCIDR("0200::/7")

// IsYggdrasilAddr reports whether addr falls inside the Yggdrasil
// overlay network's address range.
func IsYggdrasilAddr(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return yggdrasilNet.Contains(ip)
}
