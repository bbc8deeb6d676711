package hashkey

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeadingZeroBits(t *testing.T) {
	require.Equal(t, 16, LeadingZeroBits([]byte{0x00, 0x00, 0xff}))
	require.Equal(t, 0, LeadingZeroBits([]byte{0xff}))
	require.Equal(t, 9, LeadingZeroBits([]byte{0x00, 0x7f}))
	require.Equal(t, 256, LeadingZeroBits(make([]byte, 32)))
}

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("a block's serialized bytes")
	sig := ed25519.Sign(priv, msg)

	require.True(t, Verify(pub, sig, msg))
	require.False(t, Verify(pub, sig, []byte("tampered")))
	require.False(t, Verify(pub, make([]byte, ed25519.SignatureSize), msg))
}

func TestIsYggdrasilAddr(t *testing.T) {
	require.True(t, IsYggdrasilAddr("200:1234::1"))
	require.False(t, IsYggdrasilAddr("2001:db8::1"))
	require.False(t, IsYggdrasilAddr("192.168.1.1"))
	require.False(t, IsYggdrasilAddr("not-an-ip"))
}
