package chain

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guachain/guachain/chainmodel"
)

// seedBlocksForSigners inserts n signing blocks at indices 1..n, each
// with a distinct single-byte public key, as candidate electable
// signers for a later payload block.
func seedBlocksForSigners(t *testing.T, e *Engine, n int) {
	t.Helper()
	ctx := context.Background()

	var prevHash []byte
	for i := 1; i <= n; i++ {
		b := signingBlock(uint64(i), []byte{byte(i)}, prevHash, []byte{byte(i), 1, 2, 3, 4, 5, 6, 7}, 1700000000+int64(i))
		require.NoError(t, e.AddBlock(ctx, b))
		prevHash = b.Hash
	}
}

func signatureWithSeed(seed uint64) []byte {
	sig := make([]byte, 16)
	binary.BigEndian.PutUint64(sig[8:], seed)
	return sig
}

func TestGetBlockSignersIsDeterministicAndCached(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedBlocksForSigners(t, e, 4)

	f := &chainmodel.Block{
		Index:     5,
		PubKey:    []byte{0xff},
		Signature: signatureWithSeed(12345),
	}

	first, err := e.GetBlockSigners(ctx, f)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := e.GetBlockSigners(ctx, f)
	require.NoError(t, err)
	require.Equal(t, first, second, "memoized result must be identical across calls")

	// With only 4 candidate blocks and none equal to f's own key, the
	// search must converge on all 4 distinct signers.
	require.Len(t, first, 4)
}

func TestGetBlockSignersExcludesSelf(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedBlocksForSigners(t, e, 4)

	f := &chainmodel.Block{
		Index:     5,
		PubKey:    []byte{2}, // matches the signer seeded at index 2
		Signature: signatureWithSeed(999),
	}

	signers, err := e.GetBlockSigners(ctx, f)
	require.NoError(t, err)
	require.False(t, containsKey(signers, []byte{2}), "a block never signs for itself")
}

func TestGetBlockSignersUndefinedBeforeIndexTwo(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	for _, index := range []uint64{0, 1} {
		f := &chainmodel.Block{Index: index, Signature: signatureWithSeed(1)}
		signers, err := e.GetBlockSigners(ctx, f)
		require.NoError(t, err)
		require.Nil(t, signers)
	}
}

func TestIsGoodSignBlockExemptsGenesis(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	key := []byte{0x01}
	zone := zonePayloadBlock(t, 1, "ygg", 4, false, key, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	// The first block after genesis cannot possibly have an elected
	// signer set (GetBlockSigners is undefined for F.Index <= 1), so it
	// must be exempted from the signer quota rather than permanently
	// rejected.
	signing := signingBlock(2, []byte{0x02}, zone.Hash, signatureWithSeed(1), 1700000100)
	good, err := e.isGoodSignBlock(ctx, signing)
	require.NoError(t, err)
	require.True(t, good)
}

func TestIsWaitingSignersFalseBeforeSecondPayloadBlock(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	key := []byte{0x01}
	zone := zonePayloadBlock(t, 1, "ygg", 4, false, key, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	waiting, err := e.IsWaitingSigners(ctx)
	require.NoError(t, err)
	require.False(t, waiting)
}
