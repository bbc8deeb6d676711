package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guachain/guachain/chainmodel"
)

func TestMineJobDue(t *testing.T) {
	now := time.Unix(1700000000, 0)

	zero := &MineJob{}
	require.True(t, zero.due(now), "zero StartTime is always due")

	past := &MineJob{StartTime: now.Add(-time.Second)}
	require.True(t, past.due(now))

	future := &MineJob{StartTime: now.Add(time.Second)}
	require.False(t, future.due(now))

	exact := &MineJob{StartTime: now}
	require.True(t, exact.due(now), "a job due exactly now is due")
}

func TestCloneBlockDeepCopiesSliceFields(t *testing.T) {
	original := &chainmodel.Block{
		Index:         1,
		PrevBlockHash: []byte{1, 2, 3},
		PubKey:        []byte{4, 5, 6},
		Transaction: &chainmodel.Transaction{
			Class:    chainmodel.ClassZone,
			Identity: []byte{7, 8, 9},
		},
	}

	clone := cloneBlock(original)

	require.Equal(t, original.PrevBlockHash, clone.PrevBlockHash)
	require.Equal(t, original.PubKey, clone.PubKey)
	require.NotSame(t, original.Transaction, clone.Transaction)

	clone.PrevBlockHash[0] = 0xff
	clone.PubKey[0] = 0xff
	clone.Transaction.Class = chainmodel.ClassDomain

	require.Equal(t, byte(1), original.PrevBlockHash[0], "clone must not alias the original's backing array")
	require.Equal(t, byte(4), original.PubKey[0])
	require.Equal(t, chainmodel.ClassZone, original.Transaction.Class)
}

func TestCloneBlockHandlesNilTransaction(t *testing.T) {
	original := &chainmodel.Block{Index: 1}
	clone := cloneBlock(original)
	require.Nil(t, clone.Transaction)
}
