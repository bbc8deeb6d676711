package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/eventbus"
	"github.com/guachain/guachain/hashkey"
	sqlstore "github.com/guachain/guachain/store/sql"
	"github.com/guachain/guachain/ulogger"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	ctx := context.Background()
	logger := ulogger.New("test", "debug", false)

	st, err := sqlstore.New(ctx, logger, "sqlite://:memory:")
	require.NoError(t, err)

	e, err := Open(ctx, logger, st, eventbus.New(), nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Close() })

	return e
}

func zonePayloadBlock(t *testing.T, index uint64, name string, difficulty int, yggdrasil bool, pubKey []byte, timestamp int64) *chainmodel.Block {
	t.Helper()

	data, err := chainmodel.EncodeZonePayload(chainmodel.ZonePayload{Name: name, Difficulty: difficulty, Yggdrasil: yggdrasil})
	require.NoError(t, err)

	return &chainmodel.Block{
		Index:         index,
		Timestamp:     timestamp,
		Version:       chainmodel.ChainVersion,
		Difficulty:    chainmodel.ZoneDifficulty,
		PrevBlockHash: []byte{byte(index - 1)},
		Hash:          fakeHash(0xf0, index),
		PubKey:        pubKey,
		Signature:     []byte{byte(index), 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		Transaction: &chainmodel.Transaction{
			Class:    chainmodel.ClassZone,
			Identity: hashkey.Hash([]byte(name)),
			Data:     data,
			PubKey:   pubKey,
		},
	}
}

func domainPayloadBlock(t *testing.T, index uint64, fqdn, zone string, records []chainmodel.Record, pubKey, confirmation []byte, timestamp int64) *chainmodel.Block {
	t.Helper()
	return domainPayloadBlockWithLabel(t, index, fqdn, zone, records, pubKey, confirmation, nil, timestamp)
}

func domainPayloadBlockWithLabel(t *testing.T, index uint64, fqdn, zone string, records []chainmodel.Record, pubKey, confirmation, encryptedLabel []byte, timestamp int64) *chainmodel.Block {
	t.Helper()

	data, err := chainmodel.EncodeDomainPayload(chainmodel.DomainPayload{Zone: zone, Records: records, Domain: encryptedLabel})
	require.NoError(t, err)

	return &chainmodel.Block{
		Index:         index,
		Timestamp:     timestamp,
		Version:       chainmodel.ChainVersion,
		Difficulty:    4,
		PrevBlockHash: []byte{byte(index - 1)},
		Hash:          fakeHash(0xd0, index),
		PubKey:        pubKey,
		Signature:     []byte{byte(index), 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		Transaction: &chainmodel.Transaction{
			Class:        chainmodel.ClassDomain,
			Identity:     hashkey.Hash([]byte(fqdn)),
			Confirmation: confirmation,
			Data:         data,
			PubKey:       pubKey,
		},
	}
}

func signingBlock(index uint64, pubKey, prevHash, signature []byte, timestamp int64) *chainmodel.Block {
	return &chainmodel.Block{
		Index:         index,
		Timestamp:     timestamp,
		Version:       chainmodel.ChainVersion,
		Difficulty:    chainmodel.SignerDifficulty,
		PrevBlockHash: prevHash,
		Hash:          fakeHash(0xaa, index),
		PubKey:        pubKey,
		Signature:     signature,
	}
}

// fakeHash builds a deterministic 32-byte stand-in for a block hash,
// long enough for code paths (like the legacy decrypt IV fallback) that
// slice a block hash's first 12 bytes.
func fakeHash(tag byte, index uint64) []byte {
	h := make([]byte, 32)
	h[0] = tag
	h[1] = byte(index)
	return h
}

func TestIsZoneInBlockchain(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	owner := []byte{0x01, 0x02}
	zone := zonePayloadBlock(t, 1, "ygg", 4, false, owner, 1700000000)

	require.NoError(t, e.AddBlock(ctx, zone))

	present, err := e.IsZoneInBlockchain(ctx, 2, "ygg")
	require.NoError(t, err)
	require.True(t, present)

	absent, err := e.IsZoneInBlockchain(ctx, 2, "other")
	require.NoError(t, err)
	require.False(t, absent)
}

func TestSplitDomain(t *testing.T) {
	label, zone, ok := splitDomain("alice.ygg")
	require.True(t, ok)
	require.Equal(t, "alice", label)
	require.Equal(t, "ygg", zone)

	_, _, ok = splitDomain("a.b.ygg")
	require.False(t, ok)

	label, zone, ok = splitDomain("ygg")
	require.True(t, ok)
	require.Equal(t, "", label)
	require.Equal(t, "ygg", zone)
}

func TestIsDomainAvailableRequiresZone(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	key := []byte{0x01}
	available, err := e.IsDomainAvailable(ctx, 1, "alice.ygg", key)
	require.NoError(t, err)
	require.False(t, available, "zone does not exist yet")

	zone := zonePayloadBlock(t, 1, "ygg", 4, false, key, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	available, err = e.IsDomainAvailable(ctx, 2, "alice.ygg", key)
	require.NoError(t, err)
	require.True(t, available)
}

func TestCanMineDomainCooldown(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	owner := []byte{0x01}
	zone := zonePayloadBlock(t, 1, "ygg", 4, false, owner, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	firstDomain := domainPayloadBlock(t, 2, "alice.ygg", "ygg", nil, owner, nil, 1700000100)
	require.NoError(t, e.AddBlock(ctx, firstDomain))

	// Freeze "now" just after the first registration: a second, distinct
	// identity from the same key must be refused with Cooldown.
	e.now = func() time.Time { return time.Unix(1700000200, 0) }

	result, remaining, err := e.CanMineDomain(ctx, 3, "bob.ygg", owner)
	require.NoError(t, err)
	require.Equal(t, Cooldown, result)
	require.Greater(t, remaining, time.Duration(0))

	// Re-asserting the *same* identity by its owner is never subject to
	// the new-identity cooldown.
	result, _, err = e.CanMineDomain(ctx, 3, "alice.ygg", owner)
	require.NoError(t, err)
	require.Equal(t, Fine, result)

	// Once NEW_DOMAINS_INTERVAL has elapsed, a new identity is fine again.
	e.now = func() time.Time {
		return time.Unix(1700000100, 0).Add(chainmodel.NewDomainsInterval + time.Second)
	}
	result, _, err = e.CanMineDomain(ctx, 3, "bob.ygg", owner)
	require.NoError(t, err)
	require.Equal(t, Fine, result)
}

func TestCanMineDomainNotOwned(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	owner := []byte{0x01}
	other := []byte{0x02}

	zone := zonePayloadBlock(t, 1, "ygg", 4, false, owner, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	domain := domainPayloadBlock(t, 2, "alice.ygg", "ygg", nil, owner, nil, 1700000100)
	require.NoError(t, e.AddBlock(ctx, domain))

	result, _, err := e.CanMineDomain(ctx, 3, "alice.ygg", other)
	require.NoError(t, err)
	require.Equal(t, NotOwned, result)
}

func TestCanMineDomainWrongZoneAndName(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	key := []byte{0x01}

	result, _, err := e.CanMineDomain(ctx, 1, "alice.nosuchzone", key)
	require.NoError(t, err)
	require.Equal(t, WrongZone, result)

	result, _, err = e.CanMineDomain(ctx, 1, "a.b.ygg", key)
	require.NoError(t, err)
	require.Equal(t, WrongName, result)

	result, _, err = e.CanMineDomain(ctx, 1, "", key)
	require.NoError(t, err)
	require.Equal(t, WrongName, result)
}

func TestReplaceBlockClearsSignerCacheAndTruncates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	key := []byte{0x01}
	zone := zonePayloadBlock(t, 1, "ygg", 4, false, key, 1700000000)
	require.NoError(t, e.AddBlock(ctx, zone))

	domain := domainPayloadBlock(t, 2, "alice.ygg", "ygg", nil, key, nil, 1700000100)
	require.NoError(t, e.AddBlock(ctx, domain))

	height, err := e.Height(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), height)

	e.signers.Put(2, [][]byte{{0x09}})

	replacement := domainPayloadBlock(t, 2, "bob.ygg", "ygg", nil, key, nil, 1700000200)
	require.NoError(t, e.ReplaceBlock(ctx, replacement))

	_, cached := e.signers.Get(2)
	require.False(t, cached, "replace_block must clear the signer cache")

	last, err := e.LastBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, replacement.Hash, last.Hash)

	avail, err := e.IsDomainAvailable(ctx, 3, "alice.ygg", key)
	require.NoError(t, err)
	require.True(t, avail, "truncated identity should be available again")
}
