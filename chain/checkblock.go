package chain

import (
	"bytes"
	"context"
	"math"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/hashkey"
)

// requiredDifficulty implements §4.5.
func (e *Engine) requiredDifficulty(ctx context.Context, b *chainmodel.Block) (int, error) {
	if !b.IsPayload() {
		return chainmodel.SignerDifficulty, nil
	}
	if b.Index == 1 {
		return chainmodel.ZoneDifficulty, nil
	}
	if b.Transaction.Class == chainmodel.ClassZone {
		return chainmodel.ZoneDifficulty, nil
	}

	domain, err := chainmodel.DecodeDomainPayload(b.Transaction.Data)
	if err != nil {
		return math.MaxInt32, nil
	}

	zoneIdentity := hashkey.Hash([]byte(domain.Zone))
	row, err := e.store.ZoneRowByIdentity(ctx, zoneIdentity)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return math.MaxInt32, nil
	}

	zonePayload, err := chainmodel.DecodeZonePayload(row.Data)
	if err != nil {
		return math.MaxInt32, nil
	}

	return zonePayload.Difficulty, nil
}

// CheckNewBlock runs §4.6's check_block gate sequence against b in the
// context of the current tip.
func (e *Engine) CheckNewBlock(ctx context.Context, b *chainmodel.Block, now int64) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkBlockLocked(ctx, b, now)
}

func (e *Engine) checkBlockLocked(ctx context.Context, b *chainmodel.Block, now int64) (Verdict, error) {
	// 1. version
	if b.Version > chainmodel.ChainVersion {
		return Bad, nil
	}

	// 2. timestamp not too far in the future
	if b.Timestamp > now+60 {
		return Bad, nil
	}

	last, err := e.lastBlockLocked(ctx)
	if err != nil {
		return Bad, err
	}

	// 3. future gate (relative to known tip)
	if last != nil && b.Index > last.Index+1 {
		return Future, nil
	}

	// 4. key strength
	if !hashkey.PubKeyStrong(b.PubKey, chainmodel.KeystoreDifficulty) {
		return Bad, nil
	}

	// 5. required difficulty
	required, err := e.requiredDifficulty(ctx, b)
	if err != nil {
		return Bad, err
	}
	if b.Difficulty < required {
		return Bad, nil
	}

	// 6. leading zero bits of hash
	if hashkey.LeadingZeroBits(b.Hash) < b.Difficulty {
		return Bad, nil
	}

	// 7. hash correctness
	if !bytes.Equal(hashkey.Hash(chainmodel.SerializeForHash(b)), b.Hash) {
		return Bad, nil
	}

	// 8. signature correctness
	if !hashkey.Verify(b.PubKey, b.Signature, chainmodel.SerializeForHash(b)) {
		return Bad, nil
	}

	// 9. rewind: a block already committed at b.Index-1 with a
	// different hash than b.PrevBlockHash
	if b.Index > 1 {
		prior, err := e.store.BlockByID(ctx, b.Index-1)
		if err != nil {
			return Bad, err
		}
		if prior != nil && !bytes.Equal(prior.Hash, b.PrevBlockHash) {
			return Rewind, nil
		}
	}

	// 10. payload-specific checks
	if b.IsPayload() {
		verdict, err := e.checkPayloadLocked(ctx, b)
		if err != nil || verdict != Good {
			return verdict, err
		}
	}

	// 11. empty-chain case
	if last == nil {
		if b.Index != 1 {
			return Future, nil
		}
		if len(e.origin) > 0 && !bytes.Equal(b.Hash, e.origin) {
			return Bad, nil
		}
		return Good, nil
	}

	// 12. non-empty-chain case
	if b.Timestamp < last.Timestamp && b.Index > last.Index {
		return Bad, nil
	}
	if last.Index+1 < b.Index {
		return Future, nil
	}
	if b.Index > chainmodel.BlockSignersStart {
		good, err := e.isGoodSignBlock(ctx, b)
		if err != nil {
			return Bad, err
		}
		if !good {
			return Bad, nil
		}
	}
	if b.Index == last.Index {
		if bytes.Equal(b.Hash, last.Hash) {
			return Twin, nil
		}
		return Fork, nil
	}
	if b.Index == last.Index+1 && !bytes.Equal(b.PrevBlockHash, last.Hash) {
		return Bad, nil
	}

	return Good, nil
}

// checkPayloadLocked implements gate 10: identity availability,
// cooldown, and Yggdrasil-only enforcement for a payload block.
func (e *Engine) checkPayloadLocked(ctx context.Context, b *chainmodel.Block) (Verdict, error) {
	tx := b.Transaction

	switch tx.Class {
	case chainmodel.ClassZone:
		zone, err := chainmodel.DecodeZonePayload(tx.Data)
		if err != nil {
			return Bad, nil
		}
		if err := chainmodel.ValidateZonePayload(zone); err != nil {
			return Bad, nil
		}

		domainAvail, err := e.isIdAvailableLocked(ctx, b.Index, tx.Identity, b.PubKey, chainmodel.ClassDomain)
		if err != nil {
			return Bad, err
		}
		zoneAvail, err := e.isIdAvailableLocked(ctx, b.Index, tx.Identity, b.PubKey, chainmodel.ClassZone)
		if err != nil {
			return Bad, err
		}
		if !domainAvail || !zoneAvail {
			return Bad, nil
		}

		return e.checkCooldownLocked(ctx, b)

	case chainmodel.ClassDomain:
		domain, err := chainmodel.DecodeDomainPayload(tx.Data)
		if err != nil {
			return Bad, nil
		}

		domainAvail, err := e.isIdAvailableLocked(ctx, b.Index, tx.Identity, b.PubKey, chainmodel.ClassDomain)
		if err != nil {
			return Bad, err
		}
		zoneAvail, err := e.isIdAvailableLocked(ctx, b.Index, tx.Identity, b.PubKey, chainmodel.ClassZone)
		if err != nil {
			return Bad, err
		}
		if !domainAvail || !zoneAvail {
			return Bad, nil
		}

		zoneIdentity := hashkey.Hash([]byte(domain.Zone))
		zoneRow, err := e.store.ZoneRowByIdentity(ctx, zoneIdentity)
		if err != nil {
			return Bad, err
		}
		if zoneRow == nil {
			return Bad, nil
		}
		zonePayload, err := chainmodel.DecodeZonePayload(zoneRow.Data)
		if err != nil {
			return Bad, nil
		}
		if zonePayload.Yggdrasil {
			for _, rec := range domain.Records {
				if !hashkey.IsYggdrasilAddr(rec.Value) {
					return Bad, nil
				}
			}
		}

		return e.checkCooldownLocked(ctx, b)

	default:
		return Bad, nil
	}
}

// checkCooldownLocked enforces invariant 8: an owner may introduce a
// new identity at most once per NEW_DOMAINS_INTERVAL.
func (e *Engine) checkCooldownLocked(ctx context.Context, b *chainmodel.Block) (Verdict, error) {
	tx := b.Transaction

	alreadyPresent, err := e.isIdInBlockchainLocked(ctx, b.Index, tx.Identity, tx.Class)
	if err != nil {
		return Bad, err
	}
	if alreadyPresent {
		return Good, nil // re-assertion/update by the same key, already confirmed available above
	}

	lastByKey, err := e.store.LastPayloadBlock(ctx, b.Index, b.PubKey)
	if err != nil {
		return Bad, err
	}
	if lastByKey != nil {
		elapsed := b.Timestamp - lastByKey.Timestamp
		if elapsed < int64(chainmodel.NewDomainsInterval.Seconds()) {
			return Bad, nil
		}
	}

	return Good, nil
}
