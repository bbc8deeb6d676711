package chain

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/hashkey"
)

// IsIdAvailable reports whether identity, matched against kind, is free
// for key to claim at height: true unless a row with id < height has a
// different pub_key. The same key may re-assert or update; a different
// key may not (§4.3).
func (e *Engine) IsIdAvailable(ctx context.Context, height uint64, identity, key []byte, kind chainmodel.TransactionClass) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isIdAvailableLocked(ctx, height, identity, key, kind)
}

func (e *Engine) isIdAvailableLocked(ctx context.Context, height uint64, identity, key []byte, kind chainmodel.TransactionClass) (bool, error) {
	owner, err := e.store.PubkeyOfIdentity(ctx, height, identity, kind)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return true, nil
	}
	return bytes.Equal(owner, key), nil
}

// IsIdInBlockchain reports whether any row with id < height matches
// (identity, kind).
func (e *Engine) IsIdInBlockchain(ctx context.Context, height uint64, identity []byte, kind chainmodel.TransactionClass) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isIdInBlockchainLocked(ctx, height, identity, kind)
}

func (e *Engine) isIdInBlockchainLocked(ctx context.Context, height uint64, identity []byte, kind chainmodel.TransactionClass) (bool, error) {
	owner, err := e.store.PubkeyOfIdentity(ctx, height, identity, kind)
	if err != nil {
		return false, err
	}
	return owner != nil, nil
}

// IsZoneInBlockchain reports membership of zone in the chain, backed by
// the insert-only local set cache zonesSeen.
func (e *Engine) IsZoneInBlockchain(ctx context.Context, height uint64, zone string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isZoneInBlockchainLocked(ctx, height, zone)
}

func (e *Engine) isZoneInBlockchainLocked(ctx context.Context, height uint64, zone string) (bool, error) {
	identity := hashkey.Hash([]byte(zone))

	if _, ok := e.zonesSeen[string(identity)]; ok {
		return true, nil
	}

	present, err := e.isIdInBlockchainLocked(ctx, height, identity, chainmodel.ClassZone)
	if err != nil {
		return false, err
	}
	if present {
		e.zonesSeen[string(identity)] = struct{}{}
	}
	return present, nil
}

// splitDomain enforces the two-label-name rule: a leading label (if
// any) must not itself contain '.', and the trailing label is the
// zone. Returns (label, zone, ok).
func splitDomain(fqdn string) (label, zone string, ok bool) {
	idx := strings.LastIndex(fqdn, ".")
	if idx < 0 {
		return "", fqdn, true // bare zone name with no domain label
	}
	label = fqdn[:idx]
	zone = fqdn[idx+1:]
	if strings.Contains(label, ".") {
		return "", "", false
	}
	return label, zone, true
}

// IsDomainAvailable implements §4.3's three-step domain-availability
// check.
func (e *Engine) IsDomainAvailable(ctx context.Context, height uint64, fqdn string, key []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDomainAvailableLocked(ctx, height, fqdn, key)
}

func (e *Engine) isDomainAvailableLocked(ctx context.Context, height uint64, fqdn string, key []byte) (bool, error) {
	if fqdn == "" {
		return false, nil
	}

	_, zone, ok := splitDomain(fqdn)
	if !ok {
		return false, nil
	}

	identity := hashkey.Hash([]byte(fqdn))
	available, err := e.isIdAvailableLocked(ctx, height, identity, key, chainmodel.ClassDomain)
	if err != nil {
		return false, err
	}
	if !available {
		return false, nil
	}

	return e.isZoneInBlockchainLocked(ctx, height, zone)
}

// CanMineDomain implements §4.3's can_mine_domain outcome classifier.
func (e *Engine) CanMineDomain(ctx context.Context, height uint64, fqdn string, key []byte) (MineResult, time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canMineDomainLocked(ctx, height, fqdn, key)
}

func (e *Engine) canMineDomainLocked(ctx context.Context, height uint64, fqdn string, key []byte) (MineResult, time.Duration, error) {
	if fqdn == "" {
		return WrongName, 0, nil
	}

	_, zone, ok := splitDomain(fqdn)
	if !ok {
		return WrongName, 0, nil
	}

	zonePresent, err := e.isZoneInBlockchainLocked(ctx, height, zone)
	if err != nil {
		return 0, 0, err
	}
	if !zonePresent {
		return WrongZone, 0, nil
	}

	identity := hashkey.Hash([]byte(fqdn))
	owner, err := e.store.PubkeyOfIdentity(ctx, height, identity, chainmodel.ClassDomain)
	if err != nil {
		return 0, 0, err
	}

	if owner != nil && !bytes.Equal(owner, key) {
		return NotOwned, 0, nil
	}

	if owner == nil {
		// A genuinely new identity for this key: enforce the
		// per-key NEW_DOMAINS_INTERVAL cooldown from that key's most
		// recent payload block.
		lastByKey, err := e.store.LastPayloadBlock(ctx, height, key)
		if err != nil {
			return 0, 0, err
		}
		if lastByKey != nil {
			elapsed := time.Duration(e.now().Unix()-lastByKey.Timestamp) * time.Second
			if elapsed < chainmodel.NewDomainsInterval {
				return Cooldown, chainmodel.NewDomainsInterval - elapsed, nil
			}
		}
	}

	return Fine, 0, nil
}
