package chain

import (
	"context"
	"time"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/hashkey"
	"github.com/guachain/guachain/store"
)

// DomainInfo is the decoded, query-friendly form of a domains-table
// row, returned by GetDomainTransaction/GetDomainInfo.
type DomainInfo struct {
	Identity  []byte
	PubKey    []byte
	Timestamp int64
	Payload   chainmodel.DomainPayload
}

// GetDomainTransaction returns the current transaction for fqdn,
// honoring DOMAIN_LIFETIME expiry: a row older than DOMAIN_LIFETIME is
// treated as absent, matching the original's re-verification-on-read
// behavior.
func (e *Engine) GetDomainTransaction(ctx context.Context, fqdn string) (*DomainInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity := hashkey.Hash([]byte(fqdn))
	row, err := e.store.LastDomainRow(ctx, identity)
	if err != nil || row == nil {
		return nil, err
	}

	if time.Since(time.Unix(row.Timestamp, 0)) > chainmodel.DomainLifetime {
		return nil, nil
	}

	payload, err := chainmodel.DecodeDomainPayload(row.Data)
	if err != nil {
		return nil, err
	}

	return &DomainInfo{
		Identity:  row.Identity,
		PubKey:    row.PubKey,
		Timestamp: row.Timestamp,
		Payload:   payload,
	}, nil
}

// GetDomainInfo is an alias query used by read-only collaborators
// (e.g. the DNS front-end) that do not care about re-verification
// semantics beyond what GetDomainTransaction already applies.
func (e *Engine) GetDomainInfo(ctx context.Context, fqdn string) (*DomainInfo, error) {
	return e.GetDomainTransaction(ctx, fqdn)
}

// MyDomain is one of the caller's owned domains, with its plaintext
// label recovered where possible.
type MyDomain struct {
	Label     string // empty if the label could not be recovered
	Identity  []byte
	Timestamp int64
	Payload   chainmodel.DomainPayload
}

// legacyIVCandidates is how many blocks immediately preceding a
// domain's own block the legacy decrypt fallback tries as IV
// candidates.
const legacyIVCandidates = 10

// GetMyDomains returns every domain row owned by key, attempting to
// recover each one's plaintext label.
//
// Confirmation is wholly a 12-byte IV; the label's ciphertext lives in
// the domain transaction's payload (DomainPayload.Domain), encrypted
// under the owner's key at registration time. If decrypting
// Payload.Domain with IV = Confirmation[:12] yields nothing, the
// legacy fallback retries with IV = hash(block) for each of the ten
// blocks immediately preceding the domain's own block, preserving
// historical encodings from before the current IV convention.
func (e *Engine) GetMyDomains(ctx context.Context, key []byte) ([]MyDomain, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.store.DomainsByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]MyDomain, 0, len(rows))
	for _, row := range rows {
		payload, err := chainmodel.DecodeDomainPayload(row.Data)
		if err != nil {
			continue
		}

		md := MyDomain{
			Identity:  row.Identity,
			Timestamp: row.Timestamp,
			Payload:   payload,
		}

		if e.ks != nil {
			md.Label, err = e.recoverLabel(ctx, row, payload)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, md)
	}

	return out, nil
}

func (e *Engine) recoverLabel(ctx context.Context, row store.ProjectionRow, payload chainmodel.DomainPayload) (string, error) {
	ciphertext := payload.Domain
	if len(ciphertext) == 0 || len(row.Confirmation) < 12 {
		return "", nil
	}

	if plain, err := e.ks.Decrypt(ciphertext, row.Confirmation[:12]); err == nil && len(plain) > 0 {
		return string(plain), nil
	}

	for i := uint64(1); i <= legacyIVCandidates && i < row.ID; i++ {
		b, err := e.store.BlockByID(ctx, row.ID-i)
		if err != nil {
			return "", err
		}
		if b == nil || len(b.Hash) < 12 {
			continue
		}
		if plain, err := e.ks.Decrypt(ciphertext, b.Hash[:12]); err == nil && len(plain) > 0 {
			return string(plain), nil
		}
	}

	return "", nil
}

// ZoneInfo is the decoded, query-friendly form of a zones-table row.
type ZoneInfo struct {
	Identity  []byte
	PubKey    []byte
	Timestamp int64
	Payload   chainmodel.ZonePayload
}

// GetZones returns every zone registered on the chain.
func (e *Engine) GetZones(ctx context.Context) ([]ZoneInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.store.AllZones(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ZoneInfo, 0, len(rows))
	for _, row := range rows {
		payload, err := chainmodel.DecodeZonePayload(row.Data)
		if err != nil {
			continue
		}
		out = append(out, ZoneInfo{
			Identity:  row.Identity,
			PubKey:    row.PubKey,
			Timestamp: row.Timestamp,
			Payload:   payload,
		})
	}

	return out, nil
}

// GetZoneDifficulty returns the declared mining difficulty for zone,
// or ZoneMinDifficulty if the zone is unknown.
func (e *Engine) GetZoneDifficulty(ctx context.Context, zone string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity := hashkey.Hash([]byte(zone))
	row, err := e.store.ZoneRowByIdentity(ctx, identity)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return chainmodel.ZoneMinDifficulty, nil
	}

	payload, err := chainmodel.DecodeZonePayload(row.Data)
	if err != nil {
		return chainmodel.ZoneMinDifficulty, nil
	}

	return payload.Difficulty, nil
}
