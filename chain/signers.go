package chain

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/guachain/guachain/chainmodel"
)

// maxSignerSearchFactor bounds how many candidate indices
// GetBlockSigners will probe before giving up short of BLOCK_SIGNERS_ALL
// distinct signers — a safety valve for a very young chain, not part
// of the specification's algorithm itself.
const maxSignerSearchFactor = 1000

// GetBlockSigners returns the ordered vector of elected signer public
// keys for the payload block f, per §4.4's pseudo-random election
// algorithm. The result is memoized in the signer cache, keyed by
// f.Index.
func (e *Engine) GetBlockSigners(ctx context.Context, f *chainmodel.Block) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getBlockSignersLocked(ctx, f)
}

func (e *Engine) getBlockSignersLocked(ctx context.Context, f *chainmodel.Block) ([][]byte, error) {
	if cached, ok := e.signers.Get(f.Index); ok {
		return cached, nil
	}

	if f.Index <= 1 || len(f.Signature) < 8 {
		return nil, nil
	}

	modulus := f.Index - 1
	seed := binary.BigEndian.Uint64(f.Signature[len(f.Signature)-8:])

	signers := make([][]byte, 0, chainmodel.BlockSignersAll)
	seen := make(map[string]struct{})

	maxTries := uint64(chainmodel.BlockSignersAll) * uint64(maxSignerSearchFactor)
	for count := uint64(1); count <= maxTries && len(signers) < chainmodel.BlockSignersAll; count++ {
		idx := (seed*count)%modulus + 1

		block, err := e.store.BlockByID(ctx, idx)
		if err != nil {
			return nil, err
		}
		if block == nil {
			continue
		}
		if bytes.Equal(block.PubKey, f.PubKey) {
			continue
		}
		if _, dup := seen[string(block.PubKey)]; dup {
			continue
		}

		signers = append(signers, block.PubKey)
		seen[string(block.PubKey)] = struct{}{}
	}

	e.signers.Put(f.Index, signers)

	return signers, nil
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}

// isValidSignerForBlock reports whether b is a valid signer for f: a
// signing block, elected for f, whose key has not already signed
// between f and b.
func (e *Engine) isValidSignerForBlock(ctx context.Context, b, f *chainmodel.Block) (bool, error) {
	if b.IsPayload() {
		return false, nil
	}

	signers, err := e.getBlockSignersLocked(ctx, f)
	if err != nil {
		return false, err
	}
	if !containsKey(signers, b.PubKey) {
		return false, nil
	}

	for idx := f.Index + 1; idx < b.Index; idx++ {
		prior, err := e.store.BlockByID(ctx, idx)
		if err != nil {
			return false, err
		}
		if prior != nil && !prior.IsPayload() && bytes.Equal(prior.PubKey, b.PubKey) {
			return false, nil
		}
	}

	return true, nil
}

// signaturesAccumulated counts the distinct elected signers that have
// already signed atop f, among the blocks committed so far.
func (e *Engine) signaturesAccumulated(ctx context.Context, f *chainmodel.Block) (int, error) {
	signers, err := e.getBlockSignersLocked(ctx, f)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	for idx := f.Index + 1; idx <= f.Index+chainmodel.BlockSignersAll; idx++ {
		b, err := e.store.BlockByID(ctx, idx)
		if err != nil {
			return 0, err
		}
		if b == nil || b.IsPayload() {
			continue
		}
		if !containsKey(signers, b.PubKey) {
			continue
		}
		seen[string(b.PubKey)] = struct{}{}
	}

	return len(seen), nil
}

// isGoodSignBlock implements §4.4's is_good_sign_block rules, run when
// b.Index > BLOCK_SIGNERS_START.
func (e *Engine) isGoodSignBlock(ctx context.Context, b *chainmodel.Block) (bool, error) {
	f, err := e.lastFullBlockLocked(ctx)
	if err != nil {
		return false, err
	}
	if f == nil || f.Index <= 1 {
		// No payload block exists yet to elect signers from (GetBlockSigners
		// is itself undefined for f.Index <= 1), so the quota cannot apply.
		return true, nil
	}

	accumulated, err := e.signaturesAccumulated(ctx, f)
	if err != nil {
		return false, err
	}

	if b.IsPayload() {
		return accumulated >= chainmodel.BlockSignersMin, nil
	}

	if accumulated < chainmodel.BlockSignersAll {
		return e.isValidSignerForBlock(ctx, b, f)
	}

	return true, nil
}

// IsWaitingSigners reports whether the last payload block has not yet
// accumulated BLOCK_SIGNERS_MIN signatures — the miner may not start a
// new payload job while this holds.
func (e *Engine) IsWaitingSigners(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.lastFullBlockLocked(ctx)
	if err != nil {
		return false, err
	}
	if f == nil || f.Index <= 1 || f.Index <= chainmodel.BlockSignersStart {
		return false, nil
	}

	accumulated, err := e.signaturesAccumulated(ctx, f)
	if err != nil {
		return false, err
	}

	return accumulated < chainmodel.BlockSignersMin, nil
}

// GetSignBlock returns an unmined signing-block template iff the
// caller is presently eligible to sign, per §4.4, or nil if not.
func (e *Engine) GetSignBlock(ctx context.Context, pubKey []byte) (*chainmodel.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height, err := e.heightLocked(ctx)
	if err != nil {
		return nil, err
	}
	if height < chainmodel.BlockSignersStart {
		return nil, nil
	}
	if height != e.maxHeight {
		return nil, nil
	}

	f, err := e.lastFullBlockLocked(ctx)
	if err != nil || f == nil {
		return nil, err
	}

	accumulated, err := e.signaturesAccumulated(ctx, f)
	if err != nil {
		return nil, err
	}
	if accumulated >= chainmodel.BlockSignersMin {
		return nil, nil
	}

	tip, err := e.lastBlockLocked(ctx)
	if err != nil || tip == nil {
		return nil, err
	}
	if time.Since(time.Unix(tip.Timestamp, 0)) < 60*time.Second {
		return nil, nil
	}

	signers, err := e.getBlockSignersLocked(ctx, f)
	if err != nil {
		return nil, err
	}
	if !containsKey(signers, pubKey) {
		return nil, nil
	}

	for idx := f.Index + 1; idx <= tip.Index; idx++ {
		b, err := e.store.BlockByID(ctx, idx)
		if err != nil {
			return nil, err
		}
		if b != nil && !b.IsPayload() && bytes.Equal(b.PubKey, pubKey) {
			return nil, nil // already signed
		}
	}

	return &chainmodel.Block{
		Index:         tip.Index + 1,
		Version:       chainmodel.ChainVersion,
		Difficulty:    chainmodel.SignerDifficulty,
		PrevBlockHash: tip.Hash,
		PubKey:        pubKey,
	}, nil
}

// UpdateSignBlockForMining refreshes a block template's timestamp and
// chain-position fields from the current tip, called by each miner
// worker before it starts its nonce search.
func (e *Engine) UpdateSignBlockForMining(ctx context.Context, template *chainmodel.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tip, err := e.lastBlockLocked(ctx)
	if err != nil {
		return err
	}
	if tip == nil {
		return nil
	}

	template.Index = tip.Index + 1
	template.PrevBlockHash = tip.Hash
	template.Timestamp = e.now().Unix()

	return nil
}
