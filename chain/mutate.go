package chain

import (
	"context"
	"time"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/eventbus"
)

// AddBlock assumes CheckNewBlock(b) = Good. It appends b (with its
// projection row, in one transaction), refreshes the tip hints, and
// publishes BlockchainChanged.
func (e *Engine) AddBlock(ctx context.Context, b *chainmodel.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addBlockLocked(ctx, b)
}

func (e *Engine) addBlockLocked(ctx context.Context, b *chainmodel.Block) error {
	if err := e.store.InsertBlock(ctx, b); err != nil {
		return err
	}

	e.lastBlock = b
	if b.IsPayload() {
		e.lastFullBlock = b

		if b.Transaction.Class == chainmodel.ClassZone {
			e.zonesSeen[string(b.Transaction.Identity)] = struct{}{}
		}
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.BlockchainChanged, BlockIndex: b.Index})
	}

	return nil
}

// ReplaceBlock truncates the chain at b.Index, clears the signer
// cache (every election depending on a discarded block is now stale),
// and appends b in its place. Used when a Fork verdict is accepted by
// higher policy.
func (e *Engine) ReplaceBlock(ctx context.Context, b *chainmodel.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.TruncateFrom(ctx, b.Index); err != nil {
		return err
	}
	e.signers.Clear()

	if err := e.rebuildTipCacheLocked(ctx); err != nil {
		return err
	}

	return e.addBlockLocked(ctx, b)
}

func (e *Engine) rebuildTipCacheLocked(ctx context.Context) error {
	last, err := e.store.LastBlock(ctx)
	if err != nil {
		return err
	}
	e.lastBlock = last

	if last != nil && last.IsPayload() {
		e.lastFullBlock = last
		return nil
	}

	full, err := e.store.LastPayloadBlock(ctx, boundlessBefore, nil)
	if err != nil {
		return err
	}
	e.lastFullBlock = full

	return nil
}

// CheckChain walks from max(1, height-n+1) forward, re-validating each
// block in its historical context; on the first non-Good verdict it
// truncates the suffix and re-derives the tip caches. Genesis is
// checked against origin. Called on startup with n = settings'
// check_blocks.
func (e *Engine) CheckChain(ctx context.Context, n uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	height, err := e.heightLocked(ctx)
	if err != nil {
		return err
	}
	if height == 0 {
		return nil
	}

	start := uint64(1)
	if height > n {
		start = height - n + 1
	}

	// Re-derive tip hints as of just before `start`, so the gates that
	// consult e.lastBlock/e.lastFullBlock see the right historical
	// context rather than the final tip while we walk forward.
	if start > 1 {
		prior, err := e.store.BlockByID(ctx, start-1)
		if err != nil {
			return err
		}
		e.lastBlock = prior
		if prior != nil && prior.IsPayload() {
			e.lastFullBlock = prior
		} else {
			full, err := e.store.LastPayloadBlock(ctx, start, nil)
			if err != nil {
				return err
			}
			e.lastFullBlock = full
		}
	} else {
		e.lastBlock = nil
		e.lastFullBlock = nil
	}

	now := time.Now().Unix()

	for idx := start; idx <= height; idx++ {
		b, err := e.store.BlockByID(ctx, idx)
		if err != nil {
			return err
		}
		if b == nil {
			break
		}

		verdict, err := e.checkBlockLocked(ctx, b, now)
		if err != nil {
			return err
		}

		if verdict != Good {
			e.logger.Warnf("check_chain: block %d failed validation (%s), truncating", idx, verdict)
			if err := e.store.TruncateFrom(ctx, idx); err != nil {
				return err
			}
			e.signers.Clear()
			return e.rebuildTipCacheLocked(ctx)
		}

		e.lastBlock = b
		if b.IsPayload() {
			e.lastFullBlock = b
		}
	}

	return nil
}
