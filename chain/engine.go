// Package chain implements C5: the chain engine. It owns the
// persistent store (C3) and the signer cache (C4), validates and
// applies blocks, and answers the availability/ownership/signer-
// election queries the miner and external collaborators depend on.
//
// Grounded almost line-for-line on the original implementation's
// blockchain/chain module for algorithmic structure; Go idiom (mutex
// placement, constructor shape) follows the teacher's
// services/blockchain Blockchain struct.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/eventbus"
	"github.com/guachain/guachain/keystore"
	"github.com/guachain/guachain/store"
	"github.com/guachain/guachain/store/signercache"
	"github.com/guachain/guachain/ulogger"
)

// Verdict is check_block's outcome, per §4.6 of the specification.
type Verdict int

const (
	Good Verdict = iota
	Bad
	Future
	Rewind
	Twin
	Fork
)

func (v Verdict) String() string {
	switch v {
	case Good:
		return "Good"
	case Bad:
		return "Bad"
	case Future:
		return "Future"
	case Rewind:
		return "Rewind"
	case Twin:
		return "Twin"
	case Fork:
		return "Fork"
	default:
		return "Unknown"
	}
}

// MineResult is can_mine_domain's outcome.
type MineResult int

const (
	Fine MineResult = iota
	WrongName
	WrongZone
	NotOwned
	Cooldown
)

func (r MineResult) String() string {
	switch r {
	case Fine:
		return "Fine"
	case WrongName:
		return "WrongName"
	case WrongZone:
		return "WrongZone"
	case NotOwned:
		return "NotOwned"
	case Cooldown:
		return "Cooldown"
	default:
		return "Unknown"
	}
}

// Engine is the chain engine: a single mutex serializes every
// operation against the store and caches, per the specification's
// concurrency model (§5).
type Engine struct {
	mu sync.Mutex

	store   store.Store
	signers *signercache.Cache
	bus     *eventbus.Bus
	logger  ulogger.Logger
	ks      keystore.Keystore

	// origin is the configured genesis anchor; nil means the node may
	// mine genesis itself.
	origin []byte

	// zonesSeen is an insert-only local membership cache backing
	// is_zone_in_blockchain, per the design note on interior mutability
	// of caches — a field behind the engine's mutex, not a global.
	zonesSeen map[string]struct{}

	// lastBlock/lastFullBlock are advisory hints, reconstructed on
	// Open and after ReplaceBlock; every query that uses them falls
	// through to the store when nil.
	lastBlock     *chainmodel.Block
	lastFullBlock *chainmodel.Block

	// maxHeight is the highest chain height observed from the network,
	// fed by update_max_height; used only by get_sign_block's
	// "local height = known max network height" gate.
	maxHeight uint64

	now func() time.Time
}

// Open constructs an Engine over st, wiping the store first if its
// recorded origin disagrees with the configured origin (a fork from a
// different genesis).
func Open(ctx context.Context, logger ulogger.Logger, st store.Store, bus *eventbus.Bus, ks keystore.Keystore, origin []byte) (*Engine, error) {
	e := &Engine{
		store:     st,
		signers:   signercache.New(),
		bus:       bus,
		logger:    logger,
		ks:        ks,
		origin:    origin,
		zonesSeen: make(map[string]struct{}),
		now:       time.Now,
	}

	options, err := st.ReadOptions(ctx)
	if err != nil {
		return nil, err
	}

	if len(origin) > 0 {
		if stored, ok := options["origin"]; ok && stored != hexEncode(origin) {
			logger.Warnf("configured origin disagrees with stored origin, wiping store")
			if err := st.Wipe(ctx); err != nil {
				return nil, err
			}
		}
	}

	if err := e.rebuildTipCache(ctx); err != nil {
		return nil, err
	}

	if err := e.rebuildZonesSeen(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) rebuildTipCache(ctx context.Context) error {
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

// boundlessBefore is used as the "before" argument when no upper
// bound on block index is meant, larger than any realistic chain
// height.
const boundlessBefore = ^uint64(0)

func (e *Engine) rebuildZonesSeen(ctx context.Context) error {
	zones, err := e.store.AllZones(ctx)
	if err != nil {
		return err
	}
	for _, z := range zones {
		e.zonesSeen[string(z.Identity)] = struct{}{}
	}
	return nil
}

// Height returns the current tip's index, or 0 if the chain is empty.
func (e *Engine) Height(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heightLocked(ctx)
}

func (e *Engine) heightLocked(ctx context.Context) (uint64, error) {
	if e.lastBlock != nil {
		return e.lastBlock.Index, nil
	}
	last, err := e.store.LastBlock(ctx)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return last.Index, nil
}

// LastBlock returns the current tip, or nil if the chain is empty.
func (e *Engine) LastBlock(ctx context.Context) (*chainmodel.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBlockLocked(ctx)
}

func (e *Engine) lastBlockLocked(ctx context.Context) (*chainmodel.Block, error) {
	if e.lastBlock != nil {
		return e.lastBlock, nil
	}
	return e.store.LastBlock(ctx)
}

// GetLastHash returns the current tip's hash, or nil if the chain is
// empty.
func (e *Engine) GetLastHash(ctx context.Context) ([]byte, error) {
	last, err := e.LastBlock(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	return last.Hash, nil
}

// GetBlock returns the block at index, or nil if absent.
func (e *Engine) GetBlock(ctx context.Context, index uint64) (*chainmodel.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.BlockByID(ctx, index)
}

// UpdateMaxHeight records the highest height observed from the
// network, feeding the signer gate's "local height = known max
// network height" requirement.
func (e *Engine) UpdateMaxHeight(h uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h > e.maxHeight {
		e.maxHeight = h
	}
}

// MaxHeight returns the highest height observed from the network.
func (e *Engine) MaxHeight() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxHeight
}

// NextAllowedFullBlock reports the lowest index at which a new payload
// block may be proposed without running afoul of the signer quota,
// mirroring the original's next_allowed_full_block formula:
// max(full.index + BLOCK_SIGNERS_MIN, get_height()+1).
func (e *Engine) NextAllowedFullBlock(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	full, err := e.lastFullBlockLocked(ctx)
	if err != nil {
		return 0, err
	}
	if full == nil {
		return 1, nil
	}
	if full.Index <= chainmodel.BlockSignersStart {
		return full.Index + 1, nil
	}

	height, err := e.heightLocked(ctx)
	if err != nil {
		return 0, err
	}

	next := full.Index + uint64(chainmodel.BlockSignersMin)
	if floor := height + 1; floor > next {
		next = floor
	}
	return next, nil
}

func (e *Engine) lastFullBlockLocked(ctx context.Context) (*chainmodel.Block, error) {
	if e.lastFullBlock != nil {
		return e.lastFullBlock, nil
	}
	return e.store.LastPayloadBlock(ctx, boundlessBefore, nil)
}

// Close releases the engine's background resources.
func (e *Engine) Close() error {
	e.signers.Stop()
	return e.store.Close()
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
