package miner

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/eventbus"
	"github.com/guachain/guachain/hashkey"
	"github.com/guachain/guachain/metrics"
)

const (
	timestampRefreshInterval = 1 * time.Second
	tipCheckInterval         = 5 * time.Second
	statsPostInterval        = 5 * time.Second
)

// findHash is one worker thread's nonce search, per §4.8's per-thread
// inner loop.
func (m *Miner) findHash(ctx context.Context, job *MineJob, threadID int, stopCh <-chan struct{}, resultCh chan<- *chainmodel.Block) {
	b := cloneBlock(job.Template)
	b.PubKey = m.ks.GetPublic()
	b.Random = rand.Uint32()
	if err := m.engine.UpdateSignBlockForMining(ctx, b); err != nil {
		m.logger.Errorf("update_sign_block_for_mining: %v", err)
	}

	lastTimestampRefresh := time.Now()
	lastTipCheck := time.Now()
	lastStatsPost := time.Now()

	hashes := 0
	statsWindowStart := time.Now()

	for nonce := uint64(0); nonce < ^uint64(0); nonce++ {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !m.mining.Load() {
			return
		}

		b.Nonce = nonce

		now := time.Now()
		if now.Sub(lastTimestampRefresh) >= timestampRefreshInterval {
			b.Timestamp = now.Unix()
			lastTimestampRefresh = now
		}

		hash := hashkey.Hash(chainmodel.SerializeForHash(b))
		hashes++

		if hashkey.LeadingZeroBits(hash) >= b.Difficulty {
			b.Hash = hash
			b.Signature = m.ks.Sign(chainmodel.SerializeForHash(b))

			select {
			case resultCh <- b:
			default:
			}
			return
		}

		if now.Sub(lastTipCheck) >= tipCheckInterval {
			lastTipCheck = now

			tip, err := m.engine.LastBlock(ctx)
			if err == nil && tip != nil && tip.Index >= b.Index {
				if !b.IsPayload() {
					// A signing block's target height was already
					// reached by another miner; no point continuing.
					return
				}
			}
		}

		if now.Sub(lastStatsPost) >= statsPostInterval {
			elapsed := now.Sub(statsWindowStart).Seconds()
			speed := 0.0
			if elapsed > 0 {
				speed = float64(hashes) / elapsed
			}

			metrics.MinerHashrate.WithLabelValues(strconv.Itoa(threadID)).Set(speed)
			if m.bus != nil {
				m.bus.Publish(eventbus.Event{
					Type:       eventbus.MinerStats,
					Thread:     threadID,
					Speed:      speed,
					TargetDiff: b.Difficulty,
				})
			}

			lastStatsPost = now
			hashes = 0
			statsWindowStart = now
		}
	}
}
