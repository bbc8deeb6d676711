// Package miner implements C6: the job queue and worker pool that
// search for a nonce meeting a block template's target difficulty.
//
// Ported from the original implementation's miner module (MineJob,
// MinerState, the job-queue dedup rule, run_main_loop's state machine,
// mine_internal's preemption branch, find_hash's inner loop) and
// re-expressed in the teacher's goroutine/channel idiom in place of
// Rust's Mutex/Condvar/AtomicBool.
package miner

import (
	"time"

	"github.com/guachain/guachain/chainmodel"
)

// MineJob is one unit of mining work: a block template to search a
// nonce for, due at StartTime (the zero Time means due immediately).
type MineJob struct {
	StartTime time.Time
	Template  *chainmodel.Block
}

func (j *MineJob) due(now time.Time) bool {
	return j.StartTime.IsZero() || !j.StartTime.After(now)
}

func cloneBlock(b *chainmodel.Block) *chainmodel.Block {
	clone := *b
	clone.PrevBlockHash = append([]byte(nil), b.PrevBlockHash...)
	clone.PubKey = append([]byte(nil), b.PubKey...)
	if b.Transaction != nil {
		tx := *b.Transaction
		clone.Transaction = &tx
	}
	return &clone
}
