package miner

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guachain/guachain/chain"
	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/eventbus"
	"github.com/guachain/guachain/keystore"
	"github.com/guachain/guachain/ulogger"
)

// LowerPriority is invoked by each worker goroutine when Miner.lower is
// set, to demote the process's scheduling priority on platforms that
// support it. No portable equivalent of the original's OS-priority hook
// exists in the standard library or anywhere in the reference corpus
// without cgo, so this defaults to a no-op; callers on a specific
// platform may override it.
var LowerPriority = func() {}

// Miner holds the job queue and worker pool described in §4.8 of the
// specification.
type Miner struct {
	mu   sync.Mutex
	cond *sync.Cond
	jobs []*MineJob

	running atomic.Bool
	mining  atomic.Bool

	engine  *chain.Engine
	ks      keystore.Keystore
	bus     *eventbus.Bus
	logger  ulogger.Logger
	threads int
	lower   bool

	wg sync.WaitGroup
}

// New constructs a Miner. threads <= 0 selects runtime.NumCPU().
func New(engine *chain.Engine, ks keystore.Keystore, bus *eventbus.Bus, logger ulogger.Logger, threads int, lower bool) *Miner {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	m := &Miner{
		engine:  engine,
		ks:      ks,
		bus:     bus,
		logger:  logger,
		threads: threads,
		lower:   lower,
	}
	m.cond = sync.NewCond(&m.mu)

	return m
}

// EnqueuePayload adds a payload-block mining job, due immediately.
// Adding a payload job never discards an existing job, per §4.8's
// enqueue policy.
func (m *Miner) EnqueuePayload(template *chainmodel.Block) {
	m.mu.Lock()
	m.jobs = append(m.jobs, &MineJob{Template: template})
	m.mu.Unlock()
	m.cond.Signal()
}

// enqueueSigning adds a signing-block job due at startTime, first
// discarding any queued signing job — there is never more than one
// pending signer job, per §4.8's enqueue policy.
func (m *Miner) enqueueSigning(template *chainmodel.Block, startTime time.Time) {
	m.mu.Lock()
	kept := m.jobs[:0]
	for _, j := range m.jobs {
		if j.Template.IsPayload() {
			kept = append(kept, j)
		}
	}
	m.jobs = append(kept, &MineJob{Template: template, StartTime: startTime})
	m.mu.Unlock()
	m.cond.Signal()
}

// requeueFront places job back at the head of the queue, due
// immediately — used when a payload job is preempted by a signing job.
func (m *Miner) requeueFront(job *MineJob) {
	job.StartTime = time.Time{}
	m.mu.Lock()
	m.jobs = append([]*MineJob{job}, m.jobs...)
	m.mu.Unlock()
	m.cond.Signal()
}

// popDueJob removes and returns the first due job in the queue, if
// any.
func (m *Miner) popDueJob() *MineJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for i, j := range m.jobs {
		if j.due(now) {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return j
		}
	}
	return nil
}

// hasDueSigningJob reports whether the queue holds a due signing job —
// consulted by the preemption watcher while a payload job is mining.
func (m *Miner) hasDueSigningJob() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, j := range m.jobs {
		if !j.Template.IsPayload() && j.due(now) {
			return true
		}
	}
	return false
}

// Start launches the scheduler goroutine (run_main_loop).
func (m *Miner) Start(ctx context.Context) {
	m.running.Store(true)
	m.wg.Add(1)
	go m.runMainLoop(ctx)

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.MinerStarted})
	}
}

// Stop signals the scheduler and any in-flight worker pool to exit,
// and blocks until they have drained.
func (m *Miner) Stop() {
	m.running.Store(false)
	m.mining.Store(false)
	m.cond.Signal()
	m.wg.Wait()
}

func (m *Miner) runMainLoop(ctx context.Context) {
	defer m.wg.Done()

	for m.running.Load() {
		if ctx.Err() != nil {
			return
		}

		job := m.popDueJob()
		if job == nil {
			signTemplate, err := m.engine.GetSignBlock(ctx, m.ks.GetPublic())
			if err != nil {
				m.logger.Errorf("get_sign_block: %v", err)
			}
			if signTemplate != nil {
				delay := time.Duration(rand.Int63n(int64(chainmodel.BlockSignersStartRandom)))
				m.enqueueSigning(signTemplate, time.Now().Add(delay))
				continue
			}

			m.waitForWork(30 * time.Second)
			continue
		}

		m.mineJob(ctx, job)
	}
}

func (m *Miner) waitForWork(timeout time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		close(done)
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer timer.Stop()

	m.mu.Lock()
	for len(m.jobs) == 0 && m.running.Load() {
		select {
		case <-done:
			m.mu.Unlock()
			return
		default:
		}
		m.cond.Wait()
	}
	m.mu.Unlock()
}

// mineJob runs one job to completion (found, preempted, or cancelled),
// per §4.8's per-job and per-thread rules.
func (m *Miner) mineJob(ctx context.Context, job *MineJob) {
	if job.Template.IsPayload() {
		for {
			waiting, err := m.engine.IsWaitingSigners(ctx)
			if err != nil {
				m.logger.Errorf("is_waiting_signers: %v", err)
				break
			}
			if !waiting {
				break
			}
			time.Sleep(5 * time.Second)
			if !m.running.Load() {
				return
			}
		}
	}

	m.mining.Store(true)

	var once sync.Once
	stopCh := make(chan struct{})
	closeStop := func() { once.Do(func() { close(stopCh) }) }

	resultCh := make(chan *chainmodel.Block, 1)

	var workers sync.WaitGroup
	for t := 0; t < m.threads; t++ {
		workers.Add(1)
		go func(threadID int) {
			defer workers.Done()
			time.Sleep(time.Duration(threadID) * 100 * time.Millisecond)
			if m.lower {
				LowerPriority()
			}
			m.findHash(ctx, job, threadID, stopCh, resultCh)
		}(t)
	}

	workersDone := make(chan struct{})
	go func() {
		workers.Wait()
		close(workersDone)
	}()

	preempted := false
	if job.Template.IsPayload() {
		go func() {
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					if m.hasDueSigningJob() {
						preempted = true
						closeStop()
						return
					}
				}
			}
		}()
	}

	var found *chainmodel.Block
	select {
	case found = <-resultCh:
	case <-stopCh:
	case <-workersDone:
	case <-ctx.Done():
	}
	if found == nil {
		select {
		case found = <-resultCh:
		default:
		}
	}

	closeStop()
	m.mining.Store(false)
	workers.Wait()

	if found != nil {
		m.submit(ctx, found)
		return
	}

	if preempted {
		m.requeueFront(job)
	}
}

func (m *Miner) submit(ctx context.Context, b *chainmodel.Block) {
	verdict, err := m.engine.CheckNewBlock(ctx, b, time.Now().Unix())
	if err != nil {
		m.logger.Errorf("check_new_block: %v", err)
		if m.bus != nil {
			m.bus.Publish(eventbus.Event{Type: eventbus.MinerStopped, Success: false, Full: b.IsPayload()})
		}
		return
	}

	if verdict != chain.Good {
		m.logger.Warnf("mined block %d rejected: %s", b.Index, verdict)
		if m.bus != nil {
			m.bus.Publish(eventbus.Event{Type: eventbus.MinerStopped, Success: false, Full: b.IsPayload()})
		}
		return
	}

	if err := m.engine.AddBlock(ctx, b); err != nil {
		m.logger.Errorf("add_block: %v", err)
		if m.bus != nil {
			m.bus.Publish(eventbus.Event{Type: eventbus.MinerStopped, Success: false, Full: b.IsPayload()})
		}
		return
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.MinerStopped, Success: true, Full: b.IsPayload()})
	}
}
