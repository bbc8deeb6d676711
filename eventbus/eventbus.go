// Package eventbus implements C7: channel-based fan-out of engine/miner
// lifecycle events to subscribers.
//
// Grounded on the teacher's services/blockchain/Server.go subscriber
// map and central dispatch goroutine.
package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EventType names the kind of lifecycle event delivered on the bus.
type EventType string

const (
	MinerStarted      EventType = "MinerStarted"
	MinerStopped      EventType = "MinerStopped"
	MinerStats        EventType = "MinerStats"
	BlockchainChanged EventType = "BlockchainChanged"
	NewBlockReceived  EventType = "NewBlockReceived"
	ActionStopMining  EventType = "ActionStopMining"
	ActionQuit        EventType = "ActionQuit"
)

// Event is a single notification published to the bus.
type Event struct {
	Type EventType

	// MinerStopped fields.
	Success bool
	Full    bool

	// MinerStats fields.
	Thread     int
	Speed      float64
	MaxDiff    int
	TargetDiff int

	// BlockchainChanged/NewBlockReceived fields.
	BlockIndex uint64
}

type subscriber struct {
	id uuid.UUID
	ch chan Event
}

// Bus fans Publish calls out to every live subscriber. Slow subscribers
// never block Publish: each subscriber has a buffered channel and
// Publish sends to it without waiting. Subscriptions are pruned by
// their Unsubscribe call or when their context is cancelled.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber
}

func New() *Bus {
	return &Bus{subscribers: make(map[uuid.UUID]*subscriber)}
}

// Subscribe registers a new subscriber and returns a channel of events
// plus an unsubscribe function. The channel is closed when ctx is
// cancelled or Unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{id: uuid.New(), ch: make(chan Event, 64)}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[sub.id]; ok {
			delete(b.subscribers, sub.id)
			close(existing.ch)
		}
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return sub.ch, unsubscribe
}

// Publish delivers ev to every current subscriber. A subscriber whose
// buffer is full drops the event rather than blocking the publisher —
// lifecycle events are advisory, not a guaranteed-delivery log.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
