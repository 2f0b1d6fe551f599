// SPDX-License-Identifier: MIT

// Package broadcast fans an ordered byte stream out to many dynamic
// subscribers. Late joiners receive a bounded replay buffer first, then
// live chunks. A slow subscriber only loses its own oldest chunks; it can
// never stall the producer or other subscribers.
package broadcast

import (
	"context"
	"sync"

	"github.com/tubescribe/tubescribe/internal/metrics"
)

// Default capacities, in chunks.
const (
	DefaultReplayChunks = 100
	DefaultQueueChunks  = 100
)

// Broadcaster owns the replay ring and all subscriptions. All state is
// guarded by a single mutex; Publish never blocks.
type Broadcaster struct {
	mu     sync.Mutex
	replay [][]byte
	subs   map[*Subscription]struct{}
	closed bool

	replayCap int
	queueCap  int
}

// Subscription is one consumer's view of the broadcast, backed by a
// bounded channel. Chunks arrive in publish order; on overflow the oldest
// queued chunk is dropped and Dropped() is incremented.
type Subscription struct {
	ch      chan []byte
	done    chan struct{}
	mu      sync.Mutex
	dropped int64
	closed  bool
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithReplayChunks sets the replay ring capacity.
func WithReplayChunks(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.replayCap = n
		}
	}
}

// WithQueueChunks sets the per-subscription queue capacity.
func WithQueueChunks(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueCap = n
		}
	}
}

// New returns a ready Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:      make(map[*Subscription]struct{}),
		replayCap: DefaultReplayChunks,
		queueCap:  DefaultQueueChunks,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends a chunk to the replay ring (evicting the oldest when
// full) and enqueues it to every subscription. Non-blocking: a full
// subscription drops its oldest chunk to make room, preserving recency.
// Publishing after Close is a no-op.
func (b *Broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	// Copy: the caller reuses its read buffer between chunks.
	c := make([]byte, len(chunk))
	copy(c, chunk)

	if len(b.replay) == b.replayCap {
		b.replay = b.replay[1:]
	}
	b.replay = append(b.replay, c)
	metrics.BroadcastChunksTotal.Inc()

	for sub := range b.subs {
		sub.offer(c)
	}
}

// Subscribe snapshots the replay ring into a new subscription and adds it
// to the active set, all under one critical section so no live chunk can
// fall between the snapshot and the first delivery. Subscribing after
// Close returns an already-closed handle.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:   make(chan []byte, b.queueCap),
		done: make(chan struct{}),
	}

	if b.closed {
		sub.close()
		return sub
	}

	for _, chunk := range b.replay {
		sub.offer(chunk)
	}

	b.subs[sub] = struct{}{}
	metrics.SubscribersActive.Inc()
	return sub
}

// Unsubscribe removes the subscription and closes it; an in-flight Next
// returns closed.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		metrics.SubscribersActive.Dec()
	}
	b.mu.Unlock()

	sub.close()
}

// Close marks the broadcaster closed and closes every subscription.
// Idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	metrics.SubscribersActive.Sub(float64(len(subs)))
	for _, sub := range subs {
		sub.close()
	}
}

// Closed reports whether Close has been called.
func (b *Broadcaster) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// offer enqueues a chunk without blocking. On a full queue the oldest
// chunk is discarded first so the subscriber keeps the most recent tail.
func (s *Subscription) offer(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- chunk:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
			metrics.BroadcastDropsTotal.Inc()
		default:
		}
	}
}

// Next blocks until the next chunk, the subscription is closed, or the
// context is done. A nil chunk with ok=false means closed; queued chunks
// are still drained after closure.
func (s *Subscription) Next(ctx context.Context) ([]byte, bool) {
	// Drain queued chunks even after closure so a consumer sees the full
	// tail it was promised.
	select {
	case chunk := <-s.ch:
		return chunk, true
	default:
	}

	select {
	case chunk := <-s.ch:
		return chunk, true
	case <-s.done:
		select {
		case chunk := <-s.ch:
			return chunk, true
		default:
			return nil, false
		}
	case <-ctx.Done():
		return nil, false
	}
}

// Dropped returns how many chunks were discarded by the slow-consumer
// policy.
func (s *Subscription) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Closed reports whether the subscription has been closed.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
