package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bus is an in-process event bus with per-key ordering, at-least-once
// delivery, retry with backoff, and a dead-letter sink.
//
// Envelopes are hashed by key onto a fixed set of shards; each shard is
// drained by one worker goroutine, so all events sharing a key are
// delivered in publish order. Different keys may interleave freely.
//
// Delivery is at-least-once: a handler error after partial work leads to
// redelivery, so every consumer must be idempotent. Publishing never
// blocks past enqueue; a shard buffer that stays full for the enqueue
// timeout dead-letters the envelope instead.
type Bus struct {
	cfg    Config
	shards []chan Envelope

	subsMu sync.RWMutex
	subs   map[Type][]subscription

	deadMu sync.Mutex
	dead   []DeadLetter

	observer Observer
	logger   *slog.Logger

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Config contains bus configuration.
type Config struct {
	// Shards is the number of ordered delivery lanes. Default: 8.
	Shards int

	// BufferSize is the per-shard channel capacity. Default: 1024.
	BufferSize int

	// MaxAttempts is the delivery attempt limit per (consumer, event).
	// Default: 3.
	MaxAttempts int

	// RetryBackoff is the base backoff between attempts, doubled per
	// attempt. Default: 100ms.
	RetryBackoff time.Duration

	// EnqueueTimeout bounds how long Publish waits on a full shard.
	// Default: 1s.
	EnqueueTimeout time.Duration
}

type subscription struct {
	name    string
	handler Handler
}

// NewBus creates and starts a bus with the given configuration.
func NewBus(cfg Config) *Bus {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = time.Second
	}

	b := &Bus{
		cfg:    cfg,
		shards: make([]chan Envelope, cfg.Shards),
		subs:   make(map[Type][]subscription),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "events.bus"),
	}

	for i := range b.shards {
		b.shards[i] = make(chan Envelope, cfg.BufferSize)
		b.wg.Add(1)
		go b.worker(i)
	}

	return b
}

// SetObserver installs a health observer. Call before publishing.
func (b *Bus) SetObserver(obs Observer) {
	b.observer = obs
}

// Subscribe registers a named handler for an event type. The name
// appears in logs and dead letters.
func (b *Bus) Subscribe(t Type, name string, handler Handler) {
	b.subsMu.Lock()
	b.subs[t] = append(b.subs[t], subscription{name: name, handler: handler})
	b.subsMu.Unlock()
}

// Publish enqueues an event for asynchronous delivery. It returns once
// the envelope is accepted by its shard; delivery happens on the shard
// worker. A shard that stays full past the enqueue timeout dead-letters
// the envelope and returns ErrQueueFull.
func (b *Bus) Publish(ctx context.Context, t Type, key string, payload any) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	env := Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Key:       key,
		Attempt:   1,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	shard := b.shardFor(key)

	select {
	case b.shards[shard] <- env:
		if b.observer != nil {
			b.observer.UpdateBusDepth(strconv.Itoa(shard), len(b.shards[shard]))
		}
		return nil
	case <-time.After(b.cfg.EnqueueTimeout):
		b.logger.Error("shard buffer full, dead-lettering event",
			"type", t,
			"key", key,
			"shard", shard,
		)
		b.addDeadLetter(env, "publish", ErrQueueFull)
		return fmt.Errorf("%w: shard %d", ErrQueueFull, shard)
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBusClosed
	}
}

// DeadLetters returns a snapshot of the dead-letter sink for operator
// inspection.
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()

	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}

// Close stops the bus, draining queued events before returning.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
	return nil
}

// shardFor maps a key onto its shard.
func (b *Bus) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.shards)))
}

// worker drains one shard, delivering each envelope to every subscriber
// of its type in registration order.
func (b *Bus) worker(shard int) {
	defer b.wg.Done()

	ch := b.shards[shard]
	for {
		select {
		case env := <-ch:
			b.deliver(env)
			if b.observer != nil {
				b.observer.UpdateBusDepth(strconv.Itoa(shard), len(ch))
			}

		case <-b.done:
			// Drain remaining envelopes before exit.
			for {
				select {
				case env := <-ch:
					b.deliver(env)
				default:
					return
				}
			}
		}
	}
}

// deliver fans an envelope out to its subscribers, retrying each with
// exponential backoff and dead-lettering on exhaustion.
func (b *Bus) deliver(env Envelope) {
	b.subsMu.RLock()
	subs := b.subs[env.Type]
	b.subsMu.RUnlock()

	for _, sub := range subs {
		b.deliverTo(sub, env)
	}
}

func (b *Bus) deliverTo(sub subscription, env Envelope) {
	backoff := b.cfg.RetryBackoff

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		env.Attempt = attempt

		err := sub.handler(context.Background(), env)
		if err == nil {
			return
		}

		if attempt == b.cfg.MaxAttempts {
			b.logger.Error("event delivery exhausted, dead-lettering",
				"type", env.Type,
				"key", env.Key,
				"consumer", sub.name,
				"attempts", attempt,
				"error", err,
			)
			b.addDeadLetter(env, sub.name, err)
			return
		}

		b.logger.Warn("event delivery failed, retrying",
			"type", env.Type,
			"key", env.Key,
			"consumer", sub.name,
			"attempt", attempt,
			"error", err,
		)
		if b.observer != nil {
			b.observer.RecordBusRetry()
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}

func (b *Bus) addDeadLetter(env Envelope, consumer string, cause error) {
	b.deadMu.Lock()
	b.dead = append(b.dead, DeadLetter{
		Envelope: env,
		Consumer: consumer,
		Reason:   cause.Error(),
		FailedAt: time.Now().UTC(),
	})
	b.deadMu.Unlock()

	if b.observer != nil {
		b.observer.RecordDeadLetter()
	}
}
