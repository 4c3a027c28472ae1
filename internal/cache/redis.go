package cache

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel is used when no channel is configured.
const DefaultInvalidationChannel = "keys:cache:invalidation"

// clearAllKey is published when a node clears its whole cache.
const clearAllKey = "*"

// publishTimeout bounds a single invalidation publish.
const publishTimeout = 5 * time.Second

// RedisConfig holds connection settings for the invalidation bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// Broadcaster keeps caches of several processes that share one backing
// store consistent. Deletes are applied locally first and then published;
// deletes published by other nodes are applied to the local cache.
type Broadcaster struct {
	local   Cache
	client  *redis.Client
	channel string
	nodeID  string

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewBroadcaster wraps local with cross-process invalidation over channel.
func NewBroadcaster(local Cache, client *redis.Client, channel string) *Broadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Broadcaster{
		local:   local,
		client:  client,
		channel: channel,
		nodeID:  uuid.New().String(),
	}
}

// NodeID identifies this process on the invalidation channel.
func (b *Broadcaster) NodeID() string {
	return b.nodeID
}

// Start subscribes to the invalidation channel. It returns once the
// subscription is confirmed, so deletes published afterwards are not missed.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go b.listen(pubsub.Channel())

	log.Printf("[Broadcaster] Subscribed to %s as node %s", b.channel, b.nodeID)
	return nil
}

func (b *Broadcaster) listen(ch <-chan *redis.Message) {
	defer b.wg.Done()

	for msg := range ch {
		origin, key, ok := strings.Cut(msg.Payload, "|")
		if !ok {
			log.Printf("[Broadcaster] Ignoring malformed message: %q", msg.Payload)
			continue
		}
		if origin == b.nodeID {
			continue
		}

		ctx := context.Background()
		var err error
		if key == clearAllKey {
			err = b.local.Clear(ctx)
		} else {
			err = b.local.Delete(ctx, key)
		}
		if err != nil {
			log.Printf("[Broadcaster] Failed to apply remote invalidation of %s: %v", key, err)
		}
	}
}

func (b *Broadcaster) publish(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, b.nodeID+"|"+key).Err(); err != nil {
		log.Printf("[Broadcaster] Failed to publish invalidation of %s: %v", key, err)
	}
}

// Get retrieves a value from the local cache.
func (b *Broadcaster) Get(ctx context.Context, key string) ([]byte, error) {
	return b.local.Get(ctx, key)
}

// Set stores a value in the local cache only.
func (b *Broadcaster) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.local.Set(ctx, key, value, ttl)
}

// Delete removes the key locally and tells other nodes to drop it.
// A publish failure is logged; the local delete has already happened.
func (b *Broadcaster) Delete(ctx context.Context, key string) error {
	if err := b.local.Delete(ctx, key); err != nil {
		return err
	}
	b.publish(ctx, key)
	return nil
}

// Exists checks the local cache.
func (b *Broadcaster) Exists(ctx context.Context, key string) (bool, error) {
	return b.local.Exists(ctx, key)
}

// GetOrSet delegates to the local cache.
func (b *Broadcaster) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	return b.local.GetOrSet(ctx, key, ttl, fn)
}

// Clear empties the local cache and tells other nodes to do the same.
func (b *Broadcaster) Clear(ctx context.Context) error {
	if err := b.local.Clear(ctx); err != nil {
		return err
	}
	b.publish(ctx, clearAllKey)
	return nil
}

// Close unsubscribes and waits for the listener to exit.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	b.wg.Wait()
	return err
}

var _ Cache = (*Broadcaster)(nil)
