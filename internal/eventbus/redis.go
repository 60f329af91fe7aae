/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/litecasthq/litecast/internal/events"
)

// Bridge relays engine events between instances over Redis pub/sub so a
// dashboard connected to one instance still sees streams running on another.
// When Redis is unreachable it degrades to local-only delivery.
type Bridge struct {
	client   *redis.Client
	logger   zerolog.Logger
	local    *events.Bus
	instance string

	mu       sync.RWMutex
	subs     map[events.EventType][]events.Subscriber
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	localOnly bool
	failCount int
	maxFails  int
	lastProbe time.Time
}

// Config contains Redis connection configuration for the bridge.
type Config struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Consecutive failures before the bridge drops to local-only delivery.
	MaxFailures int
}

// DefaultConfig returns default bridge configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// New creates a Redis-backed event bridge. If the initial ping fails the
// bridge starts in local-only mode instead of returning an error.
func New(cfg Config, instanceID string, local *events.Bus, logger zerolog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, event bridge running local-only")
		cancel()

		return &Bridge{
			logger:    logger,
			local:     local,
			instance:  instanceID,
			localOnly: true,
			maxFails:  cfg.MaxFailures,
			subs:      make(map[events.EventType][]events.Subscriber),
			channels:  make(map[events.EventType]*redis.PubSub),
			ctx:       context.Background(),
		}, nil
	}

	br := &Bridge{
		client:   client,
		logger:   logger,
		local:    local,
		instance: instanceID,
		maxFails: cfg.MaxFailures,
		subs:     make(map[events.EventType][]events.Subscriber),
		channels: make(map[events.EventType]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
	}

	logger.Info().Str("addr", cfg.Addr).Str("instance", instanceID).Msg("redis event bridge initialized")
	return br, nil
}

// Subscribe registers a subscriber for an event type, receiving both local
// events and events relayed from other instances.
func (br *Bridge) Subscribe(eventType events.EventType) events.Subscriber {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.localOnly {
		return br.local.Subscribe(eventType)
	}

	sub := make(events.Subscriber, 100)
	br.subs[eventType] = append(br.subs[eventType], sub)

	if _, exists := br.channels[eventType]; !exists {
		pubsub := br.client.Subscribe(br.ctx, string(eventType))
		br.channels[eventType] = pubsub

		br.wg.Add(1)
		go br.receive(eventType, pubsub)
	}

	return sub
}

// receive pumps remote messages for one event type to local subscribers.
func (br *Bridge) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer br.wg.Done()

	ch := pubsub.Channel()

	for {
		select {
		case <-br.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				br.logger.Warn().Str("event_type", string(eventType)).Msg("redis channel closed")
				br.recordFailure()
				return
			}

			envelope, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				br.logger.Error().Err(err).Msg("failed to decode bridge message")
				continue
			}

			// Events we published ourselves already reached local subscribers.
			if envelope.Instance == br.instance {
				continue
			}

			br.mu.RLock()
			subs := br.subs[eventType]
			br.mu.RUnlock()

			for _, sub := range subs {
				select {
				case sub <- envelope.Payload:
				default:
					br.logger.Warn().Str("event_type", string(eventType)).Msg("subscriber full, dropping relayed event")
				}
			}
		}
	}
}

// Publish delivers locally and relays to other instances.
func (br *Bridge) Publish(eventType events.EventType, payload events.Payload) {
	br.local.Publish(eventType, payload)

	if br.localOnly {
		return
	}

	data, err := encodeEnvelope(eventType, payload, br.instance)
	if err != nil {
		br.logger.Error().Err(err).Msg("failed to encode bridge message")
		return
	}

	ctx, cancel := context.WithTimeout(br.ctx, 2*time.Second)
	defer cancel()

	if err := br.client.Publish(ctx, string(eventType), data).Err(); err != nil {
		br.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to relay event to redis")
		br.recordFailure()
		return
	}

	br.mu.Lock()
	br.failCount = 0
	br.mu.Unlock()
}

// Unsubscribe removes a subscriber and tears down the Redis subscription
// when it was the last listener for that event type.
func (br *Bridge) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.localOnly {
		br.local.Unsubscribe(eventType, sub)
		return
	}

	subs := br.subs[eventType]
	for i, s := range subs {
		if s == sub {
			br.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(br.subs[eventType]) == 0 {
		if pubsub, exists := br.channels[eventType]; exists {
			pubsub.Close()
			delete(br.channels, eventType)
		}
	}
}

// Close shuts down the Redis connection and all receiver goroutines.
func (br *Bridge) Close() error {
	if br.cancel != nil {
		br.cancel()
	}
	br.wg.Wait()

	br.mu.Lock()
	for _, pubsub := range br.channels {
		pubsub.Close()
	}
	br.channels = make(map[events.EventType]*redis.PubSub)
	br.mu.Unlock()

	if br.client != nil {
		if err := br.client.Close(); err != nil {
			return fmt.Errorf("close redis client: %w", err)
		}
	}
	return nil
}

// recordFailure trips the bridge to local-only after repeated failures.
func (br *Bridge) recordFailure() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.failCount++
	if br.failCount >= br.maxFails && !br.localOnly {
		br.logger.Warn().Int("failures", br.failCount).Msg("redis failure threshold reached, bridge now local-only")
		br.localOnly = true
		br.lastProbe = time.Now()
		if br.client != nil {
			br.client.Close()
		}
	}
}

// envelope wraps a payload relayed through Redis with its source instance.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	Instance  string           `json:"instance"`
}

func encodeEnvelope(eventType events.EventType, payload events.Payload, instance string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		Instance:  instance,
	})
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &msg, nil
}
