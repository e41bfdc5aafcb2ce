// Package idempotency lets queue consumers skip messages they have already
// handled. Marks live in Redis under
// ol:idempotency:evt:processed:<consumer>:<key> and expire after the TTL.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/orderledger/pkg/redis"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrKeyRequired      = errors.New("idempotency key is required")
)

type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a Manager. A zero ttl keeps marks forever.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed atomically claims key for consumer. It reports true
// when an earlier delivery already holds the claim. The stored value is the
// claim time.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error) {
	k, err := m.markKey(consumer, key)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, k, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases a claim so a redelivery is processed again. Consumers call
// it when handling fails with a retryable error.
func (m *Manager) Delete(ctx context.Context, consumer, key string) error {
	k, err := m.markKey(consumer, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, k)
}

func (m *Manager) markKey(consumer, key string) (string, error) {
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", ErrKeyRequired
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, key), nil
}
