// Package idempotency remembers which broker or provider events a consumer has
// already handled, using expiring redis markers.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// markerStore is satisfied by the redis client.
type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Ledger hands out per-consumer views over one marker keyspace.
type Ledger struct {
	store markerStore
	ttl   time.Duration
}

// NewLedger keeps markers for ttl; zero means they never expire.
func NewLedger(store markerStore, ttl time.Duration) (*Ledger, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Ledger{store: store, ttl: ttl}, nil
}

// Consumer returns the view for one named consumer. Markers are stored under
// evt:processed:<consumer>:<event_id>, so consumers never see each other's ids.
func (l *Ledger) Consumer(name string) (*Consumer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	return &Consumer{ledger: l, scope: "evt:processed:" + name}, nil
}

type Consumer struct {
	ledger *Ledger
	scope  string
}

// CheckAndMark reports whether eventID was seen before and records it if not.
// Ids are opaque: provider ids (evt_...) and outbox uuids share the keyspace.
func (c *Consumer) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := c.key(eventID)
	if err != nil {
		return false, err
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	fresh, err := c.ledger.store.SetNX(ctx, key, stamp, c.ledger.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Delete forgets eventID so a redelivery is handled again.
func (c *Consumer) Delete(ctx context.Context, eventID string) error {
	key, err := c.key(eventID)
	if err != nil {
		return err
	}
	return c.ledger.store.Del(ctx, key)
}

func (c *Consumer) key(eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("event id is required")
	}
	return c.ledger.store.IdempotencyKey(c.scope, eventID), nil
}
