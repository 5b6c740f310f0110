// Package cursor tracks incremental sync progress: per-kind timestamp
// watermarks and opaque pagination tokens, persisted in the config store so
// every invocation resumes where the previous one stopped.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/config"
)

// Kind identifies the record stream a cursor belongs to.
type Kind string

const (
	KindProduct Kind = "product"
	KindOrder   Kind = "order"
)

// Direction distinguishes inbound (remote to local) from outbound cursors.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// watermarkKey maps a (kind, direction) pair to its persisted config key.
// The key names predate this package and stay stable so existing stores keep
// their progress across upgrades.
func watermarkKey(kind Kind, dir Direction) (string, error) {
	switch {
	case kind == KindProduct && dir == Inbound:
		return "shopify.last_updated_at", nil
	case kind == KindOrder && dir == Inbound:
		return "shopify.orders_last_updated_at", nil
	case kind == KindProduct && dir == Outbound:
		return "shopify.last_outbound_sync", nil
	default:
		return "", fmt.Errorf("no cursor for kind %q direction %q", kind, dir)
	}
}

func pageTokenKey(kind Kind) string {
	return fmt.Sprintf("shopify.page_token.%s", kind)
}

// Manager reads and advances sync cursors.
type Manager struct {
	store config.Store
}

// NewManager creates a cursor manager backed by the given config store.
func NewManager(store config.Store) *Manager {
	return &Manager{store: store}
}

// Watermark returns the saved high-water timestamp for a stream. The second
// return value is false when no watermark has ever been saved.
func (m *Manager) Watermark(ctx context.Context, kind Kind, dir Direction) (time.Time, bool, error) {
	key, err := watermarkKey(kind, dir)
	if err != nil {
		return time.Time{}, false, err
	}

	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, config.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark %s: %w", key, err)
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark %s=%q: %w", key, raw, err)
	}
	return ts, true, nil
}

// Advance moves the watermark forward, never backward. A candidate equal to
// the stored value is bumped by one second so a batch whose every record
// shares one timestamp still makes progress on the next run.
func (m *Manager) Advance(ctx context.Context, kind Kind, dir Direction, candidate time.Time) error {
	key, err := watermarkKey(kind, dir)
	if err != nil {
		return err
	}

	current, ok, err := m.Watermark(ctx, kind, dir)
	if err != nil {
		return err
	}

	next := candidate
	if ok {
		switch {
		case candidate.Before(current):
			return nil
		case candidate.Equal(current):
			next = current.Add(time.Second)
		}
	}

	if err := m.store.Set(ctx, key, next.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save watermark %s: %w", key, err)
	}
	return nil
}

// PageToken returns the saved continuation token for a stream, "" when the
// stream is not mid-pagination.
func (m *Manager) PageToken(ctx context.Context, kind Kind) (string, error) {
	token, err := m.store.Get(ctx, pageTokenKey(kind))
	if errors.Is(err, config.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read page token for %s: %w", kind, err)
	}
	return token, nil
}

// SetPageToken persists the continuation token; an empty token clears it.
func (m *Manager) SetPageToken(ctx context.Context, kind Kind, token string) error {
	if token == "" {
		return m.ClearPageToken(ctx, kind)
	}
	if err := m.store.Set(ctx, pageTokenKey(kind), token); err != nil {
		return fmt.Errorf("failed to save page token for %s: %w", kind, err)
	}
	return nil
}

// ClearPageToken removes the continuation token for a stream.
func (m *Manager) ClearPageToken(ctx context.Context, kind Kind) error {
	if err := m.store.Delete(ctx, pageTokenKey(kind)); err != nil {
		return fmt.Errorf("failed to clear page token for %s: %w", kind, err)
	}
	return nil
}

// Reset wipes all cursors; the next sync starts from the first-run window.
func (m *Manager) Reset(ctx context.Context) error {
	keys := []string{
		"shopify.last_updated_at",
		"shopify.orders_last_updated_at",
		"shopify.last_outbound_sync",
		pageTokenKey(KindProduct),
		pageTokenKey(KindOrder),
	}
	for _, key := range keys {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset cursor %s: %w", key, err)
		}
	}
	return nil
}
