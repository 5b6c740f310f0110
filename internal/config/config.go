// Package config defines the persistent key-value configuration store that
// holds connection credentials, feature flags and all sync cursor state.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrKeyNotFound is returned when a configuration key has no stored value.
var ErrKeyNotFound = errors.New("config key not found")

// Store is the persistent key-value configuration store.
// All values survive process restarts.
type Store interface {
	// Get returns the stored value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// GetDefault returns the stored value for key, or def when the key is absent.
	GetDefault(ctx context.Context, key, def string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Configuration keys. Cursor keys are managed by the cursor package but share
// this store so that a single file holds everything the engine needs to resume.
const (
	KeyAccessToken = "shopify.access_token" // sealed, see crypto package
	KeyStoreURL    = "shopify.store_url"
	KeyAPIVersion  = "shopify.api_version"

	KeyAutoPublish      = "shopify.auto_publish"
	KeyAutoExport       = "shopify.auto_export"
	KeyInvoiceOnPayment = "shopify.invoice_on_payment"
	KeyCreatePortalUser = "shopify.create_portal_user"

	// Cached remote totals, refreshed opportunistically by status reporting.
	KeyCachedProductCount = "shopify.total_products_count"
	KeyCachedOrderCount   = "shopify.total_orders_count"
)

// DefaultAPIVersion is used when no API version has been configured.
const DefaultAPIVersion = "2023-10"

// Settings is the decoded configuration the engine needs for one invocation.
type Settings struct {
	AccessToken string
	StoreURL    string
	APIVersion  string

	AutoPublish      bool
	AutoExport       bool
	InvoiceOnPayment bool
	CreatePortalUser bool
}

// Validate reports whether the settings are sufficient to talk to the remote
// platform. Callers treat a failure here as a configuration error: the batch
// is not attempted.
func (s Settings) Validate() error {
	if s.AccessToken == "" {
		return errors.New("access token is not configured")
	}
	if s.StoreURL == "" {
		return errors.New("store URL is not configured")
	}
	return nil
}

// Unsealer decrypts the stored access token. Implemented by the crypto package.
type Unsealer interface {
	Open(sealed string) (string, error)
}

// Load reads and decodes engine settings from the store. The access token is
// stored sealed and passes through unseal; a nil unsealer reads it verbatim.
func Load(ctx context.Context, store Store, unsealer Unsealer) (Settings, error) {
	var s Settings

	token, err := store.GetDefault(ctx, KeyAccessToken, "")
	if err != nil {
		return s, fmt.Errorf("failed to read access token: %w", err)
	}
	if token != "" && unsealer != nil {
		token, err = unsealer.Open(token)
		if err != nil {
			return s, fmt.Errorf("failed to unseal access token: %w", err)
		}
	}
	s.AccessToken = token

	if s.StoreURL, err = store.GetDefault(ctx, KeyStoreURL, ""); err != nil {
		return s, fmt.Errorf("failed to read store URL: %w", err)
	}
	if s.APIVersion, err = store.GetDefault(ctx, KeyAPIVersion, DefaultAPIVersion); err != nil {
		return s, fmt.Errorf("failed to read API version: %w", err)
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{KeyAutoPublish, &s.AutoPublish},
		{KeyAutoExport, &s.AutoExport},
		{KeyInvoiceOnPayment, &s.InvoiceOnPayment},
		{KeyCreatePortalUser, &s.CreatePortalUser},
	}
	for _, f := range flags {
		raw, err := store.GetDefault(ctx, f.key, "false")
		if err != nil {
			return s, fmt.Errorf("failed to read %s: %w", f.key, err)
		}
		*f.dst = parseBool(raw)
	}

	return s, nil
}

func parseBool(raw string) bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return b
}
