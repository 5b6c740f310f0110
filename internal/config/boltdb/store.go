// Package boltdb implements the configuration key-value store on BoltDB.
package boltdb

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/shopbridge/shopbridge/internal/config"
)

// bucketConfig holds all configuration keys, cursor watermarks included.
var bucketConfig = []byte("config")

// Store is the BoltDB-backed configuration store.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if needed) the configuration database at dbPath.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open config database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConfig)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize config bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored value for key, or config.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConfig)
		if bucket == nil {
			return fmt.Errorf("config bucket not found")
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return config.ErrKeyNotFound
		}
		value = string(raw)
		return nil
	})
	if err != nil {
		if errors.Is(err, config.ErrKeyNotFound) {
			return "", config.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get config key %q: %w", key, err)
	}
	return value, nil
}

// GetDefault returns the stored value for key, or def when absent.
func (s *Store) GetDefault(ctx context.Context, key, def string) (string, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, config.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConfig)
		if bucket == nil {
			return fmt.Errorf("config bucket not found")
		}
		return bucket.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to set config key %q: %w", key, err)
	}
	return nil
}

// Delete removes key from the store. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConfig)
		if bucket == nil {
			return fmt.Errorf("config bucket not found")
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete config key %q: %w", key, err)
	}
	return nil
}
