package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Batch is one open transaction over the store. Record failures are isolated
// with savepoints so a single bad record never poisons the rest of the batch.
type Batch struct {
	queries
	tx *sql.Tx
	n  int
}

// Savepoint runs fn inside a nested savepoint. On success the savepoint is
// released; on failure the batch is rolled back to it and fn's error is
// returned, with the transaction still usable.
func (b *Batch) Savepoint(ctx context.Context, fn func() error) error {
	b.n++
	name := fmt.Sprintf("record_%d", b.n)

	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint after %w: %v", err, rbErr)
		}
		if _, relErr := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("failed to release savepoint after %w: %v", err, relErr)
		}
		return err
	}

	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// Commit makes the whole batch durable.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Rollback discards the whole batch. Calling it after Commit is a no-op.
func (b *Batch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back batch: %w", err)
	}
	return nil
}
