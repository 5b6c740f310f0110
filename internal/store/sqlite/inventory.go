package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/store"
)

// GetStockQuant retrieves the quant for a variant.
func (q *queries) GetStockQuant(ctx context.Context, variantID int64) (*store.StockQuant, error) {
	var sq store.StockQuant
	var updated int64
	err := q.db.QueryRowContext(ctx,
		"SELECT id, variant_id, quantity, updated_at FROM stock_quants WHERE variant_id = ?",
		variantID).Scan(&sq.ID, &sq.VariantID, &sq.Quantity, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock quant: %w", err)
	}
	sq.UpdatedAt = timeOrZero(updated)
	return &sq, nil
}

// SetStockQuant upserts the on-hand quantity for a variant.
func (q *queries) SetStockQuant(ctx context.Context, variantID int64, quantity float64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stock_quants (variant_id, quantity, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(variant_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`,
		variantID, quantity, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set stock quant: %w", err)
	}
	return nil
}
