package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopbridge/shopbridge/internal/store"
)

// GetCategoryByName retrieves a category by exact name.
func (q *queries) GetCategoryByName(ctx context.Context, name string) (*store.Category, error) {
	var c store.Category
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name FROM categories WHERE name = ?", name).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts a new category and returns its ID.
func (q *queries) CreateCategory(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "INSERT INTO categories (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get category id: %w", err)
	}
	return id, nil
}

// GetVendorByName retrieves a vendor by exact name.
func (q *queries) GetVendorByName(ctx context.Context, name string) (*store.Vendor, error) {
	var v store.Vendor
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, email FROM vendors WHERE name = ?", name).Scan(&v.ID, &v.Name, &v.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &v, nil
}

// CreateVendor inserts a new vendor and returns its ID.
func (q *queries) CreateVendor(ctx context.Context, v *store.Vendor) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO vendors (name, email) VALUES (?, ?)", v.Name, v.Email)
	if err != nil {
		return 0, fmt.Errorf("failed to create vendor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get vendor id: %w", err)
	}
	v.ID = id
	return id, nil
}

// LinkVendor attaches a vendor to a template; idempotent, additive.
func (q *queries) LinkVendor(ctx context.Context, templateID, vendorID int64) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO vendor_links (template_id, vendor_id) VALUES (?, ?)",
		templateID, vendorID)
	if err != nil {
		return fmt.Errorf("failed to link vendor: %w", err)
	}
	return nil
}

// ListVendorLinks returns the vendor IDs linked to a template.
func (q *queries) ListVendorLinks(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT vendor_id FROM vendor_links WHERE template_id = ? ORDER BY vendor_id", templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor links: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vendor link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAttributeByName retrieves an attribute by exact name.
func (q *queries) GetAttributeByName(ctx context.Context, name string) (*store.Attribute, error) {
	var a store.Attribute
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name FROM attributes WHERE name = ?", name).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute: %w", err)
	}
	return &a, nil
}

// CreateAttribute inserts a new attribute and returns its ID.
func (q *queries) CreateAttribute(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "INSERT INTO attributes (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create attribute: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attribute id: %w", err)
	}
	return id, nil
}

// GetAttributeValue retrieves a value of an attribute.
func (q *queries) GetAttributeValue(ctx context.Context, attributeID int64, value string) (*store.AttributeValue, error) {
	var v store.AttributeValue
	err := q.db.QueryRowContext(ctx,
		"SELECT id, attribute_id, value FROM attribute_values WHERE attribute_id = ? AND value = ?",
		attributeID, value).Scan(&v.ID, &v.AttributeID, &v.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute value: %w", err)
	}
	return &v, nil
}

// CreateAttributeValue inserts a new attribute value and returns its ID.
func (q *queries) CreateAttributeValue(ctx context.Context, attributeID int64, value string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO attribute_values (attribute_id, value) VALUES (?, ?)", attributeID, value)
	if err != nil {
		return 0, fmt.Errorf("failed to create attribute value: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attribute value id: %w", err)
	}
	return id, nil
}

// LinkTemplateAttributeValue makes a value selectable on a template;
// idempotent.
func (q *queries) LinkTemplateAttributeValue(ctx context.Context, templateID, attributeID, valueID int64) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO template_attribute_values (template_id, attribute_id, value_id) VALUES (?, ?, ?)",
		templateID, attributeID, valueID)
	if err != nil {
		return fmt.Errorf("failed to link attribute value: %w", err)
	}
	return nil
}
