package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopbridge/shopbridge/internal/store"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// unixOrZero converts a time to unix seconds, keeping the zero value as 0.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

const templateColumns = `id, name, reference_code, description_html, category_id,
	published, purchasable, dropship_route, primary_image,
	remote_updated_at, synced_at, created_at, updated_at`

func (q *queries) scanTemplate(row *sql.Row) (*store.ProductTemplate, error) {
	var t store.ProductTemplate
	var published, purchasable int
	var remoteUpdated, synced, created, updated int64

	err := row.Scan(&t.ID, &t.Name, &t.ReferenceCode, &t.DescriptionHTML, &t.CategoryID,
		&published, &purchasable, &t.DropshipRoute, &t.PrimaryImage,
		&remoteUpdated, &synced, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	t.Published = published != 0
	t.Purchasable = purchasable != 0
	t.RemoteUpdatedAt = timeOrZero(remoteUpdated)
	t.SyncedAt = timeOrZero(synced)
	t.CreatedAt = timeOrZero(created)
	t.UpdatedAt = timeOrZero(updated)
	return &t, nil
}

func (q *queries) templateTags(ctx context.Context, templateID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT tag FROM template_tags WHERE template_id = ? ORDER BY tag", templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (q *queries) getTemplate(ctx context.Context, where string, args ...any) (*store.ProductTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM product_templates WHERE %s", templateColumns, where)
	t, err := q.scanTemplate(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if t.Tags, err = q.templateTags(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTemplate retrieves a template by ID.
func (q *queries) GetTemplate(ctx context.Context, id int64) (*store.ProductTemplate, error) {
	return q.getTemplate(ctx, "id = ?", id)
}

// GetTemplateByTag retrieves the template carrying the given tag.
func (q *queries) GetTemplateByTag(ctx context.Context, tag string) (*store.ProductTemplate, error) {
	return q.getTemplate(ctx,
		"id = (SELECT template_id FROM template_tags WHERE tag = ? LIMIT 1)", tag)
}

// FindTemplatesByName retrieves all templates with the exact name.
func (q *queries) FindTemplatesByName(ctx context.Context, name string) ([]*store.ProductTemplate, error) {
	return q.listTemplates(ctx,
		fmt.Sprintf("SELECT %s FROM product_templates WHERE name = ? ORDER BY id", templateColumns),
		name)
}

func (q *queries) listTemplates(ctx context.Context, query string, args ...any) ([]*store.ProductTemplate, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*store.ProductTemplate
	for rows.Next() {
		var t store.ProductTemplate
		var published, purchasable int
		var remoteUpdated, synced, created, updated int64

		err := rows.Scan(&t.ID, &t.Name, &t.ReferenceCode, &t.DescriptionHTML, &t.CategoryID,
			&published, &purchasable, &t.DropshipRoute, &t.PrimaryImage,
			&remoteUpdated, &synced, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		t.Published = published != 0
		t.Purchasable = purchasable != 0
		t.RemoteUpdatedAt = timeOrZero(remoteUpdated)
		t.SyncedAt = timeOrZero(synced)
		t.CreatedAt = timeOrZero(created)
		t.UpdatedAt = timeOrZero(updated)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range out {
		if t.Tags, err = q.templateTags(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateTemplate inserts a new template, including any tags it carries.
func (q *queries) CreateTemplate(ctx context.Context, t *store.ProductTemplate) (int64, error) {
	now := time.Now().Unix()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO product_templates (
			name, reference_code, description_html, category_id,
			published, purchasable, dropship_route, primary_image,
			remote_updated_at, synced_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.ReferenceCode, t.DescriptionHTML, t.CategoryID,
		boolToInt(t.Published), boolToInt(t.Purchasable), t.DropshipRoute, t.PrimaryImage,
		unixOrZero(t.RemoteUpdatedAt), unixOrZero(t.SyncedAt), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get template id: %w", err)
	}

	for _, tag := range t.Tags {
		if err := q.AddTemplateTag(ctx, id, tag); err != nil {
			return 0, err
		}
	}

	t.ID = id
	return id, nil
}

// UpdateTemplate overwrites the template's mutable fields and bumps the
// modification time.
func (q *queries) UpdateTemplate(ctx context.Context, t *store.ProductTemplate) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE product_templates
		SET name = ?, reference_code = ?, description_html = ?, category_id = ?,
		    published = ?, purchasable = ?, dropship_route = ?, primary_image = ?,
		    remote_updated_at = ?, synced_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.ReferenceCode, t.DescriptionHTML, t.CategoryID,
		boolToInt(t.Published), boolToInt(t.Purchasable), t.DropshipRoute, t.PrimaryImage,
		unixOrZero(t.RemoteUpdatedAt), unixOrZero(t.SyncedAt), time.Now().Unix(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireAffected(res)
}

// AddTemplateTag attaches a tag to a template; idempotent.
func (q *queries) AddTemplateTag(ctx context.Context, templateID int64, tag string) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO template_tags (template_id, tag) VALUES (?, ?)",
		templateID, tag)
	if err != nil {
		return fmt.Errorf("failed to add template tag: %w", err)
	}
	return nil
}

// SetTemplateSyncState stamps the remote bookkeeping fields without bumping
// the local modification time, so a push does not schedule itself again.
func (q *queries) SetTemplateSyncState(ctx context.Context, templateID int64, remoteUpdatedAt, syncedAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE product_templates SET remote_updated_at = ?, synced_at = ? WHERE id = ?",
		unixOrZero(remoteUpdatedAt), unixOrZero(syncedAt), templateID)
	if err != nil {
		return fmt.Errorf("failed to set template sync state: %w", err)
	}
	return requireAffected(res)
}

// ListUntaggedTemplates retrieves templates carrying no tag with the prefix.
func (q *queries) ListUntaggedTemplates(ctx context.Context, prefix string, limit int) ([]*store.ProductTemplate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM product_templates
		WHERE id NOT IN (SELECT template_id FROM template_tags WHERE tag LIKE ? ESCAPE '\')
		ORDER BY id
		LIMIT ?`, templateColumns)
	return q.listTemplates(ctx, query, likePrefix(prefix), limit)
}

// ListTaggedTemplates retrieves templates carrying a tag with the prefix,
// oldest modification first.
func (q *queries) ListTaggedTemplates(ctx context.Context, prefix string, limit int) ([]*store.ProductTemplate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM product_templates
		WHERE id IN (SELECT template_id FROM template_tags WHERE tag LIKE ? ESCAPE '\')
		ORDER BY updated_at, id
		LIMIT ?`, templateColumns)
	return q.listTemplates(ctx, query, likePrefix(prefix), limit)
}

// DeleteTemplatesByTagPrefix removes templates whose every tag matches the
// prefix. Templates that also carry unrelated tags are left alone.
func (q *queries) DeleteTemplatesByTagPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM product_templates
		WHERE id IN (SELECT template_id FROM template_tags WHERE tag LIKE ? ESCAPE '\')
		  AND id NOT IN (SELECT template_id FROM template_tags WHERE tag NOT LIKE ? ESCAPE '\')`,
		likePrefix(prefix), likePrefix(prefix))
	if err != nil {
		return 0, fmt.Errorf("failed to delete templates by tag prefix: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted templates: %w", err)
	}
	return n, nil
}

// CountTemplates returns the total template count.
func (q *queries) CountTemplates(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM product_templates").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return n, nil
}

const variantColumns = "id, template_id, name, sku, barcode, price, weight, created_at, updated_at"

func (q *queries) variantTags(ctx context.Context, variantID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT tag FROM variant_tags WHERE variant_id = ? ORDER BY tag", variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (q *queries) getVariant(ctx context.Context, where string, args ...any) (*store.ProductVariant, error) {
	query := fmt.Sprintf("SELECT %s FROM product_variants WHERE %s", variantColumns, where)

	var v store.ProductVariant
	var created, updated int64
	err := q.db.QueryRowContext(ctx, query, args...).Scan(
		&v.ID, &v.TemplateID, &v.Name, &v.SKU, &v.Barcode, &v.Price, &v.Weight,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}

	v.CreatedAt = timeOrZero(created)
	v.UpdatedAt = timeOrZero(updated)
	if v.Tags, err = q.variantTags(ctx, v.ID); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVariantByTag retrieves the variant carrying the given tag.
func (q *queries) GetVariantByTag(ctx context.Context, tag string) (*store.ProductVariant, error) {
	return q.getVariant(ctx,
		"id = (SELECT variant_id FROM variant_tags WHERE tag = ? LIMIT 1)", tag)
}

// GetVariantBySKU retrieves the variant with the given SKU. An ambiguous SKU
// (shared by several variants) counts as not found.
func (q *queries) GetVariantBySKU(ctx context.Context, sku string) (*store.ProductVariant, error) {
	if sku == "" {
		return nil, store.ErrNotFound
	}

	var n int
	if err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM product_variants WHERE sku = ?", sku).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to count variants by sku: %w", err)
	}
	if n != 1 {
		return nil, store.ErrNotFound
	}
	return q.getVariant(ctx, "sku = ?", sku)
}

// BarcodeInUse reports whether another variant already holds the barcode.
func (q *queries) BarcodeInUse(ctx context.Context, barcode string, excludeVariantID int64) (bool, error) {
	if barcode == "" {
		return false, nil
	}
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM product_variants WHERE barcode = ? AND id != ?",
		barcode, excludeVariantID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return n > 0, nil
}

func (q *queries) listVariants(ctx context.Context, query string, args ...any) ([]*store.ProductVariant, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var out []*store.ProductVariant
	for rows.Next() {
		var v store.ProductVariant
		var created, updated int64
		err := rows.Scan(&v.ID, &v.TemplateID, &v.Name, &v.SKU, &v.Barcode, &v.Price, &v.Weight,
			&created, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.CreatedAt = timeOrZero(created)
		v.UpdatedAt = timeOrZero(updated)
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, v := range out {
		if v.Tags, err = q.variantTags(ctx, v.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListVariantsByTemplate retrieves all variants of a template.
func (q *queries) ListVariantsByTemplate(ctx context.Context, templateID int64) ([]*store.ProductVariant, error) {
	query := fmt.Sprintf("SELECT %s FROM product_variants WHERE template_id = ? ORDER BY id", variantColumns)
	return q.listVariants(ctx, query, templateID)
}

// ListTaggedVariants retrieves variants carrying a tag with the prefix.
func (q *queries) ListTaggedVariants(ctx context.Context, prefix string, limit int) ([]*store.ProductVariant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM product_variants
		WHERE id IN (SELECT variant_id FROM variant_tags WHERE tag LIKE ? ESCAPE '\')
		ORDER BY id
		LIMIT ?`, variantColumns)
	return q.listVariants(ctx, query, likePrefix(prefix), limit)
}

// CreateVariant inserts a new variant, including any tags it carries.
func (q *queries) CreateVariant(ctx context.Context, v *store.ProductVariant) (int64, error) {
	now := time.Now().Unix()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO product_variants (template_id, name, sku, barcode, price, weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.TemplateID, v.Name, v.SKU, v.Barcode, v.Price, v.Weight, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create variant: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get variant id: %w", err)
	}

	for _, tag := range v.Tags {
		if err := q.AddVariantTag(ctx, id, tag); err != nil {
			return 0, err
		}
	}

	v.ID = id
	return id, nil
}

// UpdateVariant overwrites the variant's mutable fields.
func (q *queries) UpdateVariant(ctx context.Context, v *store.ProductVariant) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE product_variants
		SET name = ?, sku = ?, barcode = ?, price = ?, weight = ?, updated_at = ?
		WHERE id = ?`,
		v.Name, v.SKU, v.Barcode, v.Price, v.Weight, time.Now().Unix(), v.ID)
	if err != nil {
		return fmt.Errorf("failed to update variant: %w", err)
	}
	return requireAffected(res)
}

// AddVariantTag attaches a tag to a variant; idempotent.
func (q *queries) AddVariantTag(ctx context.Context, variantID int64, tag string) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO variant_tags (variant_id, tag) VALUES (?, ?)",
		variantID, tag)
	if err != nil {
		return fmt.Errorf("failed to add variant tag: %w", err)
	}
	return nil
}

// requireAffected converts a zero-row update into ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// likePrefix escapes LIKE metacharacters in a literal prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
