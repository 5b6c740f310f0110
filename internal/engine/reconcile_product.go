package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
)

// reconcileProduct upserts one remote product into the local store. It runs
// inside a savepoint; any returned error rolls back only this product's
// writes.
func (e *Engine) reconcileProduct(ctx context.Context, rec store.Records, p *shopify.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tag := productTag(p.ID)
	tmpl, err := e.resolveTemplate(ctx, rec, p.Title, tag)
	if err != nil {
		return err
	}

	categoryID, err := e.resolveCategory(ctx, rec, p.ProductType)
	if err != nil {
		return err
	}

	vendorID, err := e.resolveVendor(ctx, rec, p.Vendor)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	if tmpl == nil {
		tmpl = &store.ProductTemplate{
			ReferenceCode: tag,
			Purchasable:   true,
			Tags:          []string{tag},
		}
		e.applyProductFields(tmpl, p, categoryID, vendorID, now)
		if _, err := rec.CreateTemplate(ctx, tmpl); err != nil {
			return err
		}
		e.logger.Info("created product template", "remote_id", p.ID, "template_id", tmpl.ID, "title", p.Title)
	} else {
		e.applyProductFields(tmpl, p, categoryID, vendorID, now)
		if err := rec.UpdateTemplate(ctx, tmpl); err != nil {
			return err
		}
		e.logger.Debug("updated product template", "remote_id", p.ID, "template_id", tmpl.ID)
	}

	// vendor links are additive: a sync pass adds, never removes
	if vendorID != 0 {
		if err := rec.LinkVendor(ctx, tmpl.ID, vendorID); err != nil {
			return err
		}
	}

	if err := e.reconcileAttributes(ctx, rec, tmpl.ID, p); err != nil {
		return err
	}

	for i := range p.Variants {
		if err := e.reconcileVariant(ctx, rec, tmpl, &p.Variants[i]); err != nil {
			return err
		}
	}

	return e.attachPrimaryImage(ctx, rec, tmpl, p)
}

// resolveTemplate implements the resolution order: external tag, then name
// among untagged records (adopt), then name among records with a different
// tag (ambiguity, skip), else nil for the create path.
func (e *Engine) resolveTemplate(ctx context.Context, rec store.Records, title, tag string) (*store.ProductTemplate, error) {
	tmpl, err := rec.GetTemplateByTag(ctx, tag)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	candidates, err := rec.FindTemplatesByName(ctx, title)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if !c.HasTagPrefix(tagPrefix) {
			// manually created local record with the same name: adopt
			// it instead of creating a duplicate
			if err := rec.AddTemplateTag(ctx, c.ID, tag); err != nil {
				return nil, err
			}
			c.Tags = append(c.Tags, tag)
			e.logger.Info("adopted local product by name", "template_id", c.ID, "tag", tag)
			return c, nil
		}
	}

	for _, c := range candidates {
		existing, ok := templateExternalID(c.Tags)
		if ok {
			return nil, &AmbiguityError{Name: title, ExistingTag: productTag(existing)}
		}
	}

	return nil, nil
}

// applyProductFields merges remote fields last-writer-wins. Associations
// (vendor links, attributes, route) are handled additively elsewhere.
func (e *Engine) applyProductFields(tmpl *store.ProductTemplate, p *shopify.Product, categoryID, vendorID int64, now time.Time) {
	tmpl.Name = p.Title
	tmpl.DescriptionHTML = p.BodyHTML
	if categoryID != 0 {
		tmpl.CategoryID = categoryID
	}
	if e.flags.AutoPublish {
		tmpl.Published = p.Status == "active"
	}
	// dropship routing is additive: set once when a vendor appears
	if vendorID != 0 && tmpl.DropshipRoute == "" {
		tmpl.DropshipRoute = dropshipRoute
	}
	tmpl.RemoteUpdatedAt = p.UpdatedAt
	tmpl.SyncedAt = now
}

// resolveCategory gets or creates the category for a product type. Matching
// is case-sensitive and global, so one category is shared by every product
// with the same type.
func (e *Engine) resolveCategory(ctx context.Context, rec store.Records, productType string) (int64, error) {
	if productType == "" {
		return 0, nil
	}
	c, err := rec.GetCategoryByName(ctx, productType)
	if err == nil {
		return c.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return rec.CreateCategory(ctx, productType)
}

// resolveVendor gets or creates the vendor record by exact name.
func (e *Engine) resolveVendor(ctx context.Context, rec store.Records, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	v, err := rec.GetVendorByName(ctx, name)
	if err == nil {
		return v.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return rec.CreateVendor(ctx, &store.Vendor{Name: name})
}

// reconcileAttributes creates the option axes and values and links them to
// the template's attribute lines. Values are never assigned to variant
// combinations; the linkage stops at the template level.
func (e *Engine) reconcileAttributes(ctx context.Context, rec store.Records, templateID int64, p *shopify.Product) error {
	for _, opt := range p.Options {
		if opt.Name == "" || opt.Name == "Title" {
			continue
		}

		attrID, err := e.resolveAttribute(ctx, rec, opt.Name)
		if err != nil {
			return err
		}

		for _, value := range opt.Values {
			if value == "" || value == "Default Title" {
				continue
			}
			valueID, err := e.resolveAttributeValue(ctx, rec, attrID, value)
			if err != nil {
				return err
			}
			if err := rec.LinkTemplateAttributeValue(ctx, templateID, attrID, valueID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) resolveAttribute(ctx context.Context, rec store.Records, name string) (int64, error) {
	a, err := rec.GetAttributeByName(ctx, name)
	if err == nil {
		return a.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return rec.CreateAttribute(ctx, name)
}

func (e *Engine) resolveAttributeValue(ctx context.Context, rec store.Records, attributeID int64, value string) (int64, error) {
	v, err := rec.GetAttributeValue(ctx, attributeID, value)
	if err == nil {
		return v.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return rec.CreateAttributeValue(ctx, attributeID, value)
}

// reconcileVariant upserts one remote variant under the given template.
// Resolution: own external tag first; a tagged variant under a different
// template is never moved. Otherwise the template's untagged default variant
// is adopted in place, falling back to creation.
func (e *Engine) reconcileVariant(ctx context.Context, rec store.Records, tmpl *store.ProductTemplate, rv *shopify.Variant) error {
	vtag := variantTag(rv.ID)

	local, err := rec.GetVariantByTag(ctx, vtag)
	switch {
	case err == nil && local.TemplateID == tmpl.ID:
		// update in place below
	case err == nil:
		e.logger.Warn("variant tag belongs to another template, not moving it",
			"tag", vtag, "owner_template", local.TemplateID, "target_template", tmpl.ID)
		local = nil
	case errors.Is(err, store.ErrNotFound):
		local = nil
	default:
		return err
	}

	if local == nil {
		local, err = e.adoptDefaultVariant(ctx, rec, tmpl.ID, vtag)
		if err != nil {
			return err
		}
	}

	if local == nil {
		created := &store.ProductVariant{
			TemplateID: tmpl.ID,
			Tags:       []string{vtag},
		}
		e.applyVariantFields(ctx, rec, created, rv)
		if _, err := rec.CreateVariant(ctx, created); err != nil {
			// last resort: a minimal variant so the template still has
			// a purchasable entry
			e.logger.Warn("full variant creation failed, creating minimal variant",
				"tag", vtag, "error", err)
			minimal := &store.ProductVariant{
				TemplateID: tmpl.ID,
				Name:       rv.Title,
				Tags:       []string{vtag},
			}
			if _, err := rec.CreateVariant(ctx, minimal); err != nil {
				return err
			}
			local = minimal
		} else {
			local = created
		}
	} else {
		e.applyVariantFields(ctx, rec, local, rv)
		if err := rec.UpdateVariant(ctx, local); err != nil {
			return err
		}
	}

	// inventory intake: a positive remote quantity becomes a stock quant
	if rv.InventoryQuantity > 0 {
		if err := rec.SetStockQuant(ctx, local.ID, float64(rv.InventoryQuantity)); err != nil {
			return err
		}
	}
	return nil
}

// adoptDefaultVariant finds the template's first variant without an external
// tag and stamps the tag on it, so templates created locally (or adopted by
// name) reuse their existing default variant instead of growing a duplicate.
func (e *Engine) adoptDefaultVariant(ctx context.Context, rec store.Records, templateID int64, vtag string) (*store.ProductVariant, error) {
	existing, err := rec.ListVariantsByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	for _, v := range existing {
		if _, tagged := variantExternalID(v.Tags); tagged {
			continue
		}
		if err := rec.AddVariantTag(ctx, v.ID, vtag); err != nil {
			return nil, err
		}
		v.Tags = append(v.Tags, vtag)
		e.logger.Info("adopted default variant", "variant_id", v.ID, "tag", vtag)
		return v, nil
	}
	return nil, nil
}

// applyVariantFields merges remote variant fields last-writer-wins. Barcode
// assignment is skipped when another variant already holds the barcode, to
// trade completeness for not failing the record.
func (e *Engine) applyVariantFields(ctx context.Context, rec store.Records, local *store.ProductVariant, rv *shopify.Variant) {
	if rv.Title != "" && rv.Title != "Default Title" {
		local.Name = rv.Title
	}
	local.SKU = rv.SKU
	local.Price = shopify.ParsePrice(rv.Price)
	local.Weight = rv.Weight

	if rv.Barcode != "" {
		inUse, err := rec.BarcodeInUse(ctx, rv.Barcode, local.ID)
		if err != nil {
			e.logger.Warn("barcode lookup failed, leaving barcode unset", "barcode", rv.Barcode, "error", err)
		} else if inUse {
			e.logger.Warn("barcode already in use, skipping assignment",
				"barcode", rv.Barcode, "variant_id", local.ID)
		} else {
			local.Barcode = rv.Barcode
		}
	}
}

// attachPrimaryImage downloads the first image and stores it on the
// template. Additional images are intentionally not persisted, and a failed
// download is logged but never fails the record.
func (e *Engine) attachPrimaryImage(ctx context.Context, rec store.Records, tmpl *store.ProductTemplate, p *shopify.Product) error {
	if len(p.Images) == 0 || p.Images[0].Src == "" {
		return nil
	}

	data, err := e.remote.DownloadImage(ctx, p.Images[0].Src)
	if err != nil {
		e.logger.Warn("primary image download failed",
			"remote_id", p.ID, "src", p.Images[0].Src, "error", err)
		return nil
	}

	tmpl.PrimaryImage = data
	if err := rec.UpdateTemplate(ctx, tmpl); err != nil {
		return fmt.Errorf("failed to store primary image: %w", err)
	}
	return nil
}
