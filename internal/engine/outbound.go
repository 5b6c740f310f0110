package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/cursor"
	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
)

// ExportProducts creates remote products for local templates that carry no
// external reference yet, then stamps the new reference back onto them.
// Remote creation is not retried, so a failed record is simply reported and
// picked up by the next pass.
func (e *Engine) ExportProducts(ctx context.Context) RunReport {
	report := RunReport{Kind: "product", Direction: "outbound", Status: store.SyncRunCompleted}
	runID := e.startRun(ctx, &report)

	templates, err := e.store.ListUntaggedTemplates(ctx, tagPrefix, batchSize)
	if err != nil {
		e.failRun(&report, err)
		e.finishRun(ctx, runID, &report)
		return report
	}

	for _, tmpl := range templates {
		if err := e.exportTemplate(ctx, tmpl); err != nil {
			report.Failed++
			e.logger.Error("product export failed", "template_id", tmpl.ID, "name", tmpl.Name, "error", err)
			continue
		}
		report.Succeeded++
	}

	e.finishRun(ctx, runID, &report)
	return report
}

func (e *Engine) exportTemplate(ctx context.Context, tmpl *store.ProductTemplate) error {
	variants, err := e.store.ListVariantsByTemplate(ctx, tmpl.ID)
	if err != nil {
		return err
	}

	payload := shopify.ProductPayload{
		Title:    tmpl.Name,
		BodyHTML: tmpl.DescriptionHTML,
		Status:   exportStatus(tmpl.Published),
	}
	for _, v := range variants {
		payload.Variants = append(payload.Variants, shopify.VariantPayload{
			Title:   v.Name,
			Price:   shopify.FormatPrice(v.Price),
			SKU:     v.SKU,
			Barcode: v.Barcode,
			Weight:  v.Weight,
		})
	}

	created, err := e.remote.CreateProduct(ctx, payload)
	if err != nil {
		return err
	}

	if err := e.store.AddTemplateTag(ctx, tmpl.ID, productTag(created.ID)); err != nil {
		return err
	}
	if err := e.stampExportedVariants(ctx, variants, created.Variants); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := e.store.SetTemplateSyncState(ctx, tmpl.ID, created.UpdatedAt, now); err != nil {
		return err
	}

	e.logger.Info("exported product", "template_id", tmpl.ID, "remote_id", created.ID)
	return nil
}

// stampExportedVariants maps created remote variants back to local ones by
// SKU, falling back to position for SKU-less variants.
func (e *Engine) stampExportedVariants(ctx context.Context, local []*store.ProductVariant, remote []shopify.Variant) error {
	bySKU := make(map[string]*store.ProductVariant, len(local))
	for _, v := range local {
		if v.SKU != "" {
			bySKU[v.SKU] = v
		}
	}

	for i := range remote {
		rv := &remote[i]

		var match *store.ProductVariant
		if rv.SKU != "" {
			match = bySKU[rv.SKU]
		}
		if match == nil && i < len(local) {
			match = local[i]
		}
		if match == nil {
			continue
		}

		if err := e.store.AddVariantTag(ctx, match.ID, variantTag(rv.ID)); err != nil {
			return err
		}
	}
	return nil
}

func exportStatus(published bool) string {
	if published {
		return "active"
	}
	return "draft"
}

// PushUpdates pushes locally modified fields of already-linked templates to
// the remote platform, gated by the outbound watermark comparison.
func (e *Engine) PushUpdates(ctx context.Context) RunReport {
	report := RunReport{Kind: "product", Direction: "outbound", Status: store.SyncRunCompleted}
	runID := e.startRun(ctx, &report)
	start := time.Now().UTC()

	watermark, _, err := e.cursors.Watermark(ctx, cursor.KindProduct, cursor.Outbound)
	if err != nil {
		e.failRun(&report, err)
		e.finishRun(ctx, runID, &report)
		return report
	}

	templates, err := e.store.ListTaggedTemplates(ctx, tagPrefix, batchSize)
	if err != nil {
		e.failRun(&report, err)
		e.finishRun(ctx, runID, &report)
		return report
	}

	for _, tmpl := range templates {
		if !shouldPush(tmpl, watermark) {
			report.Skipped++
			continue
		}

		remoteID, ok := templateExternalID(tmpl.Tags)
		if !ok {
			// placeholder product: nothing to push to
			report.Skipped++
			continue
		}

		if err := e.pushTemplate(ctx, tmpl, remoteID); err != nil {
			report.Failed++
			e.logger.Error("update push failed", "template_id", tmpl.ID, "remote_id", remoteID, "error", err)
			continue
		}
		report.Succeeded++
	}

	// the global watermark only advances when nothing was left behind, so
	// failed records stay eligible on the next pass
	if report.Failed == 0 && report.Status == store.SyncRunCompleted {
		if err := e.cursors.Advance(ctx, cursor.KindProduct, cursor.Outbound, start); err != nil {
			e.failRun(&report, err)
		}
	}

	e.finishRun(ctx, runID, &report)
	return report
}

// shouldPush compares the record's local modification time against the later
// of the global outbound watermark and the record's own last confirmed push.
func shouldPush(tmpl *store.ProductTemplate, watermark time.Time) bool {
	threshold := watermark
	if tmpl.SyncedAt.After(threshold) {
		threshold = tmpl.SyncedAt
	}
	return tmpl.UpdatedAt.After(threshold)
}

func (e *Engine) pushTemplate(ctx context.Context, tmpl *store.ProductTemplate, remoteID int64) error {
	payload := shopify.ProductPayload{
		Title:    tmpl.Name,
		BodyHTML: tmpl.DescriptionHTML,
		Status:   exportStatus(tmpl.Published),
	}
	if err := e.remote.UpdateProduct(ctx, remoteID, payload); err != nil {
		return err
	}

	variants, err := e.store.ListVariantsByTemplate(ctx, tmpl.ID)
	if err != nil {
		return err
	}
	for _, v := range variants {
		remoteVarID, ok := variantExternalID(v.Tags)
		if !ok {
			continue
		}
		err := e.remote.UpdateVariant(ctx, remoteVarID, shopify.VariantPayload{
			Price:   shopify.FormatPrice(v.Price),
			SKU:     v.SKU,
			Barcode: v.Barcode,
			Weight:  v.Weight,
		})
		if err != nil {
			return err
		}
	}

	// stamp the confirmed push so the record stops scheduling itself
	now := time.Now().UTC()
	return e.store.SetTemplateSyncState(ctx, tmpl.ID, now, now)
}

// PushInventory sets remote inventory levels from local stock quants for
// every linked variant, at the shop's first location.
func (e *Engine) PushInventory(ctx context.Context) RunReport {
	report := RunReport{Kind: "inventory", Direction: "outbound", Status: store.SyncRunCompleted}
	runID := e.startRun(ctx, &report)

	variants, err := e.store.ListTaggedVariants(ctx, variantTagPrefix, batchSize)
	if err != nil {
		e.failRun(&report, err)
		e.finishRun(ctx, runID, &report)
		return report
	}
	if len(variants) == 0 {
		e.finishRun(ctx, runID, &report)
		return report
	}

	locations, err := e.remote.ListLocations(ctx)
	if err != nil {
		e.failRun(&report, &FetchError{Op: "locations", Err: err})
		e.finishRun(ctx, runID, &report)
		return report
	}
	if len(locations) == 0 {
		e.failRun(&report, fmt.Errorf("remote shop has no inventory locations"))
		e.finishRun(ctx, runID, &report)
		return report
	}
	location := locations[0]

	for _, v := range variants {
		if err := e.pushVariantInventory(ctx, v, location.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				report.Skipped++
				continue
			}
			report.Failed++
			e.logger.Error("inventory push failed", "variant_id", v.ID, "error", err)
			continue
		}
		report.Succeeded++
	}

	e.finishRun(ctx, runID, &report)
	return report
}

func (e *Engine) pushVariantInventory(ctx context.Context, v *store.ProductVariant, locationID int64) error {
	quant, err := e.store.GetStockQuant(ctx, v.ID)
	if err != nil {
		return err
	}

	remoteVarID, ok := variantExternalID(v.Tags)
	if !ok {
		return store.ErrNotFound
	}

	remoteVariant, err := e.remote.GetVariant(ctx, remoteVarID)
	if err != nil {
		return err
	}
	if remoteVariant.InventoryItemID == 0 {
		return fmt.Errorf("remote variant %d has no inventory item", remoteVarID)
	}

	return e.remote.SetInventoryLevel(ctx, locationID, remoteVariant.InventoryItemID, int64(quant.Quantity))
}
