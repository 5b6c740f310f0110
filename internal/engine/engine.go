// Package engine implements the synchronization passes between the remote
// platform and the local record store: inbound product/order reconciliation,
// outbound export and update pushes, cursor advancement, and per-record
// failure isolation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopbridge/shopbridge/internal/cursor"
	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
)

const (
	// batchSize bounds one fetch/pass so an invocation stays time-boxed.
	batchSize = 10

	// External reference tags embed remote numeric ids in local records.
	tagPrefix            = "SHOPIFY_"
	variantTagPrefix     = "SHOPIFY_VAR_"
	placeholderTagPrefix = "SHOPIFY_UNKNOWN_"

	dropshipRoute = "dropship"

	// orderFirstRunWindow bounds the first order fetch when no watermark
	// exists yet.
	orderFirstRunWindow = 30 * 24 * time.Hour
)

// Remote is the slice of the platform API the engine needs. *shopify.Client
// satisfies it; tests substitute fakes.
type Remote interface {
	FetchProducts(ctx context.Context, q shopify.ProductQuery) (*shopify.ProductPage, error)
	FetchOrders(ctx context.Context, q shopify.OrderQuery) (*shopify.OrderPage, error)
	CreateProduct(ctx context.Context, p shopify.ProductPayload) (*shopify.Product, error)
	UpdateProduct(ctx context.Context, id int64, p shopify.ProductPayload) error
	UpdateVariant(ctx context.Context, id int64, v shopify.VariantPayload) error
	GetVariant(ctx context.Context, id int64) (*shopify.Variant, error)
	ListLocations(ctx context.Context) ([]shopify.Location, error)
	SetInventoryLevel(ctx context.Context, locationID, inventoryItemID, available int64) error
	DownloadImage(ctx context.Context, src string) ([]byte, error)
}

// Flags are the feature switches read from the config store.
type Flags struct {
	AutoPublish      bool
	AutoExport       bool
	InvoiceOnPayment bool
	CreatePortalUser bool
}

// Engine runs sync passes. Entry points never return an error: every failure
// is folded into the RunReport so an external scheduler is never
// short-circuited.
type Engine struct {
	remote  Remote
	store   store.Store
	cursors *cursor.Manager
	flags   Flags
	pageCap int
	logger  *slog.Logger
}

// New creates an engine. By default each invocation issues a single fetch;
// SetPageCap raises that for chunked catch-up runs.
func New(remote Remote, st store.Store, cursors *cursor.Manager, flags Flags, logger *slog.Logger) *Engine {
	return &Engine{
		remote:  remote,
		store:   st,
		cursors: cursors,
		flags:   flags,
		pageCap: 1,
		logger:  logger,
	}
}

// SetPageCap allows up to n continuation-token pages within one invocation.
func (e *Engine) SetPageCap(n int) {
	if n > 0 {
		e.pageCap = n
	}
}

// RunReport is the outcome of one engine invocation.
type RunReport struct {
	Kind      string
	Direction string
	Status    string
	Succeeded int64
	Failed    int64
	Skipped   int64
	Message   string
}

// OK reports whether the run completed without a batch-level failure.
func (r RunReport) OK() bool {
	return r.Status == store.SyncRunCompleted
}

// SyncProducts pulls one bounded batch of remote products and reconciles
// them into local templates and variants.
func (e *Engine) SyncProducts(ctx context.Context) RunReport {
	report := RunReport{Kind: "product", Direction: "inbound", Status: store.SyncRunCompleted}
	runID := e.startRun(ctx, &report)

	for page := 0; page < e.pageCap; page++ {
		q := shopify.ProductQuery{Limit: batchSize}
		if err := e.prepareProductQuery(ctx, &q); err != nil {
			e.failRun(&report, err)
			break
		}

		fetched, err := e.remote.FetchProducts(ctx, q)
		if err != nil {
			e.failRun(&report, &FetchError{Op: "products", Err: err})
			break
		}
		if len(fetched.Products) == 0 {
			if err := e.cursors.ClearPageToken(ctx, cursor.KindProduct); err != nil {
				e.failRun(&report, err)
			}
			break
		}

		maxTS, err := e.reconcileProductBatch(ctx, fetched.Products, &report)
		if err != nil {
			e.failRun(&report, err)
			break
		}

		if err := e.advanceAfterPage(ctx, cursor.KindProduct, maxTS, fetched.NextPageToken); err != nil {
			e.failRun(&report, err)
			break
		}
		if fetched.NextPageToken == "" {
			break
		}
	}

	e.finishRun(ctx, runID, &report)
	return report
}

// SyncOrders pulls one bounded batch of remote orders and mirrors the new
// ones locally, driving payment side effects.
func (e *Engine) SyncOrders(ctx context.Context) RunReport {
	report := RunReport{Kind: "order", Direction: "inbound", Status: store.SyncRunCompleted}
	runID := e.startRun(ctx, &report)

	for page := 0; page < e.pageCap; page++ {
		q := shopify.OrderQuery{Limit: batchSize}
		if err := e.prepareOrderQuery(ctx, &q); err != nil {
			e.failRun(&report, err)
			break
		}

		fetched, err := e.remote.FetchOrders(ctx, q)
		if err != nil {
			e.failRun(&report, &FetchError{Op: "orders", Err: err})
			break
		}
		if len(fetched.Orders) == 0 {
			if err := e.cursors.ClearPageToken(ctx, cursor.KindOrder); err != nil {
				e.failRun(&report, err)
			}
			break
		}

		maxTS, err := e.reconcileOrderBatch(ctx, fetched.Orders, &report)
		if err != nil {
			e.failRun(&report, err)
			break
		}

		if err := e.advanceAfterPage(ctx, cursor.KindOrder, maxTS, fetched.NextPageToken); err != nil {
			e.failRun(&report, err)
			break
		}
		if fetched.NextPageToken == "" {
			break
		}
	}

	e.finishRun(ctx, runID, &report)
	return report
}

// prepareProductQuery loads the continuation token or the watermark filter.
// A missing watermark falls back to the first-run window: products created
// since January 1 of the current year.
func (e *Engine) prepareProductQuery(ctx context.Context, q *shopify.ProductQuery) error {
	token, err := e.cursors.PageToken(ctx, cursor.KindProduct)
	if err != nil {
		return err
	}
	if token != "" {
		q.PageToken = token
		return nil
	}

	wm, ok, err := e.cursors.Watermark(ctx, cursor.KindProduct, cursor.Inbound)
	if err != nil {
		return err
	}
	if ok {
		q.UpdatedAtMin = wm
	} else {
		now := time.Now().UTC()
		q.CreatedAtMin = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return nil
}

// prepareOrderQuery mirrors prepareProductQuery with a 30-day first-run
// window.
func (e *Engine) prepareOrderQuery(ctx context.Context, q *shopify.OrderQuery) error {
	token, err := e.cursors.PageToken(ctx, cursor.KindOrder)
	if err != nil {
		return err
	}
	if token != "" {
		q.PageToken = token
		return nil
	}

	wm, ok, err := e.cursors.Watermark(ctx, cursor.KindOrder, cursor.Inbound)
	if err != nil {
		return err
	}
	if ok {
		q.UpdatedAtMin = wm
	} else {
		q.CreatedAtMin = time.Now().UTC().Add(-orderFirstRunWindow)
	}
	return nil
}

// reconcileProductBatch runs every product of a page under its own savepoint
// inside one transaction, so the page's watermark commits atomically with
// its records or not at all.
func (e *Engine) reconcileProductBatch(ctx context.Context, products []shopify.Product, report *RunReport) (time.Time, error) {
	batch, err := e.store.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		_ = batch.Rollback()
	}()

	var maxTS time.Time
	for i := range products {
		p := &products[i]
		if p.UpdatedAt.After(maxTS) {
			maxTS = p.UpdatedAt
		}

		err := batch.Savepoint(ctx, func() error {
			return e.reconcileProduct(ctx, batch, p)
		})
		if err != nil {
			var ambiguous *AmbiguityError
			if errors.As(err, &ambiguous) {
				report.Skipped++
				e.logger.Warn("skipping ambiguous product",
					"remote_id", p.ID, "title", p.Title, "existing_tag", ambiguous.ExistingTag)
				continue
			}
			report.Failed++
			e.logger.Error("product reconciliation failed",
				"error", &ReconcileError{Kind: "product", RemoteID: p.ID, Title: p.Title, Err: err})
			continue
		}
		report.Succeeded++
	}

	if err := batch.Commit(); err != nil {
		return time.Time{}, err
	}
	return maxTS, nil
}

// reconcileOrderBatch mirrors reconcileProductBatch for orders.
func (e *Engine) reconcileOrderBatch(ctx context.Context, orders []shopify.Order, report *RunReport) (time.Time, error) {
	batch, err := e.store.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		_ = batch.Rollback()
	}()

	var maxTS time.Time
	for i := range orders {
		o := &orders[i]
		if o.UpdatedAt.After(maxTS) {
			maxTS = o.UpdatedAt
		}

		err := batch.Savepoint(ctx, func() error {
			return e.reconcileOrder(ctx, batch, o)
		})
		if err != nil {
			report.Failed++
			e.logger.Error("order reconciliation failed",
				"error", &ReconcileError{Kind: "order", RemoteID: o.ID, Title: o.Name, Err: err})
			continue
		}
		report.Succeeded++
	}

	if err := batch.Commit(); err != nil {
		return time.Time{}, err
	}
	return maxTS, nil
}

// advanceAfterPage moves the watermark to the page's maximum timestamp and
// saves the continuation token, after the page's records are durable.
func (e *Engine) advanceAfterPage(ctx context.Context, kind cursor.Kind, maxTS time.Time, nextToken string) error {
	if !maxTS.IsZero() {
		if err := e.cursors.Advance(ctx, kind, cursor.Inbound, maxTS); err != nil {
			return err
		}
	}
	return e.cursors.SetPageToken(ctx, kind, nextToken)
}

func (e *Engine) startRun(ctx context.Context, report *RunReport) int64 {
	e.logger.Info("sync run starting", "kind", report.Kind, "direction", report.Direction)
	runID, err := e.store.StartSyncRun(ctx, report.Kind, report.Direction)
	if err != nil {
		e.logger.Error("failed to record sync run start", "error", err)
		return 0
	}
	return runID
}

func (e *Engine) failRun(report *RunReport, err error) {
	report.Status = store.SyncRunError
	report.Message = err.Error()
	e.logger.Error("sync run failed", "kind", report.Kind, "direction", report.Direction, "error", err)
}

func (e *Engine) finishRun(ctx context.Context, runID int64, report *RunReport) {
	e.logger.Info("sync run finished",
		"kind", report.Kind, "direction", report.Direction, "status", report.Status,
		"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	if runID == 0 {
		return
	}
	if err := e.store.FinishSyncRun(ctx, runID, report.Status, report.Succeeded, report.Failed, report.Message); err != nil {
		e.logger.Error("failed to record sync run outcome", "error", err)
	}
}

func productTag(remoteID int64) string {
	return fmt.Sprintf("%s%d", tagPrefix, remoteID)
}

func variantTag(remoteID int64) string {
	return fmt.Sprintf("%s%d", variantTagPrefix, remoteID)
}

func placeholderTag(lineItemID int64) string {
	return fmt.Sprintf("%s%d", placeholderTagPrefix, lineItemID)
}

// externalID extracts the remote numeric id from a tag with the given
// prefix. Tags with non-numeric suffixes (placeholders) do not match.
func externalID(tag, prefix string) (int64, bool) {
	if !strings.HasPrefix(tag, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(tag[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// templateExternalID finds the remote product id among a template's tags.
func templateExternalID(tags []string) (int64, bool) {
	for _, tag := range tags {
		if strings.HasPrefix(tag, variantTagPrefix) || strings.HasPrefix(tag, placeholderTagPrefix) {
			continue
		}
		if id, ok := externalID(tag, tagPrefix); ok {
			return id, true
		}
	}
	return 0, false
}

// variantExternalID finds the remote variant id among a variant's tags.
func variantExternalID(tags []string) (int64, bool) {
	for _, tag := range tags {
		if id, ok := externalID(tag, variantTagPrefix); ok {
			return id, true
		}
	}
	return 0, false
}
