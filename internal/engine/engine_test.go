package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopbridge/shopbridge/internal/config/boltdb"
	"github.com/shopbridge/shopbridge/internal/cursor"
	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
	"github.com/shopbridge/shopbridge/internal/store/sqlite"
)

// fakeRemote implements Remote against in-memory fixtures.
type fakeRemote struct {
	productPages []shopify.ProductPage
	orderPages   []shopify.OrderPage
	fetchErr     error

	images    map[string][]byte
	locations []shopify.Location
	variants  map[int64]*shopify.Variant

	nextID          int64
	createdProducts []shopify.ProductPayload
	updatedProducts map[int64]shopify.ProductPayload
	updatedVariants map[int64]shopify.VariantPayload
	inventorySets   []inventorySet

	productFetches int
	orderFetches   int
}

type inventorySet struct {
	LocationID      int64
	InventoryItemID int64
	Available       int64
}

func (f *fakeRemote) FetchProducts(_ context.Context, _ shopify.ProductQuery) (*shopify.ProductPage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.productFetches >= len(f.productPages) {
		return &shopify.ProductPage{}, nil
	}
	page := f.productPages[f.productFetches]
	f.productFetches++
	return &page, nil
}

func (f *fakeRemote) FetchOrders(_ context.Context, _ shopify.OrderQuery) (*shopify.OrderPage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.orderFetches >= len(f.orderPages) {
		return &shopify.OrderPage{}, nil
	}
	page := f.orderPages[f.orderFetches]
	f.orderFetches++
	return &page, nil
}

func (f *fakeRemote) CreateProduct(_ context.Context, p shopify.ProductPayload) (*shopify.Product, error) {
	f.createdProducts = append(f.createdProducts, p)
	f.nextID++
	created := &shopify.Product{
		ID:        9000 + f.nextID,
		Title:     p.Title,
		UpdatedAt: time.Now().UTC(),
	}
	for i, v := range p.Variants {
		created.Variants = append(created.Variants, shopify.Variant{
			ID:  created.ID*10 + int64(i),
			SKU: v.SKU,
		})
	}
	return created, nil
}

func (f *fakeRemote) UpdateProduct(_ context.Context, id int64, p shopify.ProductPayload) error {
	if f.updatedProducts == nil {
		f.updatedProducts = make(map[int64]shopify.ProductPayload)
	}
	f.updatedProducts[id] = p
	return nil
}

func (f *fakeRemote) UpdateVariant(_ context.Context, id int64, v shopify.VariantPayload) error {
	if f.updatedVariants == nil {
		f.updatedVariants = make(map[int64]shopify.VariantPayload)
	}
	f.updatedVariants[id] = v
	return nil
}

func (f *fakeRemote) GetVariant(_ context.Context, id int64) (*shopify.Variant, error) {
	v, ok := f.variants[id]
	if !ok {
		return nil, fmt.Errorf("variant %d not found", id)
	}
	return v, nil
}

func (f *fakeRemote) ListLocations(_ context.Context) ([]shopify.Location, error) {
	return f.locations, nil
}

func (f *fakeRemote) SetInventoryLevel(_ context.Context, locationID, inventoryItemID, available int64) error {
	f.inventorySets = append(f.inventorySets, inventorySet{locationID, inventoryItemID, available})
	return nil
}

func (f *fakeRemote) DownloadImage(_ context.Context, src string) ([]byte, error) {
	data, ok := f.images[src]
	if !ok {
		return nil, fmt.Errorf("image %s unavailable", src)
	}
	return data, nil
}

type testEnv struct {
	engine  *Engine
	store   *sqlite.Storage
	cursors *cursor.Manager
	remote  *fakeRemote
}

func setupEngine(t *testing.T, remote *fakeRemote, flags Flags) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfgStore, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfgStore.Close() })

	cursors := cursor.NewManager(cfgStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		engine:  New(remote, st, cursors, flags, logger),
		store:   st,
		cursors: cursors,
		remote:  remote,
	}
}

func widgetProduct(updatedAt time.Time, price string) shopify.Product {
	return shopify.Product{
		ID:          100,
		Title:       "Widget",
		Vendor:      "Acme",
		ProductType: "Tools",
		Status:      "active",
		UpdatedAt:   updatedAt,
		Variants: []shopify.Variant{
			{ID: 200, ProductID: 100, Title: "Default Title", SKU: "W-1", Price: price},
		},
	}
}

func TestSyncProducts_IdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{
			{Products: []shopify.Product{widgetProduct(ts, "9.99")}},
			{Products: []shopify.Product{widgetProduct(ts.Add(time.Hour), "12.50")}},
		},
	}, Flags{})

	report := env.engine.SyncProducts(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(1), report.Succeeded)

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.NoError(t, err)
	assert.Equal(t, "Widget", tmpl.Name)

	variant, err := env.store.GetVariantByTag(ctx, "SHOPIFY_VAR_200")
	require.NoError(t, err)
	assert.InDelta(t, 9.99, variant.Price, 0.001)

	// second pass updates in place, never duplicates
	report = env.engine.SyncProducts(ctx)
	require.True(t, report.OK(), report.Message)

	count, err := env.store.CountTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	variants, err := env.store.ListVariantsByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.InDelta(t, 12.50, variants[0].Price, 0.001)

	links, err := env.store.ListVendorLinks(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1, "vendor link must not duplicate")
}

func TestSyncProducts_VendorAdditiveMerge(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := widgetProduct(ts, "9.99")
	second := widgetProduct(ts.Add(time.Hour), "9.99")
	second.Vendor = "Globex"

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{
			{Products: []shopify.Product{first}},
			{Products: []shopify.Product{second}},
		},
	}, Flags{})

	require.True(t, env.engine.SyncProducts(ctx).OK())
	require.True(t, env.engine.SyncProducts(ctx).OK())

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.NoError(t, err)

	links, err := env.store.ListVendorLinks(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2, "both vendors must stay linked")
}

func TestSyncProducts_WatermarkAdvancesToMaxTimestamp(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	p1 := widgetProduct(t1, "9.99")
	p2 := widgetProduct(t2, "5.00")
	p2.ID = 101
	p2.Title = "Gadget"
	p2.Variants = nil

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{p1, p2}}},
	}, Flags{})

	require.True(t, env.engine.SyncProducts(ctx).OK())

	wm, ok, err := env.cursors.Watermark(ctx, cursor.KindProduct, cursor.Inbound)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.Equal(t2))
}

func TestSyncProducts_FetchFailureLeavesWatermark(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, &fakeRemote{fetchErr: errors.New("boom")}, Flags{})

	before := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.cursors.Advance(ctx, cursor.KindProduct, cursor.Inbound, before))

	report := env.engine.SyncProducts(ctx)
	assert.False(t, report.OK())
	assert.Contains(t, report.Message, "fetch failed")

	wm, ok, err := env.cursors.Watermark(ctx, cursor.KindProduct, cursor.Inbound)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.Equal(before), "failed fetch must not move the watermark")

	runs, err := env.store.LatestSyncRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.SyncRunError, runs[0].Status)
}

func TestSyncProducts_DuplicateTimestampStillProgresses(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{widgetProduct(ts, "9.99")}}},
	}, Flags{})

	// prior watermark equals every record's timestamp
	require.NoError(t, env.cursors.Advance(ctx, cursor.KindProduct, cursor.Inbound, ts))
	require.True(t, env.engine.SyncProducts(ctx).OK())

	wm, ok, err := env.cursors.Watermark(ctx, cursor.KindProduct, cursor.Inbound)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.After(ts), "watermark must be strictly greater than the batch timestamp")
}

func TestSyncProducts_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	good1 := widgetProduct(ts, "9.99")
	bad := shopify.Product{ID: 101, Title: "", UpdatedAt: ts} // fails validation
	good2 := widgetProduct(ts, "5.00")
	good2.ID = 102
	good2.Title = "Gadget"
	good2.Variants = nil

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{good1, bad, good2}}},
	}, Flags{})

	report := env.engine.SyncProducts(ctx)
	assert.True(t, report.OK(), "a record failure must not fail the batch")
	assert.Equal(t, int64(2), report.Succeeded)
	assert.Equal(t, int64(1), report.Failed)

	count, err := env.store.CountTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSyncProducts_AdoptsUntaggedLocalByName(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{widgetProduct(ts, "9.99")}}},
	}, Flags{})

	localID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{Name: "Widget"})
	require.NoError(t, err)

	require.True(t, env.engine.SyncProducts(ctx).OK())

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.NoError(t, err)
	assert.Equal(t, localID, tmpl.ID, "must adopt the local record, not create a new one")

	count, err := env.store.CountTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSyncProducts_NameCollisionSkips(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{widgetProduct(ts, "9.99")}}},
	}, Flags{})

	// same name, different remote id
	_, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{
		Name: "Widget", Tags: []string{"SHOPIFY_999"},
	})
	require.NoError(t, err)

	report := env.engine.SyncProducts(ctx)
	assert.True(t, report.OK())
	assert.Equal(t, int64(1), report.Skipped)
	assert.Zero(t, report.Failed)

	_, err = env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.ErrorIs(t, err, store.ErrNotFound, "collision must not create a duplicate")
}

func TestSyncProducts_AttributesLinkedNotAssigned(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	p := shopify.Product{
		ID:        300,
		Title:     "Shirt",
		Status:    "active",
		UpdatedAt: ts,
		Options: []shopify.Option{
			{Name: "Size", Position: 1, Values: []string{"S", "M"}},
		},
		Variants: []shopify.Variant{
			{ID: 301, Title: "S", Option1: "S", Price: "10.00"},
			{ID: 302, Title: "M", Option1: "M", Price: "10.00"},
		},
	}

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{p}}},
	}, Flags{})
	require.True(t, env.engine.SyncProducts(ctx).OK())

	attr, err := env.store.GetAttributeByName(ctx, "Size")
	require.NoError(t, err)
	_, err = env.store.GetAttributeValue(ctx, attr.ID, "S")
	require.NoError(t, err)
	_, err = env.store.GetAttributeValue(ctx, attr.ID, "M")
	require.NoError(t, err)

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_300")
	require.NoError(t, err)
	variants, err := env.store.ListVariantsByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, variants, 2)
}

func TestSyncProducts_InventoryIntakeAndImage(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	p := widgetProduct(ts, "9.99")
	p.Variants[0].InventoryQuantity = 7
	p.Images = []shopify.Image{{ID: 1, Src: "https://cdn.example.com/w.png"}}

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{p}}},
		images:       map[string][]byte{"https://cdn.example.com/w.png": []byte("png-bytes")},
	}, Flags{})
	require.True(t, env.engine.SyncProducts(ctx).OK())

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), tmpl.PrimaryImage)

	variant, err := env.store.GetVariantByTag(ctx, "SHOPIFY_VAR_200")
	require.NoError(t, err)
	quant, err := env.store.GetStockQuant(ctx, variant.ID)
	require.NoError(t, err)
	assert.InDelta(t, 7, quant.Quantity, 0.001)
}

func TestSyncProducts_ImageFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	p := widgetProduct(ts, "9.99")
	p.Images = []shopify.Image{{ID: 1, Src: "https://cdn.example.com/missing.png"}}

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{p}}},
	}, Flags{})

	report := env.engine.SyncProducts(ctx)
	assert.True(t, report.OK())
	assert.Equal(t, int64(1), report.Succeeded)
}

func TestSyncProducts_AutoPublishFollowsRemoteStatus(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	active := widgetProduct(ts, "9.99")
	archived := widgetProduct(ts, "9.99")
	archived.ID = 101
	archived.Title = "Old Widget"
	archived.Status = "archived"
	archived.Variants = nil

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{active, archived}}},
	}, Flags{AutoPublish: true})
	require.True(t, env.engine.SyncProducts(ctx).OK())

	tmpl, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_100")
	require.NoError(t, err)
	assert.True(t, tmpl.Published)

	tmpl, err = env.store.GetTemplateByTag(ctx, "SHOPIFY_101")
	require.NoError(t, err)
	assert.False(t, tmpl.Published)
}

func paidOrder(ts time.Time) shopify.Order {
	return shopify.Order{
		ID:              500,
		Name:            "#1001",
		Email:           "jane@example.com",
		Currency:        "USD",
		TotalPrice:      "19.98",
		FinancialStatus: shopify.FinancialStatusPaid,
		CreatedAt:       ts.Add(-time.Hour),
		UpdatedAt:       ts,
		Customer:        &shopify.Customer{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
		LineItems: []shopify.LineItem{
			{ID: 600, VariantID: 200, Title: "Widget", SKU: "W-1", Quantity: 2, Price: "9.99"},
		},
	}
}

func TestSyncOrders_PaidOrderConfirmedAndInvoicedOnce(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{{Products: []shopify.Product{widgetProduct(ts, "9.99")}}},
		orderPages: []shopify.OrderPage{
			{Orders: []shopify.Order{paidOrder(ts)}},
			{Orders: []shopify.Order{paidOrder(ts.Add(time.Hour))}},
		},
	}, Flags{InvoiceOnPayment: true})

	require.True(t, env.engine.SyncProducts(ctx).OK())

	report := env.engine.SyncOrders(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(1), report.Succeeded)

	order, err := env.store.GetOrderByExternalID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStateConfirmed, order.State)
	assert.InDelta(t, 19.98, order.Total, 0.001)

	lines, err := env.store.ListOrderLines(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.NotZero(t, lines[0].VariantID, "line must resolve the synced variant")

	invoice, err := env.store.GetInvoiceByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoiceStatePosted, invoice.State)
	assert.True(t, invoice.Sent)

	// identical payload again: no second order, no second invoice
	report = env.engine.SyncOrders(ctx)
	require.True(t, report.OK())

	count, err := env.store.CountOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	invoice2, err := env.store.GetInvoiceByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, invoice2.ID)
}

func TestSyncOrders_CancelledAndPartiallyPaid(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	cancelled := paidOrder(ts)
	cancelled.ID = 501
	cancelled.FinancialStatus = shopify.FinancialStatusCancelled

	partial := paidOrder(ts)
	partial.ID = 502
	partial.FinancialStatus = shopify.FinancialStatusPartiallyPaid

	env := setupEngine(t, &fakeRemote{
		orderPages: []shopify.OrderPage{{Orders: []shopify.Order{cancelled, partial}}},
	}, Flags{})
	require.True(t, env.engine.SyncOrders(ctx).OK())

	order, err := env.store.GetOrderByExternalID(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStateCancelled, order.State)

	order, err = env.store.GetOrderByExternalID(ctx, 502)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStateDraft, order.State)
	_, err = env.store.GetInvoiceByOrder(ctx, order.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "partially paid orders get no invoice")
}

func TestSyncOrders_AnonymousCustomerAndPlaceholderLine(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	o := shopify.Order{
		ID:              503,
		Name:            "#1002",
		FinancialStatus: "pending",
		UpdatedAt:       ts,
		LineItems: []shopify.LineItem{
			{ID: 601, VariantID: 777, Title: "Mystery Item", Quantity: 1, Price: "3.00"},
		},
	}

	env := setupEngine(t, &fakeRemote{
		orderPages: []shopify.OrderPage{{Orders: []shopify.Order{o}}},
	}, Flags{})
	require.True(t, env.engine.SyncOrders(ctx).OK())

	order, err := env.store.GetOrderByExternalID(ctx, 503)
	require.NoError(t, err)

	lines, err := env.store.ListOrderLines(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Zero(t, lines[0].VariantID)
	assert.NotZero(t, lines[0].TemplateID, "unmatched line must get a placeholder product")

	placeholder, err := env.store.GetTemplateByTag(ctx, "SHOPIFY_UNKNOWN_601")
	require.NoError(t, err)
	assert.Equal(t, "Mystery Item", placeholder.Name)
	assert.False(t, placeholder.Purchasable)
}

func TestSyncOrders_PortalAccountFlag(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	env := setupEngine(t, &fakeRemote{
		orderPages: []shopify.OrderPage{{Orders: []shopify.Order{paidOrder(ts)}}},
	}, Flags{CreatePortalUser: true})
	require.True(t, env.engine.SyncOrders(ctx).OK())

	customer, err := env.store.GetCustomerByEmail(ctx, "jane@example.com")
	require.NoError(t, err)

	account, err := env.store.GetPortalAccountByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", account.Email)
}

func TestExportProducts_StampsExternalReferences(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, &fakeRemote{}, Flags{})

	tmplID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{
		Name: "Local Widget", Published: true,
	})
	require.NoError(t, err)
	_, err = env.store.CreateVariant(ctx, &store.ProductVariant{
		TemplateID: tmplID, Name: "Default", SKU: "LW-1", Price: 4.50,
	})
	require.NoError(t, err)

	report := env.engine.ExportProducts(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(1), report.Succeeded)

	require.Len(t, env.remote.createdProducts, 1)
	assert.Equal(t, "Local Widget", env.remote.createdProducts[0].Title)
	assert.Equal(t, "active", env.remote.createdProducts[0].Status)

	tmpl, err := env.store.GetTemplate(ctx, tmplID)
	require.NoError(t, err)
	assert.True(t, tmpl.HasTagPrefix("SHOPIFY_"), "export must stamp the external reference")
	assert.False(t, tmpl.SyncedAt.IsZero())

	variants, err := env.store.ListVariantsByTemplate(ctx, tmplID)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.True(t, len(variants[0].Tags) > 0, "exported variant must carry its reference tag")

	// second pass finds nothing to export
	report = env.engine.ExportProducts(ctx)
	require.True(t, report.OK())
	assert.Zero(t, report.Succeeded)
	assert.Len(t, env.remote.createdProducts, 1)
}

func TestPushUpdates_OnlyModifiedRecordsPush(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, &fakeRemote{}, Flags{})

	old := time.Now().Add(-time.Hour).UTC()

	// stale record: synced after its last modification
	staleID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{
		Name: "Stale", Tags: []string{"SHOPIFY_100"},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.SetTemplateSyncState(ctx, staleID, time.Now().UTC().Add(time.Minute), time.Now().UTC().Add(time.Minute)))

	// dirty record: modified after its last sync
	dirtyID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{
		Name: "Dirty", Tags: []string{"SHOPIFY_101"},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.SetTemplateSyncState(ctx, dirtyID, old, old))
	dirty, err := env.store.GetTemplate(ctx, dirtyID)
	require.NoError(t, err)
	dirty.Name = "Dirty v2"
	require.NoError(t, env.store.UpdateTemplate(ctx, dirty))
	require.NoError(t, env.store.SetTemplateSyncState(ctx, dirtyID, old, old))

	report := env.engine.PushUpdates(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(1), report.Succeeded)
	assert.Equal(t, int64(1), report.Skipped)

	require.Contains(t, env.remote.updatedProducts, int64(101))
	assert.Equal(t, "Dirty v2", env.remote.updatedProducts[101].Title)
	assert.NotContains(t, env.remote.updatedProducts, int64(100))

	// the confirmed push stamps the record; a second pass skips it
	report = env.engine.PushUpdates(ctx)
	require.True(t, report.OK())
	assert.Zero(t, report.Succeeded)
}

func TestPushInventory_SetsRemoteLevels(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, &fakeRemote{
		locations: []shopify.Location{{ID: 11, Name: "Main"}},
		variants: map[int64]*shopify.Variant{
			200: {ID: 200, InventoryItemID: 5001},
		},
	}, Flags{})

	tmplID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{Name: "Widget"})
	require.NoError(t, err)
	varID, err := env.store.CreateVariant(ctx, &store.ProductVariant{
		TemplateID: tmplID, SKU: "W-1", Tags: []string{"SHOPIFY_VAR_200"},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.SetStockQuant(ctx, varID, 7))

	report := env.engine.PushInventory(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(1), report.Succeeded)

	require.Len(t, env.remote.inventorySets, 1)
	assert.Equal(t, inventorySet{LocationID: 11, InventoryItemID: 5001, Available: 7}, env.remote.inventorySets[0])
}

func TestPushInventory_UncountedVariantSkipped(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, &fakeRemote{
		locations: []shopify.Location{{ID: 11}},
	}, Flags{})

	tmplID, err := env.store.CreateTemplate(ctx, &store.ProductTemplate{Name: "Widget"})
	require.NoError(t, err)
	_, err = env.store.CreateVariant(ctx, &store.ProductVariant{
		TemplateID: tmplID, Tags: []string{"SHOPIFY_VAR_200"},
	})
	require.NoError(t, err)

	report := env.engine.PushInventory(ctx)
	require.True(t, report.OK())
	assert.Zero(t, report.Succeeded)
	assert.Equal(t, int64(1), report.Skipped)
	assert.Empty(t, env.remote.inventorySets)
}

func TestSyncProducts_ChunkedModeFollowsPages(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	p2 := widgetProduct(ts.Add(time.Hour), "5.00")
	p2.ID = 101
	p2.Title = "Gadget"
	p2.Variants = nil

	env := setupEngine(t, &fakeRemote{
		productPages: []shopify.ProductPage{
			{Products: []shopify.Product{widgetProduct(ts, "9.99")}, NextPageToken: "tok2"},
			{Products: []shopify.Product{p2}},
		},
	}, Flags{})
	env.engine.SetPageCap(5)

	report := env.engine.SyncProducts(ctx)
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, int64(2), report.Succeeded)
	assert.Equal(t, 2, env.remote.productFetches)

	// token cleared once the remote stops paginating
	token, err := env.cursors.PageToken(ctx, cursor.KindProduct)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestShouldPush(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		updated   time.Time
		synced    time.Time
		watermark time.Time
		want      bool
	}{
		{"modified after both", now, now.Add(-time.Hour), now.Add(-2 * time.Hour), true},
		{"synced after modification", now.Add(-time.Hour), now, time.Time{}, false},
		{"watermark after modification", now.Add(-time.Hour), time.Time{}, now, false},
		{"never synced, no watermark", now, time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &store.ProductTemplate{UpdatedAt: tt.updated, SyncedAt: tt.synced}
			assert.Equal(t, tt.want, shouldPush(tmpl, tt.watermark))
		})
	}
}
