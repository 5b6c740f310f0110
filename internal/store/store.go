// Package store defines the local business-data model and the persistence
// interfaces the sync engine works against. The sqlite subpackage implements
// them.
package store

import (
	"context"
	"time"
)

// ProductStorage defines persistence for templates, variants, categories,
// vendors and attributes.
type ProductStorage interface {
	// GetTemplateByTag retrieves the template carrying the given tag.
	// Returns ErrNotFound when no template carries it.
	GetTemplateByTag(ctx context.Context, tag string) (*ProductTemplate, error)

	// FindTemplatesByName retrieves all templates with the exact name,
	// tags loaded. Returns an empty slice when none match.
	FindTemplatesByName(ctx context.Context, name string) ([]*ProductTemplate, error)

	// GetTemplate retrieves a template by ID.
	GetTemplate(ctx context.Context, id int64) (*ProductTemplate, error)

	// CreateTemplate inserts a new template and returns its ID.
	CreateTemplate(ctx context.Context, t *ProductTemplate) (int64, error)

	// UpdateTemplate overwrites the template's mutable fields.
	UpdateTemplate(ctx context.Context, t *ProductTemplate) error

	// AddTemplateTag attaches a tag to a template. Adding an existing
	// tag is a no-op.
	AddTemplateTag(ctx context.Context, templateID int64, tag string) error

	// SetTemplateSyncState stamps the remote bookkeeping fields without
	// touching the local modification time.
	SetTemplateSyncState(ctx context.Context, templateID int64, remoteUpdatedAt, syncedAt time.Time) error

	// ListUntaggedTemplates retrieves up to limit templates that carry no
	// tag with the given prefix, oldest first. Used by the export pass.
	ListUntaggedTemplates(ctx context.Context, prefix string, limit int) ([]*ProductTemplate, error)

	// ListTaggedTemplates retrieves up to limit templates carrying a tag
	// with the given prefix, oldest modification first.
	ListTaggedTemplates(ctx context.Context, prefix string, limit int) ([]*ProductTemplate, error)

	// DeleteTemplatesByTagPrefix removes templates whose only purpose was
	// placeholding (every tag matches the prefix). Returns the count.
	DeleteTemplatesByTagPrefix(ctx context.Context, prefix string) (int64, error)

	// CountTemplates returns the total template count.
	CountTemplates(ctx context.Context) (int64, error)

	// GetVariantByTag retrieves the variant carrying the given tag.
	GetVariantByTag(ctx context.Context, tag string) (*ProductVariant, error)

	// GetVariantBySKU retrieves the variant with the given SKU. Returns
	// ErrNotFound when absent or the SKU is shared by several variants.
	GetVariantBySKU(ctx context.Context, sku string) (*ProductVariant, error)

	// BarcodeInUse reports whether any variant other than the given one
	// already holds the barcode.
	BarcodeInUse(ctx context.Context, barcode string, excludeVariantID int64) (bool, error)

	// ListVariantsByTemplate retrieves all variants of a template.
	ListVariantsByTemplate(ctx context.Context, templateID int64) ([]*ProductVariant, error)

	// CreateVariant inserts a new variant and returns its ID.
	CreateVariant(ctx context.Context, v *ProductVariant) (int64, error)

	// UpdateVariant overwrites the variant's mutable fields.
	UpdateVariant(ctx context.Context, v *ProductVariant) error

	// AddVariantTag attaches a tag to a variant; idempotent.
	AddVariantTag(ctx context.Context, variantID int64, tag string) error

	// ListTaggedVariants retrieves up to limit variants carrying a tag
	// with the given prefix.
	ListTaggedVariants(ctx context.Context, prefix string, limit int) ([]*ProductVariant, error)

	// GetCategoryByName retrieves a category by exact name.
	GetCategoryByName(ctx context.Context, name string) (*Category, error)

	// CreateCategory inserts a new category and returns its ID.
	CreateCategory(ctx context.Context, name string) (int64, error)

	// GetVendorByName retrieves a vendor by exact name.
	GetVendorByName(ctx context.Context, name string) (*Vendor, error)

	// CreateVendor inserts a new vendor and returns its ID.
	CreateVendor(ctx context.Context, v *Vendor) (int64, error)

	// LinkVendor attaches a vendor to a template; idempotent, additive.
	LinkVendor(ctx context.Context, templateID, vendorID int64) error

	// ListVendorLinks returns the vendor IDs linked to a template.
	ListVendorLinks(ctx context.Context, templateID int64) ([]int64, error)

	// GetAttributeByName retrieves an attribute by exact name.
	GetAttributeByName(ctx context.Context, name string) (*Attribute, error)

	// CreateAttribute inserts a new attribute and returns its ID.
	CreateAttribute(ctx context.Context, name string) (int64, error)

	// GetAttributeValue retrieves a value of an attribute.
	GetAttributeValue(ctx context.Context, attributeID int64, value string) (*AttributeValue, error)

	// CreateAttributeValue inserts a new attribute value and returns its ID.
	CreateAttributeValue(ctx context.Context, attributeID int64, value string) (int64, error)

	// LinkTemplateAttributeValue makes a value selectable on a template;
	// idempotent. It never assigns the value to variant combinations.
	LinkTemplateAttributeValue(ctx context.Context, templateID, attributeID, valueID int64) error
}

// OrderStorage defines persistence for customers, orders and invoices.
type OrderStorage interface {
	// GetCustomerByEmail retrieves a customer by email.
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// CreateCustomer inserts a new customer and returns its ID.
	CreateCustomer(ctx context.Context, c *Customer) (int64, error)

	// GetPortalAccountByCustomer retrieves the portal account of a customer.
	GetPortalAccountByCustomer(ctx context.Context, customerID int64) (*PortalAccount, error)

	// CreatePortalAccount inserts a portal account and returns its ID.
	CreatePortalAccount(ctx context.Context, a *PortalAccount) (int64, error)

	// GetOrderByExternalID retrieves the order mirroring a remote order.
	GetOrderByExternalID(ctx context.Context, externalID int64) (*SalesOrder, error)

	// CreateOrder inserts a new order and returns its ID.
	CreateOrder(ctx context.Context, o *SalesOrder) (int64, error)

	// SetOrderState moves the order to a new state.
	SetOrderState(ctx context.Context, orderID int64, state string) error

	// AddOrderLine inserts an order line and returns its ID.
	AddOrderLine(ctx context.Context, l *OrderLine) (int64, error)

	// ListOrderLines retrieves all lines of an order.
	ListOrderLines(ctx context.Context, orderID int64) ([]*OrderLine, error)

	// CountOrders returns the total order count.
	CountOrders(ctx context.Context) (int64, error)

	// GetInvoiceByOrder retrieves the invoice raised for an order.
	GetInvoiceByOrder(ctx context.Context, orderID int64) (*Invoice, error)

	// CreateInvoice inserts a new invoice and returns its ID.
	CreateInvoice(ctx context.Context, inv *Invoice) (int64, error)

	// AddInvoiceLine inserts an invoice line and returns its ID.
	AddInvoiceLine(ctx context.Context, l *InvoiceLine) (int64, error)

	// SetInvoiceState moves the invoice to a new state.
	SetInvoiceState(ctx context.Context, invoiceID int64, state string) error

	// MarkInvoiceSent flags the invoice as delivered to the customer.
	MarkInvoiceSent(ctx context.Context, invoiceID int64) error
}

// InventoryStorage defines persistence for on-hand quantities.
type InventoryStorage interface {
	// GetStockQuant retrieves the quant for a variant. Returns
	// ErrNotFound when the variant has never been counted.
	GetStockQuant(ctx context.Context, variantID int64) (*StockQuant, error)

	// SetStockQuant upserts the on-hand quantity for a variant.
	SetStockQuant(ctx context.Context, variantID int64, quantity float64) error
}

// SyncRunStorage records engine invocations for the status surface.
type SyncRunStorage interface {
	// StartSyncRun inserts a running entry and returns its ID.
	StartSyncRun(ctx context.Context, kind, direction string) (int64, error)

	// FinishSyncRun closes a run with its outcome.
	FinishSyncRun(ctx context.Context, id int64, status string, succeeded, failed int64, message string) error

	// LatestSyncRuns retrieves the most recent runs, newest first.
	LatestSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)
}

// Records groups every record operation. A Store exposes them in
// autocommit mode; a Batch exposes them inside one transaction.
type Records interface {
	ProductStorage
	OrderStorage
	InventoryStorage
	SyncRunStorage
}

// Batch is one transaction. Savepoint isolates a single record's work: when
// fn fails, its partial writes are rolled back while the rest of the batch
// survives, and the error is returned for counting.
type Batch interface {
	Records

	// Savepoint runs fn inside a nested savepoint, releasing it on
	// success and rolling back to it on failure.
	Savepoint(ctx context.Context, fn func() error) error

	// Commit makes the whole batch durable.
	Commit() error

	// Rollback discards the whole batch. Safe to call after Commit.
	Rollback() error
}

// Store is the root handle over the local database.
type Store interface {
	Records

	// Begin opens a batch transaction.
	Begin(ctx context.Context) (Batch, error)

	// Close releases the underlying database.
	Close() error
}
