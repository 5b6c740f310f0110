package store

import "time"

// ProductTemplate is a sellable product family. Variants hang off it; the
// template carries the shared fields.
type ProductTemplate struct {
	ID              int64
	Name            string
	ReferenceCode   string
	DescriptionHTML string
	CategoryID      int64
	Published       bool
	Purchasable     bool
	DropshipRoute   string
	PrimaryImage    []byte
	Tags            []string
	RemoteUpdatedAt time.Time
	SyncedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasTagPrefix reports whether any tag carries the given prefix.
func (t *ProductTemplate) HasTagPrefix(prefix string) bool {
	for _, tag := range t.Tags {
		if len(tag) >= len(prefix) && tag[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// ProductVariant is one purchasable configuration of a template.
type ProductVariant struct {
	ID         int64
	TemplateID int64
	Name       string
	SKU        string
	Barcode    string
	Price      float64
	Weight     float64
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Category groups templates; created on demand from remote product types.
type Category struct {
	ID   int64
	Name string
}

// Vendor is a supplier record linked to templates additively.
type Vendor struct {
	ID    int64
	Name  string
	Email string
}

// Attribute and AttributeValue describe variant option axes. Values are
// attached to templates as selectable lines but never assigned to variant
// combinations automatically.
type Attribute struct {
	ID   int64
	Name string
}

type AttributeValue struct {
	ID          int64
	AttributeID int64
	Value       string
}

// Customer is a local buyer record, matched by email when present.
type Customer struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Anonymous bool
	CreatedAt time.Time
}

// PortalAccount grants a customer self-service access; created optionally
// when an order is paid.
type PortalAccount struct {
	ID         int64
	CustomerID int64
	Email      string
	CreatedAt  time.Time
}

// Order states. Orders mirrored from the remote platform are immutable once
// created; only their state moves.
const (
	OrderStateDraft     = "draft"
	OrderStateConfirmed = "confirmed"
	OrderStateCancelled = "cancelled"
)

// SalesOrder mirrors one remote order.
type SalesOrder struct {
	ID         int64
	ExternalID int64
	Reference  string
	CustomerID int64
	State      string
	Currency   string
	Total      float64
	OrderedAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLine is one line of a sales order.
type OrderLine struct {
	ID             int64
	OrderID        int64
	TemplateID     int64
	VariantID      int64
	ExternalLineID int64
	Description    string
	Quantity       float64
	UnitPrice      float64
}

// Invoice states.
const (
	InvoiceStateDraft  = "draft"
	InvoiceStatePosted = "posted"
)

// Invoice mirrors the billing document raised when an order is paid.
type Invoice struct {
	ID        int64
	OrderID   int64
	State     string
	Sent      bool
	CreatedAt time.Time
}

// InvoiceLine is one line of an invoice, copied from the order lines.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    float64
	UnitPrice   float64
}

// StockQuant is the on-hand quantity for a variant.
type StockQuant struct {
	ID        int64
	VariantID int64
	Quantity  float64
	UpdatedAt time.Time
}

// Sync run statuses.
const (
	SyncRunRunning   = "running"
	SyncRunCompleted = "completed"
	SyncRunError     = "error"
)

// SyncRun records one engine invocation for the status surface.
type SyncRun struct {
	ID         int64
	Kind       string
	Direction  string
	Status     string
	Succeeded  int64
	Failed     int64
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}
