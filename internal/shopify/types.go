// Package shopify is the client for the remote platform's Admin REST API.
// Payloads are decoded into typed entities at fetch time; malformed records
// (missing id or title) are rejected before they reach reconciliation.
package shopify

import (
	"fmt"
	"strconv"
	"time"
)

// Product is a remote product as returned by GET /products.json.
// Immutable once fetched.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Handle      string    `json:"handle"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Options     []Option  `json:"options"`
	Variants    []Variant `json:"variants"`
	Images      []Image   `json:"images"`
}

// Validate rejects payloads that cannot be reconciled.
func (p *Product) Validate() error {
	if p.ID == 0 {
		return fmt.Errorf("product payload missing id")
	}
	if p.Title == "" {
		return fmt.Errorf("product %d payload missing title", p.ID)
	}
	return nil
}

// Variant is a remote product variant. Option1..Option3 carry the values of
// the product's positional options.
type Variant struct {
	ID                int64     `json:"id"`
	ProductID         int64     `json:"product_id"`
	Title             string    `json:"title"`
	SKU               string    `json:"sku"`
	Price             string    `json:"price"`
	CompareAtPrice    string    `json:"compare_at_price"`
	Option1           string    `json:"option1"`
	Option2           string    `json:"option2"`
	Option3           string    `json:"option3"`
	Barcode           string    `json:"barcode"`
	Weight            float64   `json:"weight"`
	InventoryQuantity int64     `json:"inventory_quantity"`
	InventoryItemID   int64     `json:"inventory_item_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// OptionValues returns the non-empty option values in position order,
// ignoring the placeholder value the platform assigns to single-variant
// products.
func (v *Variant) OptionValues() []OptionValue {
	raw := []string{v.Option1, v.Option2, v.Option3}
	values := make([]OptionValue, 0, len(raw))
	for i, val := range raw {
		if val == "" || val == "Default Title" {
			continue
		}
		values = append(values, OptionValue{Position: i + 1, Value: val})
	}
	return values
}

// OptionValue pairs an option position with the variant's value for it.
type OptionValue struct {
	Position int
	Value    string
}

// Option describes a product option axis (e.g. "Size", "Color").
type Option struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

// Image is a remote product image; only Src is used by the engine.
type Image struct {
	ID       int64  `json:"id"`
	Src      string `json:"src"`
	Position int    `json:"position"`
}

// Order is a remote order as returned by GET /orders.json.
type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Currency          string     `json:"currency"`
	TotalPrice        string     `json:"total_price"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Customer          *Customer  `json:"customer"`
	LineItems         []LineItem `json:"line_items"`
	ShippingAddress   *Address   `json:"shipping_address"`
	BillingAddress    *Address   `json:"billing_address"`
}

// Validate rejects payloads that cannot be reconciled.
func (o *Order) Validate() error {
	if o.ID == 0 {
		return fmt.Errorf("order payload missing id")
	}
	return nil
}

// Financial statuses that drive order side effects.
const (
	FinancialStatusPaid          = "paid"
	FinancialStatusPartiallyPaid = "partially_paid"
	FinancialStatusCancelled     = "cancelled"
)

// LineItem is one line of a remote order.
type LineItem struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

// Customer is the customer block embedded in an order payload.
type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Address is a shipping or billing address block.
type Address struct {
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Zip          string `json:"zip"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

// Location is a remote inventory location.
type Location struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Shop is the shop info record, used only by the connection test.
type Shop struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Currency string `json:"currency"`
}

// ParsePrice converts the platform's decimal-string price representation.
// Empty strings parse to zero rather than an error: the platform omits
// optional prices as "".
func ParsePrice(raw string) float64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

// FormatPrice renders a price the way the platform expects it.
func FormatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
