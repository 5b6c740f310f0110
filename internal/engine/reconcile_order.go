package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
)

// reconcileOrder mirrors one remote order locally. Orders are immutable once
// created: an order whose external id already exists is skipped entirely.
func (e *Engine) reconcileOrder(ctx context.Context, rec store.Records, o *shopify.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	_, err := rec.GetOrderByExternalID(ctx, o.ID)
	if err == nil {
		e.logger.Debug("order already mirrored, skipping", "remote_id", o.ID)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	customer, err := e.resolveCustomer(ctx, rec, o)
	if err != nil {
		return err
	}

	order := &store.SalesOrder{
		ExternalID: o.ID,
		Reference:  o.Name,
		CustomerID: customer.ID,
		State:      store.OrderStateDraft,
		Currency:   o.Currency,
		Total:      shopify.ParsePrice(o.TotalPrice),
		OrderedAt:  o.CreatedAt,
	}
	if _, err := rec.CreateOrder(ctx, order); err != nil {
		return err
	}

	for i := range o.LineItems {
		if err := e.addOrderLine(ctx, rec, order.ID, &o.LineItems[i]); err != nil {
			return err
		}
	}

	if err := e.applyFinancialStatus(ctx, rec, order, customer, o.FinancialStatus); err != nil {
		return err
	}

	e.logger.Info("mirrored order", "remote_id", o.ID, "reference", o.Name,
		"financial_status", o.FinancialStatus)
	return nil
}

// resolveCustomer finds or creates the buyer. Orders without an email get a
// synthesized anonymous customer so the order still has an owner.
func (e *Engine) resolveCustomer(ctx context.Context, rec store.Records, o *shopify.Order) (*store.Customer, error) {
	email := o.Email
	if email == "" && o.Customer != nil {
		email = o.Customer.Email
	}

	if email == "" {
		anon := &store.Customer{
			Name:      fmt.Sprintf("Guest %s", uuid.NewString()[:8]),
			Anonymous: true,
		}
		if _, err := rec.CreateCustomer(ctx, anon); err != nil {
			return nil, err
		}
		return anon, nil
	}

	existing, err := rec.GetCustomerByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	c := &store.Customer{Name: customerName(o, email), Email: email}
	if o.Customer != nil {
		c.Phone = o.Customer.Phone
	}
	if _, err := rec.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func customerName(o *shopify.Order, email string) string {
	if o.Customer != nil {
		name := strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
		if name != "" {
			return name
		}
	}
	return email
}

// addOrderLine resolves the line's product by variant tag, then SKU, then a
// placeholder product keyed on the line item id.
func (e *Engine) addOrderLine(ctx context.Context, rec store.Records, orderID int64, li *shopify.LineItem) error {
	line := &store.OrderLine{
		OrderID:        orderID,
		ExternalLineID: li.ID,
		Description:    li.Title,
		Quantity:       float64(li.Quantity),
		UnitPrice:      shopify.ParsePrice(li.Price),
	}

	variant, err := e.resolveLineVariant(ctx, rec, li)
	if err != nil {
		return err
	}

	if variant != nil {
		line.TemplateID = variant.TemplateID
		line.VariantID = variant.ID
	} else {
		templateID, err := e.resolvePlaceholder(ctx, rec, li)
		if err != nil {
			return err
		}
		line.TemplateID = templateID
	}

	_, err = rec.AddOrderLine(ctx, line)
	return err
}

func (e *Engine) resolveLineVariant(ctx context.Context, rec store.Records, li *shopify.LineItem) (*store.ProductVariant, error) {
	if li.VariantID != 0 {
		v, err := rec.GetVariantByTag(ctx, variantTag(li.VariantID))
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if li.SKU != "" {
		v, err := rec.GetVariantBySKU(ctx, li.SKU)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// resolvePlaceholder finds or creates the placeholder product for a line
// item the catalog has never seen.
func (e *Engine) resolvePlaceholder(ctx context.Context, rec store.Records, li *shopify.LineItem) (int64, error) {
	tag := placeholderTag(li.ID)

	tmpl, err := rec.GetTemplateByTag(ctx, tag)
	if err == nil {
		return tmpl.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	name := li.Title
	if name == "" {
		name = tag
	}
	placeholder := &store.ProductTemplate{
		Name:          name,
		ReferenceCode: tag,
		Purchasable:   false,
		Tags:          []string{tag},
	}
	id, err := rec.CreateTemplate(ctx, placeholder)
	if err != nil {
		return 0, err
	}

	e.logger.Warn("created placeholder product for unmatched line item",
		"line_item_id", li.ID, "title", li.Title)
	return id, nil
}

// applyFinancialStatus drives the order's post-creation side effects.
func (e *Engine) applyFinancialStatus(ctx context.Context, rec store.Records, order *store.SalesOrder, customer *store.Customer, status string) error {
	switch status {
	case shopify.FinancialStatusCancelled:
		return rec.SetOrderState(ctx, order.ID, store.OrderStateCancelled)

	case shopify.FinancialStatusPaid:
		if err := rec.SetOrderState(ctx, order.ID, store.OrderStateConfirmed); err != nil {
			return err
		}
		if err := e.raiseInvoice(ctx, rec, order.ID); err != nil {
			return err
		}
		if e.flags.CreatePortalUser && customer.Email != "" {
			if err := e.ensurePortalAccount(ctx, rec, customer); err != nil {
				return err
			}
		}
		return nil

	default:
		// partially_paid and everything else stays in draft, no invoice
		return nil
	}
}

// raiseInvoice creates an invoice mirroring the order lines, posts it, and
// optionally marks it sent when the invoice-on-payment flag is set.
func (e *Engine) raiseInvoice(ctx context.Context, rec store.Records, orderID int64) error {
	lines, err := rec.ListOrderLines(ctx, orderID)
	if err != nil {
		return err
	}

	invoice := &store.Invoice{OrderID: orderID, State: store.InvoiceStateDraft}
	if _, err := rec.CreateInvoice(ctx, invoice); err != nil {
		return err
	}

	for _, l := range lines {
		_, err := rec.AddInvoiceLine(ctx, &store.InvoiceLine{
			InvoiceID:   invoice.ID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
		if err != nil {
			return err
		}
	}

	if err := rec.SetInvoiceState(ctx, invoice.ID, store.InvoiceStatePosted); err != nil {
		return err
	}

	if e.flags.InvoiceOnPayment {
		if err := rec.MarkInvoiceSent(ctx, invoice.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ensurePortalAccount(ctx context.Context, rec store.Records, customer *store.Customer) error {
	_, err := rec.GetPortalAccountByCustomer(ctx, customer.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	_, err = rec.CreatePortalAccount(ctx, &store.PortalAccount{
		CustomerID: customer.ID,
		Email:      customer.Email,
	})
	return err
}
