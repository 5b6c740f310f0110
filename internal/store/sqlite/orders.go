package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopbridge/shopbridge/internal/store"
)

// GetCustomerByEmail retrieves a customer by email.
func (q *queries) GetCustomerByEmail(ctx context.Context, email string) (*store.Customer, error) {
	if email == "" {
		return nil, store.ErrNotFound
	}

	var c store.Customer
	var anonymous int
	var created int64
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, anonymous, created_at
		FROM customers WHERE email = ? ORDER BY id LIMIT 1`, email).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &anonymous, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	c.Anonymous = anonymous != 0
	c.CreatedAt = timeOrZero(created)
	return &c, nil
}

// CreateCustomer inserts a new customer and returns its ID.
func (q *queries) CreateCustomer(ctx context.Context, c *store.Customer) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO customers (name, email, phone, anonymous, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, boolToInt(c.Anonymous), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get customer id: %w", err)
	}
	c.ID = id
	return id, nil
}

// GetPortalAccountByCustomer retrieves the portal account of a customer.
func (q *queries) GetPortalAccountByCustomer(ctx context.Context, customerID int64) (*store.PortalAccount, error) {
	var a store.PortalAccount
	var created int64
	err := q.db.QueryRowContext(ctx,
		"SELECT id, customer_id, email, created_at FROM portal_accounts WHERE customer_id = ?",
		customerID).Scan(&a.ID, &a.CustomerID, &a.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portal account: %w", err)
	}
	a.CreatedAt = timeOrZero(created)
	return &a, nil
}

// CreatePortalAccount inserts a portal account and returns its ID.
func (q *queries) CreatePortalAccount(ctx context.Context, a *store.PortalAccount) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO portal_accounts (customer_id, email, created_at) VALUES (?, ?, ?)",
		a.CustomerID, a.Email, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create portal account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get portal account id: %w", err)
	}
	a.ID = id
	return id, nil
}

const orderColumns = "id, external_id, reference, customer_id, state, currency, total, ordered_at, created_at, updated_at"

// GetOrderByExternalID retrieves the order mirroring a remote order.
func (q *queries) GetOrderByExternalID(ctx context.Context, externalID int64) (*store.SalesOrder, error) {
	var o store.SalesOrder
	var ordered, created, updated int64
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM sales_orders WHERE external_id = ?", orderColumns),
		externalID).Scan(&o.ID, &o.ExternalID, &o.Reference, &o.CustomerID, &o.State,
		&o.Currency, &o.Total, &ordered, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	o.OrderedAt = timeOrZero(ordered)
	o.CreatedAt = timeOrZero(created)
	o.UpdatedAt = timeOrZero(updated)
	return &o, nil
}

// CreateOrder inserts a new order and returns its ID.
func (q *queries) CreateOrder(ctx context.Context, o *store.SalesOrder) (int64, error) {
	now := time.Now().Unix()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO sales_orders (external_id, reference, customer_id, state, currency, total, ordered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ExternalID, o.Reference, o.CustomerID, o.State, o.Currency, o.Total,
		unixOrZero(o.OrderedAt), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get order id: %w", err)
	}
	o.ID = id
	return id, nil
}

// SetOrderState moves the order to a new state.
func (q *queries) SetOrderState(ctx context.Context, orderID int64, state string) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE sales_orders SET state = ?, updated_at = ? WHERE id = ?",
		state, time.Now().Unix(), orderID)
	if err != nil {
		return fmt.Errorf("failed to set order state: %w", err)
	}
	return requireAffected(res)
}

// AddOrderLine inserts an order line and returns its ID.
func (q *queries) AddOrderLine(ctx context.Context, l *store.OrderLine) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, template_id, variant_id, external_line_id, description, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.OrderID, l.TemplateID, l.VariantID, l.ExternalLineID, l.Description, l.Quantity, l.UnitPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to add order line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get order line id: %w", err)
	}
	l.ID = id
	return id, nil
}

// ListOrderLines retrieves all lines of an order.
func (q *queries) ListOrderLines(ctx context.Context, orderID int64) ([]*store.OrderLine, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, order_id, template_id, variant_id, external_line_id, description, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	defer rows.Close()

	var out []*store.OrderLine
	for rows.Next() {
		var l store.OrderLine
		err := rows.Scan(&l.ID, &l.OrderID, &l.TemplateID, &l.VariantID,
			&l.ExternalLineID, &l.Description, &l.Quantity, &l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// CountOrders returns the total order count.
func (q *queries) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales_orders").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// GetInvoiceByOrder retrieves the invoice raised for an order.
func (q *queries) GetInvoiceByOrder(ctx context.Context, orderID int64) (*store.Invoice, error) {
	var inv store.Invoice
	var sent int
	var created int64
	err := q.db.QueryRowContext(ctx,
		"SELECT id, order_id, state, sent, created_at FROM invoices WHERE order_id = ?",
		orderID).Scan(&inv.ID, &inv.OrderID, &inv.State, &sent, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	inv.Sent = sent != 0
	inv.CreatedAt = timeOrZero(created)
	return &inv, nil
}

// CreateInvoice inserts a new invoice and returns its ID.
func (q *queries) CreateInvoice(ctx context.Context, inv *store.Invoice) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO invoices (order_id, state, sent, created_at) VALUES (?, ?, ?, ?)",
		inv.OrderID, inv.State, boolToInt(inv.Sent), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get invoice id: %w", err)
	}
	inv.ID = id
	return id, nil
}

// AddInvoiceLine inserts an invoice line and returns its ID.
func (q *queries) AddInvoiceLine(ctx context.Context, l *store.InvoiceLine) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price) VALUES (?, ?, ?, ?)",
		l.InvoiceID, l.Description, l.Quantity, l.UnitPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to add invoice line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get invoice line id: %w", err)
	}
	l.ID = id
	return id, nil
}

// SetInvoiceState moves the invoice to a new state.
func (q *queries) SetInvoiceState(ctx context.Context, invoiceID int64, state string) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE invoices SET state = ? WHERE id = ?", state, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to set invoice state: %w", err)
	}
	return requireAffected(res)
}

// MarkInvoiceSent flags the invoice as delivered to the customer.
func (q *queries) MarkInvoiceSent(ctx context.Context, invoiceID int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE invoices SET sent = 1 WHERE id = ?", invoiceID)
	if err != nil {
		return fmt.Errorf("failed to mark invoice sent: %w", err)
	}
	return requireAffected(res)
}
