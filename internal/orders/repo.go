package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct{ DB DB }

var ErrNotFound = errors.New("not found")

// ProductsForOrder returns the orderable (active, owned by supplierID) products among ids, keyed by id.
// Missing ids are simply absent from the map.
func (r *Repo) ProductsForOrder(ctx context.Context, supplierID int64, ids []int64) (map[int64]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, supplier_id, name, description, price::text, image, is_active
		FROM products
		WHERE supplier_id = $1 AND is_active AND product_id = ANY($2)`, supplierID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		var (
			p     Product
			price string
		)
		if err := rows.Scan(&p.ProductID, &p.SupplierID, &p.Name, &p.Description, &price, &p.Image, &p.Active); err != nil {
			return nil, err
		}
		if p.Price, err = parseAmount(price); err != nil {
			return nil, fmt.Errorf("product %d price: %w", p.ProductID, err)
		}
		out[p.ProductID] = p
	}
	return out, rows.Err()
}

// CreateOrder inserts the order header (Pending) and all details in one transaction.
// On success o.OrderID and every detail's OrderID/OrderDetailID are filled in.
func (r *Repo) CreateOrder(ctx context.Context, o *Order, details []OrderDetail) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o.DeliveryStatus == "" {
		o.DeliveryStatus = StatusPending
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, supplier_id, order_date, delivery_date, total_price, delivery_status)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING order_id`,
		o.UserID, o.SupplierID, o.Date, o.DeliveryDate, o.TotalPrice.StringFixed(2), string(o.DeliveryStatus),
	).Scan(&o.OrderID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range details {
		d := &details[i]
		d.OrderID = o.OrderID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_details(order_id, product_id, product_name, product_description, quantity, price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)
			RETURNING order_detail_id`,
			d.OrderID, d.ProductID, d.ProductName, d.ProductDescription, d.Quantity, d.Price.StringFixed(2), d.LineTotal.StringFixed(2),
		).Scan(&d.OrderDetailID)
		if err != nil {
			return fmt.Errorf("insert order detail %d: %w", d.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ConfirmOrder moves a Pending order owned by supplierID to Confirmed.
// ErrNotFound covers unknown ids, foreign orders and orders that are already Confirmed.
func (r *Repo) ConfirmOrder(ctx context.Context, orderID, supplierID int64) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET delivery_status = $3
		WHERE order_id = $1 AND supplier_id = $2 AND delivery_status = $4`,
		orderID, supplierID, string(StatusConfirmed), string(StatusPending))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

const orderColumns = `o.order_id, o.user_id, o.supplier_id, o.order_date, o.delivery_date, o.total_price::text, o.delivery_status`

func scanOrder(row pgx.Row, extra ...any) (Order, error) {
	var (
		o      Order
		total  string
		status string
	)
	dest := append([]any{&o.OrderID, &o.UserID, &o.SupplierID, &o.Date, &o.DeliveryDate, &total, &status}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Order{}, err
	}
	var err error
	if o.TotalPrice, err = parseAmount(total); err != nil {
		return Order{}, fmt.Errorf("order %d total: %w", o.OrderID, err)
	}
	o.DeliveryStatus = Status(status)
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) GetOrderDetails(ctx context.Context, orderID int64) ([]OrderDetail, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_detail_id, order_id, product_id, product_name, product_description, quantity, price::text, line_total::text
		FROM order_details WHERE order_id = $1 ORDER BY order_detail_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderDetail
	for rows.Next() {
		var (
			d           OrderDetail
			price, line string
		)
		if err := rows.Scan(&d.OrderDetailID, &d.OrderID, &d.ProductID, &d.ProductName, &d.ProductDescription, &d.Quantity, &price, &line); err != nil {
			return nil, err
		}
		if d.Price, err = parseAmount(price); err != nil {
			return nil, err
		}
		if d.LineTotal, err = parseAmount(line); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID int64) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT delivery_status FROM orders WHERE order_id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// ListByUser lists a buyer's orders, newest first, optionally filtered by supplier company name.
func (r *Repo) ListByUser(ctx context.Context, userID int64, q string) ([]OrderSummary, error) {
	return r.listSummaries(ctx, `
		SELECT `+orderColumns+`, u.company_name
		FROM orders o
		JOIN suppliers s ON s.supplier_id = o.supplier_id
		JOIN users u ON u.user_id = s.user_id
		WHERE o.user_id = $1 AND u.company_name ILIKE $2
		ORDER BY o.order_date DESC, o.order_id DESC`, userID, likePattern(q))
}

// ListBySupplier lists a supplier's incoming orders, newest first, optionally filtered by customer company name.
func (r *Repo) ListBySupplier(ctx context.Context, supplierID int64, q string) ([]OrderSummary, error) {
	return r.listSummaries(ctx, `
		SELECT `+orderColumns+`, u.company_name
		FROM orders o
		JOIN users u ON u.user_id = o.user_id
		WHERE o.supplier_id = $1 AND u.company_name ILIKE $2
		ORDER BY o.order_date DESC, o.order_id DESC`, supplierID, likePattern(q))
}

func (r *Repo) listSummaries(ctx context.Context, sql string, args ...any) ([]OrderSummary, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var s OrderSummary
		o, err := scanOrder(rows, &s.Counterparty)
		if err != nil {
			return nil, err
		}
		s.Order = o
		out = append(out, s)
	}
	return out, rows.Err()
}

func likePattern(q string) string { return "%" + q + "%" }
