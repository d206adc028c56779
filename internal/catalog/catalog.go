package catalog

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"strings"
)

var ErrNotFound = errors.New("not found")

type Supplier struct {
	SupplierID     int64  `json:"supplier_id"`
	UserID         int64  `json:"user_id"`
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	ProfilePhoto   string `json:"profile_photo"`
	Description    string `json:"description"`
}

// ProductInput is a create/update form; the price arrives as text to keep it exact.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Image       string `json:"image"`
}

// Validate returns the parsed price or a message describing the first problem.
func (in ProductInput) Validate() (decimal.Decimal, error) {
	if strings.TrimSpace(in.Name) == "" {
		return decimal.Zero, errors.New("name is required")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(in.Price))
	if err != nil {
		return decimal.Zero, errors.New("price must be a decimal number")
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("price must not be negative")
	}
	if price.Exponent() < -2 {
		return decimal.Zero, errors.New("price has more than 2 decimal places")
	}
	return price, nil
}

type Repo struct{ DB orders.DB }

const supplierColumns = `s.supplier_id, u.user_id, u.company_name, u.company_address, u.profile_photo, s.description`

func (r *Repo) ListSuppliers(ctx context.Context, q string) ([]Supplier, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers s JOIN users u ON u.user_id = s.user_id
		WHERE u.company_name ILIKE $1
		ORDER BY u.company_name`, "%"+q+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.SupplierID, &s.UserID, &s.CompanyName, &s.CompanyAddress, &s.ProfilePhoto, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) GetSupplier(ctx context.Context, supplierID int64) (Supplier, error) {
	var s Supplier
	err := r.DB.QueryRow(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers s JOIN users u ON u.user_id = s.user_id
		WHERE s.supplier_id = $1`, supplierID,
	).Scan(&s.SupplierID, &s.UserID, &s.CompanyName, &s.CompanyAddress, &s.ProfilePhoto, &s.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

func (r *Repo) UpdateDescription(ctx context.Context, supplierID int64, description string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE suppliers SET description = $2 WHERE supplier_id = $1`, supplierID, description)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// ListProducts lists a supplier's active products, optionally filtered by name.
func (r *Repo) ListProducts(ctx context.Context, supplierID int64, q string) ([]orders.Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, supplier_id, name, description, price::text, image, is_active
		FROM products
		WHERE supplier_id = $1 AND is_active AND name ILIKE $2
		ORDER BY name, product_id`, supplierID, "%"+q+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct resolves a product by id, retired ones included, so order history keeps working.
func (r *Repo) GetProduct(ctx context.Context, productID int64) (orders.Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		SELECT product_id, supplier_id, name, description, price::text, image, is_active
		FROM products WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) CreateProduct(ctx context.Context, supplierID int64, in ProductInput) (orders.Product, error) {
	price, err := in.Validate()
	if err != nil {
		return orders.Product{}, err
	}
	p := orders.Product{SupplierID: supplierID, Name: strings.TrimSpace(in.Name), Description: in.Description, Price: price, Image: in.Image, Active: true}
	err = r.DB.QueryRow(ctx, `
		INSERT INTO products(supplier_id, name, description, price, image)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING product_id`, supplierID, p.Name, p.Description, price.StringFixed(2), p.Image).Scan(&p.ProductID)
	if err != nil {
		return orders.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// UpdateProduct edits an active product the supplier owns. Existing order lines keep their snapshot.
func (r *Repo) UpdateProduct(ctx context.Context, supplierID, productID int64, in ProductInput) error {
	price, err := in.Validate()
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name = $3, description = $4, price = $5::numeric, image = $6, updated_at = now()
		WHERE product_id = $1 AND supplier_id = $2 AND is_active`,
		productID, supplierID, strings.TrimSpace(in.Name), in.Description, price.StringFixed(2), in.Image)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// RetireProduct is the only delete: the row stays for order history but is no longer listed or orderable.
func (r *Repo) RetireProduct(ctx context.Context, supplierID, productID int64) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET is_active = FALSE, updated_at = now()
		WHERE product_id = $1 AND supplier_id = $2 AND is_active`, productID, supplierID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	if err := row.Scan(&p.ProductID, &p.SupplierID, &p.Name, &p.Description, &price, &p.Image, &p.Active); err != nil {
		return orders.Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Product{}, fmt.Errorf("product %d price: %w", p.ProductID, err)
	}
	return p, nil
}
