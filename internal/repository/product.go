package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category, active, stock
		FROM products ORDER BY id`

	getProductSQL = `SELECT id, name, price, category, active, stock
		FROM products WHERE id = $1`

	getProductForUpdateSQL = getProductSQL + ` FOR UPDATE`

	listVariantsSQL = `SELECT id, product_id, sku, price, stock, attributes
		FROM product_variants WHERE product_id = ANY($1) ORDER BY id`

	listVariantsForUpdateSQL = `SELECT id, product_id, sku, price, stock, attributes
		FROM product_variants WHERE product_id = ANY($1) ORDER BY id FOR UPDATE`

	decrementProductStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	incrementProductStockSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1`

	decrementVariantStockSQL = `UPDATE product_variants SET stock = stock - $3
		WHERE product_id = $1 AND id = $2 AND stock >= $3`

	incrementVariantStockSQL = `UPDATE product_variants SET stock = stock + $3
		WHERE product_id = $1 AND id = $2`

	getProductStockSQL = `SELECT stock FROM products WHERE id = $1`

	getVariantStockSQL = `SELECT stock FROM product_variants
		WHERE product_id = $1 AND id = $2`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL,
// for catalog reads outside of order transactions.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products with their variants, ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if err := attachVariants(ctx, r.pool, products, ids, false); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return fetchProduct(ctx, r.pool, id, false)
}

// productTxStore implements product.TxStore on an open transaction.
type productTxStore struct {
	tx pgx.Tx
}

var _ product.TxStore = (*productTxStore)(nil)

// GetForUpdate reads the product and its variants with FOR UPDATE row locks
// held for the remainder of the transaction.
func (s *productTxStore) GetForUpdate(ctx context.Context, id string) (*product.Product, error) {
	return fetchProduct(ctx, s.tx, id, true)
}

// DecrementStock applies a relative, guarded decrement. The conditional
// UPDATE keeps the no-negative-stock invariant independent of isolation
// level: zero rows affected means the stock read earlier no longer covers
// the request.
func (s *productTxStore) DecrementStock(ctx context.Context, productID, variantID string, qty int) error {
	var (
		ct  pgconn.CommandTag
		err error
	)
	if variantID == "" {
		ct, err = s.tx.Exec(ctx, decrementProductStockSQL, productID, qty)
	} else {
		ct, err = s.tx.Exec(ctx, decrementVariantStockSQL, productID, variantID, qty)
	}
	if err != nil {
		return fmt.Errorf("decrementing stock for product %q: %w", productID, err)
	}
	if ct.RowsAffected() == 0 {
		return s.insufficientStock(ctx, productID, variantID, qty)
	}
	return nil
}

// IncrementStock restores stock; no upper bound check.
func (s *productTxStore) IncrementStock(ctx context.Context, productID, variantID string, qty int) error {
	var err error
	if variantID == "" {
		_, err = s.tx.Exec(ctx, incrementProductStockSQL, productID, qty)
	} else {
		_, err = s.tx.Exec(ctx, incrementVariantStockSQL, productID, variantID, qty)
	}
	if err != nil {
		return fmt.Errorf("incrementing stock for product %q: %w", productID, err)
	}
	return nil
}

// insufficientStock builds the error for a failed decrement, re-reading the
// current stock so the caller learns what was actually available.
func (s *productTxStore) insufficientStock(ctx context.Context, productID, variantID string, qty int) error {
	var (
		stock int
		err   error
	)
	if variantID == "" {
		err = s.tx.QueryRow(ctx, getProductStockSQL, productID).Scan(&stock)
	} else {
		err = s.tx.QueryRow(ctx, getVariantStockSQL, productID, variantID).Scan(&stock)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("reading stock for product %q: %w", productID, err)
	}
	return &product.InsufficientStockError{
		ProductID: productID,
		VariantID: variantID,
		Requested: qty,
		Available: stock,
	}
}

func fetchProduct(ctx context.Context, q querier, id string, forUpdate bool) (*product.Product, error) {
	sql := getProductSQL
	if forUpdate {
		sql = getProductForUpdateSQL
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	products := []product.Product{p}
	if err := attachVariants(ctx, q, products, []string{id}, forUpdate); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func attachVariants(ctx context.Context, q querier, products []product.Product, ids []string, forUpdate bool) error {
	if len(ids) == 0 {
		return nil
	}
	sql := listVariantsSQL
	if forUpdate {
		sql = listVariantsForUpdateSQL
	}
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}

	type variantRow struct {
		productID string
		variant   product.Variant
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (variantRow, error) {
		var (
			vr    variantRow
			price *decimal.Decimal
			attrs []byte
		)
		if err := row.Scan(&vr.variant.ID, &vr.productID, &vr.variant.SKU, &price, &vr.variant.Stock, &attrs); err != nil {
			return vr, err
		}
		vr.variant.Price = price
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &vr.variant.Attributes); err != nil {
				return vr, fmt.Errorf("unmarshaling variant attributes: %w", err)
			}
		}
		return vr, nil
	})
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}

	byProduct := make(map[string]int, len(products))
	for i := range products {
		byProduct[products[i].ID] = i
	}
	for _, vr := range variants {
		if i, ok := byProduct[vr.productID]; ok {
			products[i].Variants = append(products[i].Variants, vr.variant)
		}
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Category, &p.Active, &p.Stock)
	p.Price = price
	return p, err
}
