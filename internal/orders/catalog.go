package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:generate mockgen -destination=mock/catalog_reader.go -package=mock_orders . CatalogReader

// CatalogReader is the read-only view of the catalog subsystem. Implementations
// return *ProductNotFoundError for unknown ids.
type CatalogReader interface {
	LookupProduct(ctx context.Context, productID string) (Product, error)
}

type CatalogRepo struct{ DB *pgxpool.Pool }

func (r *CatalogRepo) LookupProduct(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, seller_id, price, stock FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.SellerID, &p.Price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}
