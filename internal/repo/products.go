package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/order"
	"github.com/noah-isme/backend-erp/internal/pricing"
	"github.com/noah-isme/backend-erp/internal/quote"
)

// Products resolves catalog prices and bulk tiers for both the order edit
// path and the quote path.
type Products struct {
	Pool *pgxpool.Pool
}

// BasePrice returns the current catalog price of a product.
func (r *Products) BasePrice(ctx context.Context, productID uuid.UUID) (money.Money, error) {
	var raw string
	err := r.Pool.QueryRow(ctx,
		`SELECT base_price::text FROM products WHERE id = $1`, productID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Money{}, order.ErrProductNotFound
		}
		return money.Money{}, fmt.Errorf("query product: %w", err)
	}
	return money.FromString(raw)
}

const priceWithTiersSQL = `
SELECT min_qty, percent_bps
FROM product_tiers
WHERE product_id = $1 AND (location_id IS NULL OR location_id = $2)
ORDER BY min_qty`

// PriceWithTiers returns the base price together with the bulk-discount tiers
// applicable at the location. Tiers without a location apply everywhere.
func (r *Products) PriceWithTiers(ctx context.Context, productID, locationID uuid.UUID) (money.Money, []pricing.Tier, error) {
	var raw string
	err := r.Pool.QueryRow(ctx,
		`SELECT base_price::text FROM products WHERE id = $1`, productID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Money{}, nil, quote.ErrProductNotFound
		}
		return money.Money{}, nil, fmt.Errorf("query product: %w", err)
	}
	base, err := money.FromString(raw)
	if err != nil {
		return money.Money{}, nil, err
	}

	rows, err := r.Pool.Query(ctx, priceWithTiersSQL, productID, locationID)
	if err != nil {
		return money.Money{}, nil, fmt.Errorf("query product tiers: %w", err)
	}
	defer rows.Close()

	var tiers []pricing.Tier
	for rows.Next() {
		var tier pricing.Tier
		if err := rows.Scan(&tier.MinQty, &tier.PercentBps); err != nil {
			return money.Money{}, nil, fmt.Errorf("scan product tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return base, tiers, rows.Err()
}
