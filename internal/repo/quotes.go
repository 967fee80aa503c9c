package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/quote"
)

// Quotes is the pgx-backed quote store.
type Quotes struct {
	Pool *pgxpool.Pool
}

// InsertQuote persists a quote and its items in one transaction.
func (r *Quotes) InsertQuote(ctx context.Context, q quote.Quote) (quote.Quote, error) {
	return withTx(ctx, r.Pool, func(tx pgx.Tx) (quote.Quote, error) {
		err := tx.QueryRow(ctx, `
INSERT INTO quotes (id, number, customer_id, location_id, tax_rate_bps, delivery_address,
                    subtotal, discount, tax, delivery_fee, total, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING created_at`,
			q.ID, q.Number, q.CustomerID, q.LocationID, q.TaxRateBps, q.DeliveryAddress,
			numeric(q.Subtotal), numeric(q.Discount), numeric(q.Tax),
			numeric(q.DeliveryFee), numeric(q.Total), q.ExpiresAt,
		).Scan(&q.CreatedAt)
		if err != nil {
			return quote.Quote{}, fmt.Errorf("insert quote: %w", err)
		}
		for _, it := range q.Items {
			_, err := tx.Exec(ctx, `
INSERT INTO quote_items (id, quote_id, product_id, qty, unit_price, discount)
VALUES ($1, $2, $3, $4, $5, $6)`,
				it.ID, q.ID, it.ProductID, it.Qty, numeric(it.UnitPrice), numeric(it.Discount))
			if err != nil {
				return quote.Quote{}, fmt.Errorf("insert quote item: %w", err)
			}
		}
		return q, nil
	})
}

const getQuoteSQL = `
SELECT id, number, customer_id, location_id, tax_rate_bps, delivery_address,
       subtotal::text, discount::text, tax::text, delivery_fee::text, total::text,
       created_at, expires_at
FROM quotes
WHERE id = $1`

// GetQuote loads a quote with its items.
func (r *Quotes) GetQuote(ctx context.Context, id uuid.UUID) (quote.Quote, error) {
	var (
		q       quote.Quote
		amounts [5]string
	)
	err := r.Pool.QueryRow(ctx, getQuoteSQL, id).Scan(
		&q.ID, &q.Number, &q.CustomerID, &q.LocationID, &q.TaxRateBps, &q.DeliveryAddress,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&q.CreatedAt, &q.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quote.Quote{}, quote.ErrNotFound
		}
		return quote.Quote{}, fmt.Errorf("query quote: %w", err)
	}
	fields := []*money.Money{&q.Subtotal, &q.Discount, &q.Tax, &q.DeliveryFee, &q.Total}
	for i, raw := range amounts {
		if *fields[i], err = money.FromString(raw); err != nil {
			return quote.Quote{}, err
		}
	}

	rows, err := r.Pool.Query(ctx, `
SELECT id, quote_id, product_id, qty, unit_price::text, discount::text
FROM quote_items
WHERE quote_id = $1
ORDER BY id`, id)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("query quote items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it               quote.Item
			unitStr, discStr string
		)
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.ProductID, &it.Qty, &unitStr, &discStr); err != nil {
			return quote.Quote{}, fmt.Errorf("scan quote item: %w", err)
		}
		if it.UnitPrice, err = money.FromString(unitStr); err != nil {
			return quote.Quote{}, err
		}
		if it.Discount, err = money.FromString(discStr); err != nil {
			return quote.Quote{}, err
		}
		q.Items = append(q.Items, it)
	}
	return q, rows.Err()
}
